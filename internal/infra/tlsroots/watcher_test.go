package tlsroots

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher(t *testing.T) {
	dir := t.TempDir()
	expiry := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	certFile, keyFile := writeSelfSigned(t, dir, "server", expiry)

	w, err := NewWatcher(certFile, keyFile, WithDebounce(time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	cert, err := w.GetCertificate(nil)
	if err != nil || cert == nil || cert.Leaf == nil {
		t.Fatalf("GetCertificate() = %v, %v", cert, err)
	}
	if !w.NotAfter().Equal(expiry) {
		t.Errorf("NotAfter() = %v, want %v", w.NotAfter(), expiry)
	}
}

func TestNewWatcher_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(bad, []byte("not a cert"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWatcher(bad, bad); err == nil {
		t.Error("NewWatcher() expected error for invalid pair")
	}
	if _, err := NewWatcher(filepath.Join(dir, "no.crt"), filepath.Join(dir, "no.key")); err == nil {
		t.Error("NewWatcher() expected error for missing files")
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "server", time.Now().Add(time.Hour))

	w, err := NewWatcher(certFile, keyFile, WithDebounce(time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	defer w.Stop()
	before := w.NotAfter()

	// Let the watcher register its directories.
	time.Sleep(100 * time.Millisecond)

	later := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	writeSelfSigned(t, dir, "server", later)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !w.NotAfter().Equal(before) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !w.NotAfter().Equal(later) {
		t.Errorf("NotAfter() = %v after rotation, want %v", w.NotAfter(), later)
	}
	if w.Reloads() == 0 {
		t.Error("Reloads() = 0 after rotation")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, "server", time.Now().Add(time.Hour))
	w, err := NewWatcher(certFile, keyFile)
	if err != nil {
		t.Fatal(err)
	}
	w.StartAsync()
	w.Stop()
	w.Stop()
}
