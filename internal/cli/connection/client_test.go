package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// ============================================================================
// Client
// ============================================================================

func TestClient_Do(t *testing.T) {
	srv := newFakeServer(t, "")
	ctx := context.Background()

	c, err := Dial(ctx, Options{Addr: srv.addr(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	v, err := c.Do(ctx, "PING")
	if err != nil || v.Kind != resp.KindSimpleString || v.Str != "PONG" {
		t.Fatalf("PING = %+v, %v", v, err)
	}
	v, err = c.Do(ctx, "ECHO", "hello")
	if err != nil || string(v.Bulk) != "hello" {
		t.Fatalf("ECHO = %+v, %v", v, err)
	}
	v, err = c.Do(ctx, "NOPE")
	if err != nil || !v.IsError() {
		t.Fatalf("error reply should be a value: %+v, %v", v, err)
	}
	if _, err := c.Do(ctx); err == nil {
		t.Error("empty command should fail")
	}
}

func TestDial_Auth(t *testing.T) {
	srv := newFakeServer(t, "s3cret")
	ctx := context.Background()

	if _, err := Dial(ctx, Options{Addr: srv.addr(), Password: "wrong"}); err == nil {
		t.Fatal("expected auth error")
	}

	c, err := Dial(ctx, Options{Addr: srv.addr(), Password: "s3cret"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if v, _ := c.Do(ctx, "PING"); v.Str != "PONG" {
		t.Errorf("PING after auth = %+v", v)
	}
}

func TestDial_Refused(t *testing.T) {
	srv := newFakeServer(t, "")
	addr := srv.addr()
	srv.ln.Close()

	if _, err := Dial(context.Background(), Options{Addr: addr, DialTimeout: time.Second}); err == nil {
		t.Fatal("expected dial error")
	}
}

// ============================================================================
// Pool
// ============================================================================

func TestPool_ConcurrentDo(t *testing.T) {
	srv := newFakeServer(t, "")
	ctx := context.Background()
	p := NewPool(ctx, Options{Addr: srv.addr(), Timeout: time.Second}, 4)
	defer p.Close(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.Do(ctx, "SET", "k", "v")
			if err == nil && v.Str != "OK" {
				err = errors.New("unexpected reply " + v.Str)
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := srv.accepted.Load(); got > 4 {
		t.Errorf("accepted %d connections, pool size is 4", got)
	}
	if p.Active() != 0 {
		t.Errorf("Active = %d after all returns", p.Active())
	}
}

func TestPool_DialError(t *testing.T) {
	srv := newFakeServer(t, "")
	addr := srv.addr()
	srv.ln.Close()

	ctx := context.Background()
	p := NewPool(ctx, Options{Addr: addr, DialTimeout: time.Second}, 1)
	defer p.Close(ctx)
	if _, err := p.Do(ctx, "PING"); err == nil {
		t.Fatal("expected error")
	}
}

// ============================================================================
// HTTPClient
// ============================================================================

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name   string
		server string
		want   string
	}{
		{"with http prefix", "http://localhost:6380", "http://localhost:6380"},
		{"with https prefix", "https://localhost:6380/", "https://localhost:6380"},
		{"without prefix", "localhost:6380", "http://localhost:6380"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewHTTPClient(tt.server, "", nil).BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer pw" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"TK-SYS-4010","message":"authentication required","request_id":"r1"}`))
			return
		}
		w.Write([]byte(`{"code":"OK","message":"Success","data":{"keys":7}}`))
	}))
	defer server.Close()

	var got struct {
		Keys int `json:"keys"`
	}
	if err := NewHTTPClient(server.URL, "pw", nil).Get(context.Background(), "/admin/v1/status", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Keys != 7 {
		t.Errorf("keys = %d", got.Keys)
	}

	err := NewHTTPClient(server.URL, "", nil).Get(context.Background(), "/admin/v1/status", &got)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != "TK-SYS-4010" || apiErr.RequestID != "r1" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestHTTPClient_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"code":"OK","data":{"id":"snap-1"}}`))
	}))
	defer server.Close()

	var got struct {
		ID string `json:"id"`
	}
	if err := NewHTTPClient(server.URL, "", nil).Post(context.Background(), "/admin/v1/snapshots", nil, &got); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.ID != "snap-1" {
		t.Errorf("id = %q", got.ID)
	}
}

func TestParseResponse_NonJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	http.Error(rec, "404 page not found", http.StatusNotFound)
	err := ParseResponse(rec.Result(), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Error() != "request failed with status 404" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}
