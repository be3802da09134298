package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

func key(n int) []byte {
	k := make([]byte, n)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestNewWithType(t *testing.T) {
	tests := []struct {
		name    string
		typ     CipherType
		keyLen  int
		wantErr error
	}{
		{"aes-128", CipherAESGCM, 16, nil},
		{"aes-192", CipherAESGCM, 24, nil},
		{"aes-256", CipherAESGCM, 32, nil},
		{"aes bad key", CipherAESGCM, 20, ErrInvalidKey},
		{"chacha", CipherChaCha20, 32, nil},
		{"chacha short key", CipherChaCha20, 16, ErrInvalidKey},
		{"unknown", "rot13", 32, ErrUnknownCipher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWithType(key(tt.keyLen), tt.typ)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWithType: %v", err)
			}
			if c.Type() != tt.typ {
				t.Errorf("Type = %s, want %s", c.Type(), tt.typ)
			}
		})
	}
}

func TestNew_UsesPreferred(t *testing.T) {
	c, err := New(key(32))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Type() != Preferred() {
		t.Errorf("Type = %s, want %s", c.Type(), Preferred())
	}
}

func TestRoundTrip(t *testing.T) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(typ), func(t *testing.T) {
			c, err := NewWithType(key(32), typ)
			if err != nil {
				t.Fatal(err)
			}
			for _, plain := range [][]byte{nil, []byte("x"), bytes.Repeat([]byte("tidekv"), 4096)} {
				aad := []byte("snapshot-01")
				ct, err := c.Encrypt(plain, aad)
				if err != nil {
					t.Fatalf("Encrypt: %v", err)
				}
				if len(ct) != len(plain)+c.NonceSize()+c.Overhead() {
					t.Errorf("ciphertext length = %d", len(ct))
				}
				got, err := c.Decrypt(ct, aad)
				if err != nil {
					t.Fatalf("Decrypt: %v", err)
				}
				if !bytes.Equal(got, plain) {
					t.Errorf("round trip mismatch for %d bytes", len(plain))
				}
			}
		})
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	c, _ := New(key(32))
	a, _ := c.Encrypt([]byte("same"), nil)
	b, _ := c.Encrypt([]byte("same"), nil)
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical ciphertext")
	}
}

func TestDecrypt_Rejects(t *testing.T) {
	c, _ := NewWithType(key(32), CipherChaCha20)
	other, _ := NewWithType(bytes.Repeat([]byte{9}, 32), CipherChaCha20)
	ct, _ := c.Encrypt([]byte("payload"), []byte("aad"))

	flipped := append([]byte(nil), ct...)
	flipped[len(flipped)-1] ^= 1

	tests := []struct {
		name string
		c    Cipher
		ct   []byte
		aad  []byte
	}{
		{"wrong aad", c, ct, []byte("other")},
		{"wrong key", other, ct, []byte("aad")},
		{"tampered", c, flipped, []byte("aad")},
		{"truncated", c, ct[:c.NonceSize()], []byte("aad")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.c.Decrypt(tt.ct, tt.aad); err == nil {
				t.Error("Decrypt succeeded")
			}
		})
	}
}

func BenchmarkEncrypt(b *testing.B) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		b.Run(string(typ), func(b *testing.B) {
			c, _ := NewWithType(key(32), typ)
			buf := make([]byte, 4096)
			b.SetBytes(int64(len(buf)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := c.Encrypt(buf, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
