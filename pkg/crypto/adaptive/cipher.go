package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherType names an AEAD algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

var (
	ErrUnknownCipher   = errors.New("adaptive: unknown cipher type")
	ErrInvalidKey      = errors.New("adaptive: invalid key size")
	ErrShortCiphertext = errors.New("adaptive: ciphertext too short")
)

// Cipher is an authenticated cipher safe for concurrent use.
type Cipher interface {
	Type() CipherType
	Encrypt(plaintext, additionalData []byte) ([]byte, error)
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// New returns the preferred cipher for this platform.
func New(key []byte) (Cipher, error) {
	return NewWithType(key, Preferred())
}

// NewWithType returns a cipher of type t. AES-GCM accepts 16, 24 or 32
// byte keys; ChaCha20-Poly1305 needs exactly 32.
func NewWithType(key []byte, t CipherType) (Cipher, error) {
	var (
		a   cipher.AEAD
		err error
	)
	switch t {
	case CipherAESGCM:
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("%w: %s needs 16, 24 or 32 bytes, got %d", ErrInvalidKey, t, len(key))
		}
		var block cipher.Block
		if block, err = aes.NewCipher(key); err == nil {
			a, err = cipher.NewGCM(block)
		}
	case CipherChaCha20:
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidKey, t, chacha20poly1305.KeySize, len(key))
		}
		a, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, t)
	}
	if err != nil {
		return nil, err
	}
	return &aead{typ: t, aead: a}, nil
}

// Preferred reports the algorithm New selects. Go's AES uses hardware
// instructions on amd64 and arm64.
func Preferred() CipherType {
	switch runtime.GOARCH {
	case "amd64", "arm64", "s390x", "ppc64le":
		return CipherAESGCM
	}
	return CipherChaCha20
}

type aead struct {
	typ  CipherType
	aead cipher.AEAD
}

func (c *aead) Type() CipherType { return c.typ }
func (c *aead) NonceSize() int   { return c.aead.NonceSize() }
func (c *aead) Overhead() int    { return c.aead.Overhead() }

func (c *aead) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	out := make([]byte, ns, ns+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return c.aead.Seal(out, out[:ns], plaintext, additionalData), nil
}

func (c *aead) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+c.aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	return c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], additionalData)
}
