package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrKeyTooShort       = errors.New("snapshot: encryption key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrDecryptionFailed  = errors.New("snapshot: decryption failed - wrong key or corrupted data")
)

const (
	MinKeyLength        = 16
	MinPassphraseLength = 8
	SaltLength          = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// Purposes for DeriveSubkey. Snapshot and WAL data never share a key.
const (
	PurposeSnapshot = "tidekv snapshot v1"
	PurposeWAL      = "tidekv wal v1"
)

// EncryptionConfig configures at-rest encryption of snapshots and the WAL.
type EncryptionConfig struct {
	// Key is the raw master key. Either Key or Passphrase must be set for
	// encryption to be enabled.
	Key []byte

	// Passphrase derives the master key with Argon2id. It wins over Key.
	Passphrase []byte

	// SaltFile holds the Argon2 salt. It is created on first use and must
	// be kept with the data: without it the passphrase cannot reproduce
	// the key.
	SaltFile string

	// Algorithm is "aes-gcm", "chacha20-poly1305" or empty for automatic
	// selection based on hardware support.
	Algorithm string
}

// Enabled reports whether any key material is configured.
func (c EncryptionConfig) Enabled() bool {
	return len(c.Key) > 0 || len(c.Passphrase) > 0
}

// ValidateConfig validates the encryption configuration.
func ValidateConfig(cfg EncryptionConfig) error {
	if len(cfg.Passphrase) > 0 {
		if len(cfg.Passphrase) < MinPassphraseLength {
			return ErrPassphraseTooWeak
		}
		if cfg.SaltFile == "" {
			return fmt.Errorf("snapshot: passphrase requires a salt file")
		}
		return nil
	}
	if len(cfg.Key) > 0 && len(cfg.Key) < MinKeyLength {
		return ErrKeyTooShort
	}
	switch adaptive.CipherType(cfg.Algorithm) {
	case "", adaptive.CipherAESGCM, adaptive.CipherChaCha20:
	default:
		return fmt.Errorf("snapshot: unsupported algorithm: %s", cfg.Algorithm)
	}
	return nil
}

// NewCiphers builds the snapshot and WAL ciphers from one master key.
// Both are nil when encryption is not configured.
func NewCiphers(cfg EncryptionConfig) (snap, wal adaptive.Cipher, err error) {
	if !cfg.Enabled() {
		return nil, nil, nil
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}

	master := cfg.Key
	if len(cfg.Passphrase) > 0 {
		salt, err := loadOrCreateSalt(cfg.SaltFile)
		if err != nil {
			return nil, nil, err
		}
		master = DeriveKeyFromPassphrase(cfg.Passphrase, salt)
		defer ZeroKey(master)
	}

	build := func(purpose string) (adaptive.Cipher, error) {
		key, err := DeriveSubkey(master, purpose, argon2KeyLen)
		if err != nil {
			return nil, err
		}
		defer ZeroKey(key)
		if cfg.Algorithm == "" {
			return adaptive.New(key)
		}
		return adaptive.NewWithType(key, adaptive.CipherType(cfg.Algorithm))
	}
	if snap, err = build(PurposeSnapshot); err != nil {
		return nil, nil, err
	}
	if wal, err = build(PurposeWAL); err != nil {
		return nil, nil, err
	}
	return snap, wal, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != SaltLength {
			return nil, fmt.Errorf("snapshot: salt file %s has %d bytes, want %d", path, len(salt), SaltLength)
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot: read salt: %w", err)
	}
	salt = make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, fmt.Errorf("snapshot: write salt: %w", err)
	}
	return salt, nil
}

// DeriveKeyFromPassphrase derives a 32-byte key with Argon2id.
func DeriveKeyFromPassphrase(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// DeriveSubkey derives a purpose-bound key from a master key using HKDF.
func DeriveSubkey(masterKey []byte, info string, length int) ([]byte, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	key := make([]byte, length)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("snapshot: derive subkey: %w", err)
	}
	return key, nil
}

// ZeroKey overwrites key material.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
