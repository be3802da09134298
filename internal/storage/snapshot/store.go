package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNotFound         = errors.New("snapshot: not found")
	ErrNoSnapshots      = errors.New("snapshot: no snapshots available")
	ErrEncrypted        = errors.New("snapshot: encrypted snapshot requires a cipher")
	ErrClosed           = errors.New("snapshot: store closed")
)

// Retention defaults.
const (
	DefaultRetentionCount = 5
	DefaultRetentionDays  = 7
)

// Meta describes the keyspace image handed to Save.
type Meta struct {
	// KeyCount is the number of live keys in the image.
	KeyCount int
	// WALOffset is the journal position the image covers. Replay resumes here.
	WALOffset uint64
}

// Info contains metadata about a stored snapshot.
type Info struct {
	ID        string `json:"id"`
	Backend   string `json:"backend"`
	WALOffset uint64 `json:"wal_offset"`
	KeyCount  int64  `json:"key_count"`
	CreatedAt int64  `json:"created_at"`
	Size      int64  `json:"size"`
	Path      string `json:"path,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
	Encrypted bool   `json:"encrypted"`
}

// Store persists keyspace images produced by keyspace.DB.Snapshot.
//
// Save and Load deal in opaque bytes; the store owns layout, integrity,
// encryption and retention.
type Store interface {
	Save(ctx context.Context, data []byte, meta Meta) (*Info, error)
	// Load returns the newest intact snapshot, or ErrNoSnapshots.
	Load(ctx context.Context) ([]byte, *Info, error)
	// List returns snapshot metadata, oldest first.
	List(ctx context.Context) ([]*Info, error)
	// Prune applies the retention policy.
	Prune(ctx context.Context) error
	Close() error
}

// newID returns a lexically time-ordered snapshot ID.
func newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func seal(c adaptive.Cipher, id string, data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	out, err := c.Encrypt(data, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("snapshot: encrypt: %w", err)
	}
	return out, nil
}

func open(c adaptive.Cipher, id string, data []byte, encrypted bool) ([]byte, error) {
	switch {
	case !encrypted && c != nil:
		return nil, fmt.Errorf("snapshot: %s is not encrypted but a cipher is configured", id)
	case !encrypted:
		return data, nil
	case c == nil:
		return nil, ErrEncrypted
	}
	out, err := c.Decrypt(data, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return out, nil
}
