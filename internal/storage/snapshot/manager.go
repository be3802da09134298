package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

// magicBytes identify snapshot files.
var magicBytes = []byte("TIDESNAP")

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"
	checksumSize  = 32
	headerVersion = 1

	// BackendFile names the file-based store.
	BackendFile = "file"
)

type fileHeader struct {
	Version   int    `json:"version"`
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	KeyCount  int64  `json:"key_count"`
	WALOffset uint64 `json:"wal_offset"`
	Encrypted bool   `json:"encrypted"`
}

// Config configures the file snapshot manager.
type Config struct {
	Dir string

	RetentionCount int
	RetentionDays  int

	Cipher adaptive.Cipher
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		RetentionCount: DefaultRetentionCount,
		RetentionDays:  DefaultRetentionDays,
	}
}

// Manager stores each snapshot as one file:
//
//	[magic:8][headerLen:4][header JSON][dataLen:8][data][sha256:32]
//
// Files are written to a temp name and renamed into place, so a crash
// never leaves a half-written snapshot under a valid name.
type Manager struct {
	cfg Config
}

var _ Store = (*Manager)(nil)

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.RetentionCount == 0 {
		cfg.RetentionCount = DefaultRetentionCount
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Manager{cfg: cfg}, nil
}

// Save writes data as a new snapshot file.
func (m *Manager) Save(_ context.Context, data []byte, meta Meta) (*Info, error) {
	now := time.Now()
	id := newID(now)

	payload, err := seal(m.cfg.Cipher, id, data)
	if err != nil {
		return nil, err
	}
	hdr, err := json.Marshal(fileHeader{
		Version:   headerVersion,
		ID:        id,
		CreatedAt: now.UnixMilli(),
		KeyCount:  int64(meta.KeyCount),
		WALOffset: meta.WALOffset,
		Encrypted: m.cfg.Cipher != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	sum, size, err := writeSnapshot(file, hdr, payload)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	finalPath := filepath.Join(m.cfg.Dir, filePrefix+id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return &Info{
		ID:        id,
		Backend:   BackendFile,
		WALOffset: meta.WALOffset,
		KeyCount:  int64(meta.KeyCount),
		CreatedAt: now.UnixMilli(),
		Size:      size,
		Path:      finalPath,
		Checksum:  hex.EncodeToString(sum),
		Encrypted: m.cfg.Cipher != nil,
	}, nil
}

func writeSnapshot(f *os.File, hdr, payload []byte) (sum []byte, size int64, err error) {
	hash := sha256.New()
	bw := bufio.NewWriterSize(f, 1<<20)
	w := io.MultiWriter(bw, hash)

	var lenBuf [8]byte
	binary.BigEndian.PutUint32(lenBuf[:4], uint32(len(hdr)))
	for _, chunk := range [][]byte{magicBytes, lenBuf[:4], hdr} {
		if _, err := w.Write(chunk); err != nil {
			return nil, 0, fmt.Errorf("snapshot: write header: %w", err)
		}
	}
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("snapshot: write data length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, 0, fmt.Errorf("snapshot: write data: %w", err)
	}

	sum = hash.Sum(nil)
	if _, err := bw.Write(sum); err != nil {
		return nil, 0, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, 0, fmt.Errorf("snapshot: flush: %w", err)
	}
	size = int64(len(magicBytes)+4+len(hdr)+8+len(payload)) + checksumSize
	return sum, size, nil
}

// Load returns the newest snapshot that passes its checksum, falling back
// to older ones when the newest is damaged.
func (m *Manager) Load(_ context.Context) ([]byte, *Info, error) {
	infos, err := m.paths()
	if err != nil {
		return nil, nil, err
	}
	for i := len(infos) - 1; i >= 0; i-- {
		data, info, err := m.loadFile(infos[i])
		if err == nil {
			return data, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) {
			continue
		}
		return nil, nil, err
	}
	return nil, nil, ErrNoSnapshots
}

func (m *Manager) loadFile(path string) ([]byte, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if st.Size() < int64(len(magicBytes))+4+8+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	dataLen := st.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, dataLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, dataLen))
	hdr, err := readHeader(br)
	if err != nil {
		return nil, nil, err
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(br, sizeBuf[:]); err != nil {
		return nil, nil, err
	}
	size := binary.BigEndian.Uint64(sizeBuf[:])
	if size > uint64(dataLen) {
		return nil, nil, fmt.Errorf("snapshot: data length %d exceeds file", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, nil, err
	}

	data, err := open(m.cfg.Cipher, hdr.ID, payload, hdr.Encrypted)
	if err != nil {
		return nil, nil, err
	}

	info := hdr.info(path, st.Size())
	info.Checksum = hex.EncodeToString(expected)
	return data, info, nil
}

func readHeader(r io.Reader) (*fileHeader, error) {
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, ErrInvalidMagic
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > 1<<20 {
		return nil, fmt.Errorf("snapshot: bad header length %d", n)
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	var hdr fileHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, fmt.Errorf("snapshot: unsupported version %d", hdr.Version)
	}
	return &hdr, nil
}

func (h *fileHeader) info(path string, size int64) *Info {
	return &Info{
		ID:        h.ID,
		Backend:   BackendFile,
		WALOffset: h.WALOffset,
		KeyCount:  h.KeyCount,
		CreatedAt: h.CreatedAt,
		Size:      size,
		Path:      path,
		Encrypted: h.Encrypted,
	}
}

// paths returns snapshot file paths, oldest first.
func (m *Manager) paths() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// List reads the header of every snapshot file. Files with an unreadable
// header are listed with only their ID, path and size.
func (m *Manager) List(_ context.Context) ([]*Info, error) {
	paths, err := m.paths()
	if err != nil {
		return nil, err
	}
	infos := make([]*Info, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		info := &Info{
			ID:      strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), filePrefix), fileExtension),
			Backend: BackendFile,
			Path:    p,
			Size:    st.Size(),
		}
		if f, err := os.Open(p); err == nil {
			if hdr, err := readHeader(bufio.NewReader(f)); err == nil {
				info = hdr.info(p, st.Size())
			}
			f.Close()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Prune keeps the newest RetentionCount snapshots plus any younger than
// RetentionDays, and never deletes the newest one.
func (m *Manager) Prune(_ context.Context) error {
	paths, err := m.paths()
	if err != nil {
		return err
	}
	if len(paths) <= 1 {
		return nil
	}

	keep := make(map[string]struct{}, len(paths))
	if m.cfg.RetentionCount > 0 {
		start := len(paths) - m.cfg.RetentionCount
		if start < 0 {
			start = 0
		}
		for _, p := range paths[start:] {
			keep[p] = struct{}{}
		}
	}
	if m.cfg.RetentionDays > 0 {
		cutoff := time.Now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
		for _, p := range paths {
			if st, err := os.Stat(p); err == nil && st.ModTime().After(cutoff) {
				keep[p] = struct{}{}
			}
		}
	}
	keep[paths[len(paths)-1]] = struct{}{}

	var errs []error
	for _, p := range paths {
		if _, ok := keep[p]; ok {
			continue
		}
		if err := os.Remove(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op for the file store.
func (m *Manager) Close() error { return nil }
