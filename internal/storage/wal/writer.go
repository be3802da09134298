package wal

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

var (
	errInvalidMagic    = errors.New("wal: invalid magic bytes")
	errChecksumInvalid = errors.New("wal: checksum mismatch")
)

// File format constants.
const (
	FilePrefix      = "wal-"
	FileExtension   = ".log"
	MagicBytes      = "TIDEWAL\x01"
	MagicBytesSize  = 8
	ChecksumSize    = 32
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Default configuration values.
const (
	DefaultBatchCount              = 128
	DefaultBatchBytes        int64 = 1 << 20
	DefaultSyncInterval            = time.Second
	DefaultMaxSegmentSize    int64 = 64 << 20
	DefaultMaxSegmentEntries       = 1 << 20
)

// FSyncPolicy controls when appended entries reach stable storage.
type FSyncPolicy string

const (
	// FSyncAlways writes and fsyncs every entry before Append returns.
	FSyncAlways FSyncPolicy = "always"
	// FSyncEverySec batches entries and fsyncs once per SyncInterval.
	FSyncEverySec FSyncPolicy = "everysec"
	// FSyncNo batches entries and leaves syncing to the operating system.
	FSyncNo FSyncPolicy = "no"
)

// ParseFSyncPolicy validates a policy name.
func ParseFSyncPolicy(s string) (FSyncPolicy, error) {
	switch p := FSyncPolicy(strings.ToLower(s)); p {
	case FSyncAlways, FSyncEverySec, FSyncNo:
		return p, nil
	case "":
		return FSyncEverySec, nil
	default:
		return "", fmt.Errorf("wal: unknown fsync policy %q", s)
	}
}

// Config configures the WAL writer.
type Config struct {
	Dir string

	FSync        FSyncPolicy
	SyncInterval time.Duration

	BatchCount int
	BatchBytes int64

	MaxSegmentSize    int64
	MaxSegmentEntries int

	Cipher adaptive.Cipher
}

// DefaultConfig returns the default WAL configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:               dir,
		FSync:             FSyncEverySec,
		SyncInterval:      DefaultSyncInterval,
		BatchCount:        DefaultBatchCount,
		BatchBytes:        DefaultBatchBytes,
		MaxSegmentSize:    DefaultMaxSegmentSize,
		MaxSegmentEntries: DefaultMaxSegmentEntries,
	}
}

func applyDefaults(cfg *Config) {
	if cfg.FSync == "" {
		cfg.FSync = FSyncEverySec
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.BatchCount <= 0 {
		cfg.BatchCount = DefaultBatchCount
	}
	if cfg.BatchBytes <= 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
	if cfg.MaxSegmentSize <= 0 {
		cfg.MaxSegmentSize = DefaultMaxSegmentSize
	}
	if cfg.MaxSegmentEntries <= 0 {
		cfg.MaxSegmentEntries = DefaultMaxSegmentEntries
	}
}

// Stats is a point-in-time view of the writer.
type Stats struct {
	SegmentID uint64
	Entries   uint64
	Bytes     uint64
	Syncs     uint64
	Pending   int
}

// segment is the open file being appended to. size excludes the trailer.
type segment struct {
	id      uint64
	file    *os.File
	path    string
	size    int64
	entries int
	hash    hash.Hash
}

func (s *segment) write(p []byte) error {
	n, err := s.file.Write(p)
	if n > 0 {
		s.hash.Write(p[:n])
		s.size += int64(n)
	}
	return err
}

// finalize seals the segment with a SHA-256 trailer and closes it.
func (s *segment) finalize() error {
	if _, err := s.file.Write(s.hash.Sum(nil)); err != nil {
		s.file.Close()
		return fmt.Errorf("wal: write checksum: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("wal: sync: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	return nil
}

// Writer appends entries to rotating segment files.
type Writer struct {
	cfg Config

	mu      sync.Mutex
	seg     *segment
	buf     bytes.Buffer
	pending int
	closed  bool
	stats   Stats

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWriter opens the WAL directory, resuming the newest unsealed segment
// if there is one.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}
	applyDefaults(&cfg)

	w := &Writer{cfg: cfg, stopCh: make(chan struct{})}

	latestID, latestPath, sealed, err := findLatestSegment(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if latestID == 0 || sealed {
		err = w.openNewSegment(latestID + 1)
	} else {
		err = w.resumeSegment(latestID, latestPath)
	}
	if err != nil {
		return nil, err
	}

	if cfg.FSync != FSyncAlways {
		w.wg.Add(1)
		go w.syncLoop()
	}
	return w, nil
}

// CurrentOffset returns the composite offset (segmentID<<32 | bytes) of the
// next entry, counting entries still buffered.
func (w *Writer) CurrentOffset() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offsetLocked()
}

func (w *Writer) offsetLocked() uint64 {
	if w.seg == nil {
		return 0
	}
	return (w.seg.id << 32) | uint64(uint32(w.seg.size+int64(w.buf.Len())))
}

// Append adds an entry. Under FSyncAlways it is durable on return;
// otherwise it is buffered until a batch threshold or the sync loop.
func (w *Writer) Append(e *Entry) error {
	frame, err := encodeEntryFrame(e, w.cfg.Cipher)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	w.buf.Write(frame)
	w.pending++
	w.stats.Entries++
	w.stats.Bytes += uint64(len(frame))

	switch {
	case w.cfg.FSync == FSyncAlways:
		return w.flushLocked(true)
	case w.pending >= w.cfg.BatchCount || int64(w.buf.Len()) >= w.cfg.BatchBytes:
		return w.flushLocked(false)
	}
	return nil
}

// Flush writes buffered entries to the segment file without syncing.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(false)
}

// Sync writes buffered entries and fsyncs the segment.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(true)
}

func (w *Writer) flushLocked(sync bool) error {
	if w.seg == nil {
		return fmt.Errorf("wal: no open segment")
	}
	if w.buf.Len() > 0 {
		if w.seg.size+int64(w.buf.Len()) > w.cfg.MaxSegmentSize ||
			w.seg.entries+w.pending > w.cfg.MaxSegmentEntries {
			if err := w.rotateLocked(); err != nil {
				return err
			}
		}
		if err := w.seg.write(w.buf.Bytes()); err != nil {
			return fmt.Errorf("wal: write batch: %w", err)
		}
		w.seg.entries += w.pending
		w.buf.Reset()
		w.pending = 0
	}
	if sync {
		w.stats.Syncs++
		return w.seg.file.Sync()
	}
	return nil
}

// Checkpoint flushes, seals the current segment and starts a new one. The
// returned offset is the start of the new segment: everything before it is
// covered by a snapshot taken at this point.
func (w *Writer) Checkpoint() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	if err := w.flushLocked(false); err != nil {
		return 0, err
	}
	if err := w.rotateLocked(); err != nil {
		return 0, err
	}
	return w.offsetLocked(), nil
}

func (w *Writer) rotateLocked() error {
	next := w.seg.id + 1
	if err := w.seg.finalize(); err != nil {
		return err
	}
	w.seg = nil
	return w.openNewSegment(next)
}

// Stats returns writer counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = w.pending
	if w.seg != nil {
		s.SegmentID = w.seg.id
	}
	return s
}

func (w *Writer) syncLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			if !w.closed {
				_ = w.flushLocked(w.cfg.FSync == FSyncEverySec)
			}
			w.mu.Unlock()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Writer) openNewSegment(id uint64) error {
	path := filepath.Join(w.cfg.Dir, formatSegmentFilename(id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}
	seg := &segment{id: id, file: f, path: path, hash: sha256.New()}
	if err := seg.write([]byte(MagicBytes)); err != nil {
		f.Close()
		return fmt.Errorf("wal: write magic: %w", err)
	}
	w.seg = seg
	return nil
}

// resumeSegment reopens an unsealed segment after a restart. A torn frame
// at the tail is truncated away so new entries follow the last good one.
func (w *Writer) resumeSegment(id uint64, path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("wal: open existing segment: %w", err)
	}
	good, err := scanValidPrefix(f)
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Truncate(good); err != nil {
		f.Close()
		return fmt.Errorf("wal: truncate torn tail: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, good)); err != nil {
		f.Close()
		return fmt.Errorf("wal: hash existing segment: %w", err)
	}
	if _, err := f.Seek(good, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("wal: seek: %w", err)
	}
	w.seg = &segment{id: id, file: f, path: path, size: good, hash: h}
	if good == 0 {
		if err := w.seg.write([]byte(MagicBytes)); err != nil {
			f.Close()
			return fmt.Errorf("wal: write magic: %w", err)
		}
	}
	return nil
}

// Close flushes pending entries and seals the current segment.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seg == nil {
		return nil
	}
	if err := w.flushLocked(false); err != nil {
		return err
	}
	err := w.seg.finalize()
	w.seg = nil
	return err
}

func formatSegmentFilename(id uint64) string {
	return fmt.Sprintf("%s%08d%s", FilePrefix, id, FileExtension)
}

func parseSegmentFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileExtension) {
		return 0, false
	}
	var id uint64
	_, err := fmt.Sscanf(name, FilePrefix+"%d"+FileExtension, &id)
	return id, err == nil
}

type segmentInfo struct {
	id   uint64
	path string
}

// listSegments returns the segment files of dir, oldest first.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: read dir: %w", err)
	}
	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := parseSegmentFilename(e.Name()); ok {
			segs = append(segs, segmentInfo{id: id, path: filepath.Join(dir, e.Name())})
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

func findLatestSegment(dir string) (id uint64, path string, sealed bool, err error) {
	segs, err := listSegments(dir)
	if err != nil || len(segs) == 0 {
		return 0, "", false, err
	}
	last := segs[len(segs)-1]
	f, err := os.Open(last.path)
	if err != nil {
		return 0, "", false, fmt.Errorf("wal: open latest: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, "", false, fmt.Errorf("wal: stat latest: %w", err)
	}
	sealed, _, err = verifyChecksumTrailer(f, st.Size())
	if errors.Is(err, errInvalidMagic) {
		// Unreadable tail segment: start fresh after it.
		return last.id, last.path, true, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return last.id, last.path, sealed, nil
}

// verifyChecksumTrailer reports whether f ends with a valid SHA-256 trailer
// and the length of the data before it.
func verifyChecksumTrailer(f *os.File, size int64) (sealed bool, dataLen int64, err error) {
	if size < MagicBytesSize {
		return false, size, nil
	}
	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, MagicBytesSize), magic); err != nil {
		return false, 0, fmt.Errorf("wal: read magic: %w", err)
	}
	if string(magic) != MagicBytes {
		return false, 0, errInvalidMagic
	}
	if size < MagicBytesSize+ChecksumSize {
		return false, size, nil
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, size-ChecksumSize, ChecksumSize), trailer); err != nil {
		return false, 0, fmt.Errorf("wal: read checksum trailer: %w", err)
	}
	h := sha256.New()
	dataLen = size - ChecksumSize
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, dataLen), dataLen); err != nil {
		return false, 0, fmt.Errorf("wal: hash: %w", err)
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return false, size, nil
	}
	return true, dataLen, nil
}
