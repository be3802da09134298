package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/yndnr/tidekv/pkg/crypto/adaptive"
)

// ErrCorrupted marks a segment whose header or trailer is unusable.
var ErrCorrupted = errors.New("wal: corrupted segment")

// Reader reads WAL entries across all segments in order.
//
// A damaged frame ends its segment: the reader records it in Skipped and
// moves on to the next segment, so a torn tail never blocks recovery.
type Reader struct {
	dir    string
	cipher adaptive.Cipher

	segments []segmentInfo
	segIndex int
	startAt  int64

	file   *os.File
	reader *bufio.Reader

	// Skipped counts segments abandoned at a damaged frame.
	Skipped int
}

// NewReader creates a reader over the segments currently in dir.
func NewReader(dir string, cipher adaptive.Cipher) (*Reader, error) {
	segs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	return &Reader{dir: dir, cipher: cipher, segments: segs}, nil
}

// Seek positions the reader at a composite offset (segmentID<<32 | bytes).
// Segments older than segmentID are skipped.
func (r *Reader) Seek(offset uint64) {
	segID := offset >> 32
	r.closeCurrent()
	r.segIndex = len(r.segments)
	r.startAt = 0
	for i, s := range r.segments {
		if s.id >= segID {
			r.segIndex = i
			if s.id == segID {
				r.startAt = int64(uint32(offset))
			}
			break
		}
	}
}

// Read returns the next entry or io.EOF after the last segment.
func (r *Reader) Read() (*Entry, error) {
	for {
		if r.reader == nil {
			if err := r.openNextSegment(); err != nil {
				if errors.Is(err, ErrCorrupted) || errors.Is(err, errInvalidMagic) {
					r.Skipped++
					continue
				}
				return nil, err
			}
		}

		e, err := r.readOneEntry()
		switch {
		case err == nil:
			return e, nil
		case errors.Is(err, io.EOF):
			r.closeCurrent()
		case errors.Is(err, io.ErrUnexpectedEOF),
			errors.Is(err, ErrCorruptedEntry),
			errors.Is(err, ErrChecksumMismatch),
			errors.Is(err, ErrInvalidEntryType):
			r.Skipped++
			r.closeCurrent()
		default:
			return nil, err
		}
	}
}

// Close closes any open segment file.
func (r *Reader) Close() error {
	return r.closeCurrent()
}

func (r *Reader) openNextSegment() error {
	r.closeCurrent()
	if r.segIndex >= len(r.segments) {
		return io.EOF
	}
	seg := r.segments[r.segIndex]
	r.segIndex++

	f, err := os.Open(seg.path)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat segment: %w", err)
	}
	sealed, dataLen, err := verifyChecksumTrailer(f, st.Size())
	if err != nil {
		f.Close()
		return err
	}
	if !sealed {
		dataLen = st.Size()
	}
	if dataLen < MagicBytesSize {
		f.Close()
		return ErrCorrupted
	}

	start := r.startAt
	r.startAt = 0
	if start < MagicBytesSize {
		start = MagicBytesSize
	}
	if start > dataLen {
		start = dataLen
	}

	r.file = f
	r.reader = bufio.NewReader(io.NewSectionReader(f, start, dataLen-start))
	return nil
}

func (r *Reader) closeCurrent() error {
	r.reader = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *Reader) readOneEntry() (*Entry, error) {
	frame, err := readFrame(r.reader)
	if err != nil {
		return nil, err
	}
	return decodeEntryFrame(frame, r.cipher)
}

// readFrame reads one length-prefixed frame, returning the bytes after the
// length field.
func readFrame(br *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < minFrameLen || length > maxFrameLen {
		return nil, ErrCorruptedEntry
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(br, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// scanValidPrefix returns the length of the leading run of intact frames in
// an unsealed segment, magic included. Zero means even the magic is missing.
func scanValidPrefix(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat segment: %w", err)
	}
	if st.Size() < MagicBytesSize {
		return 0, nil
	}
	br := bufio.NewReader(io.NewSectionReader(f, MagicBytesSize, st.Size()-MagicBytesSize))
	good := int64(MagicBytesSize)
	for {
		frame, err := readFrame(br)
		if err != nil {
			return good, nil
		}
		if binary.BigEndian.Uint32(frame[:4]) != crc32c(frame[4:]) {
			return good, nil
		}
		good += int64(4 + len(frame))
	}
}

// Replay streams every entry at or after offset to fn, stopping at the
// first error fn returns.
func Replay(dir string, cipher adaptive.Cipher, offset uint64, fn func(*Entry) error) (applied, skipped int, err error) {
	r, err := NewReader(dir, cipher)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()
	r.Seek(offset)

	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			return applied, r.Skipped, nil
		}
		if err != nil {
			return applied, r.Skipped, err
		}
		if err := fn(e); err != nil {
			return applied, r.Skipped, err
		}
		applied++
	}
}
