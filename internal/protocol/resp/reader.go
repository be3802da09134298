package resp

import (
	"bufio"
	"errors"
	"io"
)

// Reader reads reply frames from a stream. It is used by clients.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 16*1024)
	}
	return &Reader{r: br}
}

// ReadValue blocks until one complete frame has been read.
func (rd *Reader) ReadValue() (Value, error) {
	for {
		if len(rd.buf) > 0 {
			v, n, err := Parse(rd.buf)
			if err == nil {
				rd.buf = rd.buf[n:]
				if len(rd.buf) == 0 {
					rd.buf = nil
				}
				return v, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				return Value{}, err
			}
		}

		chunk := make([]byte, 4096)
		n, err := rd.r.Read(chunk)
		rd.buf = append(rd.buf, chunk[:n]...)
		if err != nil && n == 0 {
			if errors.Is(err, io.EOF) && len(rd.buf) > 0 {
				return Value{}, io.ErrUnexpectedEOF
			}
			return Value{}, err
		}
	}
}

// Writer writes commands to a stream.
type Writer struct {
	w   *bufio.Writer
	buf []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteCommand buffers one command. Call Flush to send it.
func (wr *Writer) WriteCommand(args ...[]byte) error {
	wr.buf = AppendCommand(wr.buf[:0], args...)
	_, err := wr.w.Write(wr.buf)
	return err
}

// WriteStrings is WriteCommand for string arguments.
func (wr *Writer) WriteStrings(args ...string) error {
	bs := make([][]byte, len(args))
	for i, a := range args {
		bs[i] = []byte(a)
	}
	return wr.WriteCommand(bs...)
}

// Flush sends buffered commands.
func (wr *Writer) Flush() error {
	return wr.w.Flush()
}
