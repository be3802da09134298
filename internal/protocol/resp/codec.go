package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Protocol limits to prevent DoS attacks.
const (
	// MaxArrayLen limits the number of elements in a command array.
	MaxArrayLen = 1024

	// MaxBulkLen limits the size of a single bulk string (512KB).
	MaxBulkLen = 512 * 1024

	// MaxInlineLen limits inline command and header line length (4KB).
	MaxInlineLen = 4 * 1024

	// MaxFrameLen limits the bytes buffered for one incomplete frame (16MB).
	MaxFrameLen = 16 * 1024 * 1024

	// maxDepth limits nesting of reply arrays.
	maxDepth = 32
)

var (
	// ErrProtocol marks malformed input. It is terminal for the connection.
	ErrProtocol = errors.New("resp: protocol error")
	// ErrIncomplete signals that more bytes are needed to finish a frame.
	ErrIncomplete = errors.New("resp: incomplete frame")
)

var crlf = []byte("\r\n")

// Limits bounds what the decoder accepts.
type Limits struct {
	MaxArrayLen  int
	MaxBulkLen   int
	MaxInlineLen int
	MaxFrameLen  int
}

// DefaultLimits returns the server-side command limits.
func DefaultLimits() Limits {
	return Limits{
		MaxArrayLen:  MaxArrayLen,
		MaxBulkLen:   MaxBulkLen,
		MaxInlineLen: MaxInlineLen,
		MaxFrameLen:  MaxFrameLen,
	}
}

// replyLimits are used for replies, which may be far larger than commands.
var replyLimits = Limits{
	MaxArrayLen:  1 << 28,
	MaxBulkLen:   512 << 20,
	MaxInlineLen: 64 << 10,
	MaxFrameLen:  1 << 30,
}

func protoErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// ============================================================================
// Encoding
// ============================================================================

// Encode returns the wire form of v.
func Encode(v Value) []byte {
	return AppendValue(nil, v)
}

// AppendValue appends the wire form of v to dst.
func AppendValue(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindSimpleString:
		dst = append(dst, '+')
		dst = append(dst, v.Str...)
		return append(dst, crlf...)
	case KindError:
		dst = append(dst, '-')
		dst = append(dst, v.Str...)
		return append(dst, crlf...)
	case KindInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, v.Int, 10)
		return append(dst, crlf...)
	case KindBulkString:
		if v.Null {
			return append(dst, "$-1\r\n"...)
		}
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(v.Bulk)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, v.Bulk...)
		return append(dst, crlf...)
	case KindArray:
		if v.Null {
			return append(dst, "*-1\r\n"...)
		}
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(v.Array)), 10)
		dst = append(dst, crlf...)
		for _, el := range v.Array {
			dst = AppendValue(dst, el)
		}
		return dst
	default:
		return append(dst, "-ERR internal error\r\n"...)
	}
}

// AppendCommand appends a command as an array of bulk strings, the form
// clients send.
func AppendCommand(dst []byte, args ...[]byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, crlf...)
	for _, a := range args {
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(a)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, a...)
		dst = append(dst, crlf...)
	}
	return dst
}

// ============================================================================
// Decoding
// ============================================================================

// readLine returns the line at buf[0:] without CRLF and the bytes consumed.
func readLine(buf []byte, maxLen int) ([]byte, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > maxLen {
			return nil, 0, protoErr("line length exceeds limit %d", maxLen)
		}
		return nil, 0, ErrIncomplete
	}
	if i > maxLen+1 {
		return nil, 0, protoErr("line length exceeds limit %d", maxLen)
	}
	if i == 0 || buf[i-1] != '\r' {
		return nil, 0, protoErr("missing CRLF")
	}
	return buf[:i-1], i + 1, nil
}

// canonicalInt reports whether b is a decimal integer in the form Encode
// writes it: no sign other than '-', no leading zeros, no "-0".
func canonicalInt(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	digits := b
	if b[0] == '-' {
		digits = b[1:]
	}
	if len(digits) == 0 || (digits[0] == '0' && len(b) > 1) {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// parseLength parses a "$n" or "*n" header value. -1 is the nil form.
func parseLength(b []byte, max int, what string) (int, error) {
	if !canonicalInt(b) {
		return 0, protoErr("invalid %s length", what)
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, protoErr("invalid %s length", what)
	}
	if n < -1 {
		return 0, protoErr("invalid %s length", what)
	}
	if n > max {
		return 0, protoErr("%s length %d exceeds limit %d", what, n, max)
	}
	return n, nil
}

// Parse decodes one reply frame of any type from buf and returns it with
// the number of bytes consumed. ErrIncomplete means buf holds a valid
// prefix only.
func Parse(buf []byte) (Value, int, error) {
	return parseValue(buf, replyLimits, 0)
}

func parseValue(buf []byte, lim Limits, depth int) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, ErrIncomplete
	}
	if depth > maxDepth {
		return Value{}, 0, protoErr("nesting exceeds limit %d", maxDepth)
	}

	line, n, err := readLine(buf[1:], lim.MaxInlineLen)
	if err != nil {
		return Value{}, 0, err
	}
	n++ // type marker

	switch buf[0] {
	case '+':
		return Value{Kind: KindSimpleString, Str: string(line)}, n, nil
	case '-':
		return Value{Kind: KindError, Str: string(line)}, n, nil
	case ':':
		if !canonicalInt(line) {
			return Value{}, 0, protoErr("invalid integer")
		}
		v, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Value{}, 0, protoErr("invalid integer")
		}
		return Integer(v), n, nil
	case '$':
		size, err := parseLength(line, lim.MaxBulkLen, "bulk")
		if err != nil {
			return Value{}, 0, err
		}
		if size == -1 {
			return NilBulk(), n, nil
		}
		if len(buf) < n+size+2 {
			return Value{}, 0, ErrIncomplete
		}
		if buf[n+size] != '\r' || buf[n+size+1] != '\n' {
			return Value{}, 0, protoErr("invalid bulk terminator")
		}
		payload := make([]byte, size)
		copy(payload, buf[n:n+size])
		return Value{Kind: KindBulkString, Bulk: payload}, n + size + 2, nil
	case '*':
		count, err := parseLength(line, lim.MaxArrayLen, "array")
		if err != nil {
			return Value{}, 0, err
		}
		if count == -1 {
			return NilArray(), n, nil
		}
		vals := make([]Value, 0, min(count, 1024))
		for i := 0; i < count; i++ {
			el, m, err := parseValue(buf[n:], lim, depth+1)
			if err != nil {
				return Value{}, 0, err
			}
			vals = append(vals, el)
			n += m
		}
		return Value{Kind: KindArray, Array: vals}, n, nil
	default:
		return Value{}, 0, protoErr("unexpected type marker '%c'", buf[0])
	}
}

// Command is one decoded client request.
type Command struct {
	// Name is the upper-cased verb.
	Name string
	// Args excludes the verb. Slices are owned by the command.
	Args [][]byte
}

// Arity returns the argument count including the verb.
func (c Command) Arity() int {
	return len(c.Args) + 1
}

// DecodeCommands decodes commands with DefaultLimits.
func DecodeCommands(buf []byte) ([]Command, []byte, error) {
	return DefaultLimits().DecodeCommands(buf)
}

// DecodeCommands decodes every complete command in buf. The unconsumed
// tail is returned in rest and must be prepended to the next read. Empty
// arrays and blank inline lines are skipped.
func (lim Limits) DecodeCommands(buf []byte) (cmds []Command, rest []byte, err error) {
	for len(buf) > 0 {
		var args [][]byte
		var n int
		if buf[0] == '*' {
			args, n, err = lim.decodeMultibulk(buf)
		} else {
			args, n, err = lim.decodeInline(buf)
		}
		if errors.Is(err, ErrIncomplete) {
			if lim.MaxFrameLen > 0 && len(buf) > lim.MaxFrameLen {
				return cmds, nil, protoErr("frame exceeds limit %d", lim.MaxFrameLen)
			}
			return cmds, buf, nil
		}
		if err != nil {
			return cmds, nil, err
		}
		buf = buf[n:]
		if len(args) == 0 {
			continue
		}
		cmds = append(cmds, Command{Name: upperASCII(args[0]), Args: args[1:]})
	}
	return cmds, nil, nil
}

func (lim Limits) decodeMultibulk(buf []byte) ([][]byte, int, error) {
	line, n, err := readLine(buf[1:], lim.MaxInlineLen)
	if err != nil {
		return nil, 0, err
	}
	n++
	count, err := parseLength(line, lim.MaxArrayLen, "multibulk")
	if err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		return nil, n, nil
	}

	// Locate every argument first so the copy is one allocation.
	type span struct{ off, size int }
	spans := make([]span, 0, count)
	total := 0
	for i := 0; i < count; i++ {
		if n >= len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[n] != '$' {
			return nil, 0, protoErr("expected '$', got '%c'", buf[n])
		}
		line, m, err := readLine(buf[n+1:], lim.MaxInlineLen)
		if err != nil {
			return nil, 0, err
		}
		size, err := parseLength(line, lim.MaxBulkLen, "bulk")
		if err != nil {
			return nil, 0, err
		}
		if size < 0 {
			return nil, 0, protoErr("invalid bulk length")
		}
		n += 1 + m
		if len(buf) < n+size+2 {
			return nil, 0, ErrIncomplete
		}
		if buf[n+size] != '\r' || buf[n+size+1] != '\n' {
			return nil, 0, protoErr("invalid bulk terminator")
		}
		spans = append(spans, span{off: n, size: size})
		total += size
		n += size + 2
	}

	backing := make([]byte, total)
	args := make([][]byte, len(spans))
	pos := 0
	for i, s := range spans {
		copy(backing[pos:], buf[s.off:s.off+s.size])
		args[i] = backing[pos : pos+s.size : pos+s.size]
		pos += s.size
	}
	return args, n, nil
}

func (lim Limits) decodeInline(buf []byte) ([][]byte, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > lim.MaxInlineLen {
			return nil, 0, protoErr("too big inline request")
		}
		return nil, 0, ErrIncomplete
	}
	if i > lim.MaxInlineLen {
		return nil, 0, protoErr("too big inline request")
	}
	line := bytes.TrimSuffix(buf[:i], []byte{'\r'})
	fields := bytes.Fields(line)
	if len(fields) > lim.MaxArrayLen {
		return nil, 0, protoErr("too many inline arguments")
	}
	args := make([][]byte, len(fields))
	for j, f := range fields {
		args[j] = append([]byte(nil), f...)
	}
	return args, i + 1, nil
}

func upperASCII(b []byte) string {
	for _, c := range b {
		if c >= 'a' && c <= 'z' {
			return string(bytes.ToUpper(b))
		}
	}
	return string(b)
}
