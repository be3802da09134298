package repl

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnbalancedQuotes reports a line whose quotes do not close.
var ErrUnbalancedQuotes = errors.New("invalid argument(s): unbalanced quotes")

// SplitArgs splits a line into arguments. Double quotes support \n, \r,
// \t, \\, \" and \xHH escapes; single quotes only \'. A closing quote
// must be followed by a space or the end of the line.
func SplitArgs(line string) ([]string, error) {
	var (
		args []string
		cur  strings.Builder
		in   bool
	)
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if in {
				args = append(args, cur.String())
				cur.Reset()
				in = false
			}
			i++

		case c == '"':
			n, err := readDouble(line[i+1:], &cur)
			if err != nil {
				return nil, err
			}
			i += n + 1
			if i < len(line) && line[i] != ' ' && line[i] != '\t' {
				return nil, ErrUnbalancedQuotes
			}
			in = true

		case c == '\'':
			n, err := readSingle(line[i+1:], &cur)
			if err != nil {
				return nil, err
			}
			i += n + 1
			if i < len(line) && line[i] != ' ' && line[i] != '\t' {
				return nil, ErrUnbalancedQuotes
			}
			in = true

		default:
			cur.WriteByte(c)
			in = true
			i++
		}
	}
	if in {
		args = append(args, cur.String())
	}
	return args, nil
}

// readDouble consumes a double-quoted body up to and including the closing
// quote and returns the number of bytes read.
func readDouble(s string, out *strings.Builder) (int, error) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			return i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return 0, ErrUnbalancedQuotes
			}
			i++
			switch s[i] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case 'b':
				out.WriteByte('\b')
			case 'a':
				out.WriteByte('\a')
			case 'x':
				if i+2 < len(s) {
					if b, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
						out.WriteByte(byte(b))
						i += 2
						continue
					}
				}
				out.WriteByte('x')
			default:
				out.WriteByte(s[i])
			}
		default:
			out.WriteByte(s[i])
		}
	}
	return 0, ErrUnbalancedQuotes
}

func readSingle(s string, out *strings.Builder) (int, error) {
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '\'':
			out.WriteByte('\'')
			i++
		case s[i] == '\'':
			return i + 1, nil
		default:
			out.WriteByte(s[i])
		}
	}
	return 0, ErrUnbalancedQuotes
}
