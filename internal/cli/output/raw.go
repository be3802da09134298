package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// RawFormatter prints replies like redis-cli and tables as aligned
// columns. Anything else is printed as YAML.
type RawFormatter struct{}

// Format implements Formatter.
func (f *RawFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case resp.Value:
		return writeLines(w, Lines(v))
	case *resp.Value:
		return writeLines(w, Lines(*v))
	case *Table:
		return v.Render(w)
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	}
	return (&YAMLFormatter{}).Format(w, data)
}

// Lines renders one reply as redis-cli would, one string per line.
func Lines(v resp.Value) []string {
	switch v.Kind {
	case resp.KindSimpleString:
		return []string{v.Str}
	case resp.KindError:
		return []string{"(error) " + v.Str}
	case resp.KindInteger:
		return []string{"(integer) " + strconv.FormatInt(v.Int, 10)}
	case resp.KindBulkString:
		if v.Null {
			return []string{"(nil)"}
		}
		return []string{strconv.Quote(string(v.Bulk))}
	case resp.KindArray:
		if v.Null {
			return []string{"(nil)"}
		}
		if len(v.Array) == 0 {
			return []string{"(empty array)"}
		}
		width := len(strconv.Itoa(len(v.Array)))
		var out []string
		for i, e := range v.Array {
			label := fmt.Sprintf("%*d) ", width, i+1)
			pad := strings.Repeat(" ", len(label))
			for j, line := range Lines(e) {
				if j == 0 {
					out = append(out, label+line)
				} else {
					out = append(out, pad+line)
				}
			}
		}
		return out
	}
	return []string{"(unknown reply)"}
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return err
		}
	}
	return nil
}
