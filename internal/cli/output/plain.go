package output

import "github.com/yndnr/tidekv/internal/protocol/resp"

// ToPlain converts a reply into JSON/YAML friendly values: strings,
// int64, nil, []any, and {"error": line} for error replies.
func ToPlain(v resp.Value) any {
	switch v.Kind {
	case resp.KindSimpleString:
		return v.Str
	case resp.KindError:
		return map[string]string{"error": v.Str}
	case resp.KindInteger:
		return v.Int
	case resp.KindBulkString:
		if v.Null {
			return nil
		}
		return string(v.Bulk)
	case resp.KindArray:
		if v.Null {
			return nil
		}
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = ToPlain(e)
		}
		return out
	}
	return nil
}

// plain unwraps replies; other data passes through.
func plain(data any) any {
	switch v := data.(type) {
	case resp.Value:
		return ToPlain(v)
	case *resp.Value:
		return ToPlain(*v)
	}
	return data
}
