package keyspace

// Pattern is a compiled Redis-style glob: '*' matches any run, '?' one
// byte, '[abc]', '[^a-z]' classes, and '\' escapes the next byte. Unlike
// path.Match, '/' has no special meaning.
type Pattern struct {
	src      string
	matchAll bool
}

// CompilePattern prepares a pattern for matching.
func CompilePattern(p string) *Pattern {
	return &Pattern{src: p, matchAll: p == "*"}
}

// Match reports whether key matches the pattern.
func (p *Pattern) Match(key string) bool {
	if p.matchAll {
		return true
	}
	return globMatch(p.src, key)
}

func globMatch(pat, s string) bool {
	// Backtracking over the last '*' keeps this linear for typical patterns.
	px, sx := 0, 0
	starPx, starSx := -1, -1
	for sx < len(s) {
		if px < len(pat) {
			switch pat[px] {
			case '*':
				starPx, starSx = px, sx
				px++
				continue
			case '?':
				px++
				sx++
				continue
			case '[':
				if ok, next := matchClass(pat, px, s[sx]); next > 0 {
					if ok {
						px = next
						sx++
						continue
					}
					break
				}
				if s[sx] == '[' {
					px++
					sx++
					continue
				}
			case '\\':
				if px+1 < len(pat) && pat[px+1] == s[sx] {
					px += 2
					sx++
					continue
				}
			default:
				if pat[px] == s[sx] {
					px++
					sx++
					continue
				}
			}
		}
		if starPx >= 0 {
			starSx++
			px, sx = starPx+1, starSx
			continue
		}
		return false
	}
	for px < len(pat) && pat[px] == '*' {
		px++
	}
	return px == len(pat)
}

// matchClass evaluates the class starting at pat[start] == '['. It returns
// whether c matches and the index after the closing ']', or next == 0 for
// an unterminated class.
func matchClass(pat string, start int, c byte) (ok bool, next int) {
	i := start + 1
	negate := false
	if i < len(pat) && pat[i] == '^' {
		negate = true
		i++
	}
	matched := false
	first := true
	for i < len(pat) && (pat[i] != ']' || first) {
		first = false
		lo := pat[i]
		if lo == '\\' && i+1 < len(pat) {
			i++
			lo = pat[i]
		}
		hi := lo
		if i+2 < len(pat) && pat[i+1] == '-' && pat[i+2] != ']' {
			hi = pat[i+2]
			i += 2
			if lo > hi {
				lo, hi = hi, lo
			}
		}
		if c >= lo && c <= hi {
			matched = true
		}
		i++
	}
	if i >= len(pat) {
		return false, 0
	}
	return matched != negate, i + 1
}
