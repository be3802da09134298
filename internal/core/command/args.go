package command

import (
	"bytes"
	"math"
	"strconv"

	"github.com/yndnr/tidekv/internal/core/domain"
)

func upper(b []byte) string {
	return string(bytes.ToUpper(b))
}

func keyList(args [][]byte) []string {
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return keys
}

func parseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, domain.ErrNotInteger
	}
	return n, nil
}

// parseIndex parses a list or rank index.
func parseIndex(b []byte) (int, error) {
	n, err := parseInt(b)
	if err != nil {
		return 0, err
	}
	switch {
	case n > math.MaxInt32:
		n = math.MaxInt32
	case n < math.MinInt32:
		n = math.MinInt32
	}
	return int(n), nil
}

// parseFloat accepts the forms Redis accepts for scores, including inf.
func parseFloat(b []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) {
		return 0, domain.ErrNotFloat
	}
	return f, nil
}

// parseCount parses the optional count of LPOP/RPOP.
func parseCount(b []byte) (int, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || n < 0 {
		return 0, domain.ErrNotPositive
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n), nil
}

// expireUnit converts a relative or absolute expire argument to Unix ms.
type expireUnit struct {
	millis   bool
	absolute bool
}

// at returns the absolute expiry instant for n in the unit, relative to now.
func (u expireUnit) at(n, now int64) (int64, bool) {
	ms := n
	if !u.millis {
		if n > math.MaxInt64/1000 || n < math.MinInt64/1000 {
			return 0, false
		}
		ms = n * 1000
	}
	if u.absolute {
		return ms, true
	}
	if ms > 0 && now > math.MaxInt64-ms {
		return 0, false
	}
	return now + ms, true
}
