package value

// List is a double-ended queue of byte strings backed by a ring buffer.
type List struct {
	buf  [][]byte
	head int
	n    int
}

// NewList creates an empty list.
func NewList() *List {
	return &List{}
}

func (l *List) Type() Type  { return TypeList }
func (l *List) Len() int    { return l.n }
func (l *List) collection() {}

// Encoding reports "listpack" for small lists and "quicklist" otherwise.
func (l *List) Encoding() string {
	if l.n <= maxListpackItems {
		return "listpack"
	}
	return "quicklist"
}

func (l *List) grow() {
	if l.n < len(l.buf) {
		return
	}
	size := len(l.buf) * 2
	if size == 0 {
		size = 8
	}
	buf := make([][]byte, size)
	for i := 0; i < l.n; i++ {
		buf[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	l.buf = buf
	l.head = 0
}

func (l *List) slot(i int) int {
	return (l.head + i) % len(l.buf)
}

// PushFront inserts v at the head.
func (l *List) PushFront(v []byte) {
	l.grow()
	l.head = (l.head - 1 + len(l.buf)) % len(l.buf)
	l.buf[l.head] = append([]byte(nil), v...)
	l.n++
}

// PushBack inserts v at the tail.
func (l *List) PushBack(v []byte) {
	l.grow()
	l.buf[l.slot(l.n)] = append([]byte(nil), v...)
	l.n++
}

// PopFront removes and returns the head element.
func (l *List) PopFront() ([]byte, bool) {
	if l.n == 0 {
		return nil, false
	}
	v := l.buf[l.head]
	l.buf[l.head] = nil
	l.head = (l.head + 1) % len(l.buf)
	l.n--
	return v, true
}

// PopBack removes and returns the tail element.
func (l *List) PopBack() ([]byte, bool) {
	if l.n == 0 {
		return nil, false
	}
	i := l.slot(l.n - 1)
	v := l.buf[i]
	l.buf[i] = nil
	l.n--
	return v, true
}

// Index returns the element at i. Negative indexes count from the tail.
func (l *List) Index(i int) ([]byte, bool) {
	if i < 0 {
		i += l.n
	}
	if i < 0 || i >= l.n {
		return nil, false
	}
	return l.buf[l.slot(i)], true
}

// Range returns the elements between start and stop inclusive, with
// negative indexes counted from the tail and out-of-range bounds clamped.
func (l *List) Range(start, stop int) [][]byte {
	start, stop, ok := ClampRange(start, stop, l.n)
	if !ok {
		return [][]byte{}
	}
	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, l.buf[l.slot(i)])
	}
	return out
}

// All returns every element from head to tail.
func (l *List) All() [][]byte {
	return l.Range(0, -1)
}

// ClampRange normalizes an inclusive [start, stop] window over n elements.
// ok is false when the window is empty.
func ClampRange(start, stop, n int) (int, int, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
