package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Progress reports completed requests of a repeated command.
type Progress struct {
	w      io.Writer
	title  string
	total  int64
	width  int
	start  time.Time
	every  int64
	mu     sync.Mutex
	done   int64
	failed int64
}

// NewProgress creates a progress bar for total requests.
func NewProgress(w io.Writer, title string, total int64) *Progress {
	every := total / 100
	if every < 1 {
		every = 1
	}
	return &Progress{
		w:     w,
		title: title,
		total: total,
		width: 30,
		start: time.Now(),
		every: every,
	}
}

// Add records one finished request. Rendering is throttled to roughly
// one update per percent.
func (p *Progress) Add(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if err != nil {
		p.failed++
	}
	if p.done%p.every == 0 || p.done == p.total {
		p.render()
	}
}

// Finish renders the final state and returns the counters.
func (p *Progress) Finish() (done, failed int64, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
	return p.done, p.failed, time.Since(p.start)
}

func (p *Progress) render() {
	percent := 1.0
	if p.total > 0 {
		percent = min(float64(p.done)/float64(p.total), 1)
	}
	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	rate := 0.0
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% %d/%d %.0f req/s",
		p.title, bar, percent*100, p.done, p.total, rate)
	if p.failed > 0 {
		fmt.Fprintf(p.w, " (%d failed)", p.failed)
	}
}
