package benchmark

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/tidekv/internal/core/command"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/storage/keyspace"
)

// KeyCounts defines the keyspace sizes for benchmarking.
var KeyCounts = []int{1000, 10000, 100000, 500000}

// SmallKeyCounts for quick benchmarks.
var SmallKeyCounts = []int{1000, 10000}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func benchKey(i int) string {
	return fmt.Sprintf("bench:key:%08d", i)
}

// newDispatcher creates a dispatcher over a fresh keyspace.
func newDispatcher(shards int) *command.Dispatcher {
	return command.New(keyspace.New(keyspace.WithShards(shards)), command.WithLogger(discard))
}

// prefill writes count string keys holding ULID values, one in ten with
// an expiry.
func prefill(b *testing.B, disp *command.Dispatcher, count int) {
	b.Helper()
	for i := 0; i < count; i++ {
		args := [][]byte{[]byte(benchKey(i)), []byte(ulid.Make().String())}
		if i%10 == 0 {
			args = append(args, []byte("EX"), []byte("3600"))
		}
		if _, err := disp.Execute(resp.Command{Name: "SET", Args: args}); err != nil {
			b.Fatalf("prefill: %v", err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs a benchmark function with various keyspace sizes.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
