package benchmark

import (
	"fmt"
	"testing"

	"github.com/yndnr/tidekv/internal/storage/wal"
)

func benchRecord(i int) []byte {
	return []byte(fmt.Sprintf("record-%08d-0123456789abcdef0123456789abcdef", i))
}

// BenchmarkWALAppend benchmarks WAL appends under each fsync policy.
func BenchmarkWALAppend(b *testing.B) {
	for _, policy := range []wal.FSyncPolicy{wal.FSyncNo, wal.FSyncEverySec, wal.FSyncAlways} {
		b.Run(string(policy), func(b *testing.B) {
			if policy == wal.FSyncAlways && testing.Short() {
				b.Skip("skipping fsync-per-write in short mode")
			}
			cfg := wal.DefaultConfig(b.TempDir())
			cfg.FSync = policy
			w, err := wal.NewWriter(cfg)
			if err != nil {
				b.Fatalf("NewWriter: %v", err)
			}
			defer w.Close()

			record := benchRecord(0)
			b.SetBytes(int64(len(record)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Append(wal.NewPutEntry(benchKey(i), record)); err != nil {
					b.Fatalf("Append: %v", err)
				}
			}
		})
	}
}

// BenchmarkWALReplay benchmarks replaying a journal at various sizes.
func BenchmarkWALReplay(b *testing.B) {
	for _, count := range []int{1000, 10000, 100000} {
		b.Run(fmt.Sprintf("entries_%d", count), func(b *testing.B) {
			dir := b.TempDir()
			cfg := wal.DefaultConfig(dir)
			cfg.FSync = wal.FSyncNo
			w, err := wal.NewWriter(cfg)
			if err != nil {
				b.Fatalf("NewWriter: %v", err)
			}
			for i := 0; i < count; i++ {
				var entry *wal.Entry
				if i%5 == 4 {
					entry = wal.NewDeleteEntry(benchKey(i - 1))
				} else {
					entry = wal.NewPutEntry(benchKey(i), benchRecord(i))
				}
				if err := w.Append(entry); err != nil {
					b.Fatalf("Append: %v", err)
				}
			}
			if err := w.Close(); err != nil {
				b.Fatalf("Close: %v", err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				applied, _, err := wal.Replay(dir, nil, 0, func(*wal.Entry) error { return nil })
				if err != nil {
					b.Fatalf("Replay: %v", err)
				}
				if applied != count {
					b.Fatalf("applied %d entries, want %d", applied, count)
				}
			}
		})
	}
}
