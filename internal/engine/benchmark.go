package engine

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"moviesims/pkg/styles"
	"moviesims/pkg/types"
)

// BenchRow is one line of the worker-count benchmark.
type BenchRow struct {
	Workers int
	Millis  int64
	Speedup float64
}

// BenchmarkWorkers times LocalExecutor accumulation with 1..maxWorkers
// goroutines and returns every measurement plus the fastest worker count.
func BenchmarkWorkers(ctx context.Context, users []types.UserRatings, maxWorkers, blockSize int) ([]BenchRow, int, error) {
	if maxWorkers < 1 {
		maxWorkers = 2 * runtime.NumCPU()
	}

	results := make([]BenchRow, 0, maxWorkers)
	var baseMs int64
	best := 0

	for w := 1; w <= maxWorkers; w++ {
		t0 := time.Now()
		if _, err := (LocalExecutor{Workers: w, BlockSize: blockSize}).Accumulate(ctx, users); err != nil {
			return results, 0, err
		}
		ms := time.Since(t0).Milliseconds()
		if ms == 0 {
			ms = 1
		}
		if w == 1 {
			baseMs = ms
		}
		results = append(results, BenchRow{Workers: w, Millis: ms, Speedup: float64(baseMs) / float64(ms)})
		if ms < results[best].Millis {
			best = len(results) - 1
		}
	}
	return results, results[best].Workers, nil
}

// PrintBench writes the benchmark table.
func PrintBench(w io.Writer, results []BenchRow) {
	styles.FprintFS(w, "header", "=== Benchmark de goroutines para acumulación de pares ===")
	styles.FprintFS(w, "dim", "GOMAXPROCS = %d", runtime.GOMAXPROCS(0))
	fmt.Fprintf(w, "%8s  %12s  %8s\n", "workers", "ms", "speedup")
	for _, r := range results {
		fmt.Fprintf(w, "%8d  %12d  %8.2f\n", r.Workers, r.Millis, r.Speedup)
	}
}
