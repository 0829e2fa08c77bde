// Command moviesims computes item-to-item similarities from a local ratings
// file and writes the report to the configured sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"

	"moviesims/internal/config"
	"moviesims/internal/data"
	"moviesims/internal/engine"
	"moviesims/internal/logging"
	"moviesims/internal/sink"
	"moviesims/pkg/styles"
)

func main() {
	cfgPath := flag.String("config", "moviesims.json", "path to the JSON config file")
	bench := flag.Bool("bench", false, "benchmark accumulation with 1..N workers and exit")
	benchMax := flag.Int("bench-max", 0, "highest worker count to benchmark (0 = 2*NumCPU)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Fatal("loading config", "err", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *bench {
		if err := runBench(ctx, cfg, *benchMax); err != nil {
			logging.Fatal("benchmark failed", "err", err)
		}
		return
	}
	if err := run(ctx, cfg); err != nil {
		logging.Fatal("run failed", "err", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	start := time.Now()

	names, err := data.LoadItemNames(cfg.Input.ItemsPath)
	if err != nil {
		return err
	}
	policy, err := data.ParsePolicy(cfg.Input.OnMalformed)
	if err != nil {
		return err
	}

	f, err := os.Open(cfg.Input.RatingsPath)
	if err != nil {
		return fmt.Errorf("opening ratings: %w", err)
	}
	defer f.Close()

	p := &engine.Pipeline{
		Executor: engine.LocalExecutor{Workers: cfg.Concurrency.Workers, BlockSize: cfg.Concurrency.BlockSize},
		Thresholds: engine.Thresholds{
			MinCoRatings: cfg.Similarity.MinCoRatings,
			MinScore:     cfg.Similarity.MinScore,
		},
		Policy:          policy,
		MaxItemsPerUser: cfg.Similarity.MaxItemsPerUser,
	}
	rep, st, err := p.Run(ctx, f, names)
	if err != nil {
		return err
	}

	sinks, err := sink.FromConfig(ctx, cfg.Output)
	if err != nil {
		return err
	}
	defer sinks.Close()
	if err := sinks.Write(ctx, rep.Records()); err != nil {
		return err
	}

	printSummary(st, len(rep.Anchors), time.Since(start))
	return nil
}

func runBench(ctx context.Context, cfg config.Config, maxWorkers int) error {
	policy, err := data.ParsePolicy(cfg.Input.OnMalformed)
	if err != nil {
		return err
	}
	f, err := os.Open(cfg.Input.RatingsPath)
	if err != nil {
		return fmt.Errorf("opening ratings: %w", err)
	}
	defer f.Close()

	rr := data.NewRatingReader(f, policy)
	users, err := engine.GroupByUser(ctx, rr.Next, cfg.Similarity.MaxItemsPerUser)
	if err != nil {
		return err
	}

	rows, best, err := engine.BenchmarkWorkers(ctx, users, maxWorkers, cfg.Concurrency.BlockSize)
	if err != nil {
		return err
	}
	engine.PrintBench(os.Stderr, rows)
	styles.FprintFS(os.Stderr, "success", "Mejor número de workers: %d", best)
	return nil
}

// printSummary goes to stderr so the TSV report can own stdout.
func printSummary(st engine.Stats, anchors int, total time.Duration) {
	w := os.Stderr
	styles.FprintFS(w, "header", "=== Similitudes por coseno ===")
	styles.FprintFS(w, "info", "ratings leídos:     %s", humanize.Comma(int64(st.Ratings)))
	if st.Skipped > 0 {
		styles.FprintFS(w, "error", "líneas descartadas: %s", humanize.Comma(int64(st.Skipped)))
	}
	styles.FprintFS(w, "info", "usuarios:           %s", humanize.Comma(int64(st.Users)))
	styles.FprintFS(w, "info", "pares acumulados:   %s", humanize.Comma(int64(st.PairKeys)))
	styles.FprintFS(w, "info", "pares aceptados:    %s", humanize.Comma(int64(st.Results)))
	styles.FprintFS(w, "info", "ítems ancla:        %s", humanize.Comma(int64(anchors)))
	styles.FprintFS(w, "dim", "agrupar %s · acumular %s · filtrar %s · ordenar %s",
		st.Group.Round(time.Millisecond), st.Accumulate.Round(time.Millisecond),
		st.Reduce.Round(time.Millisecond), st.Shape.Round(time.Millisecond))
	styles.FprintFS(w, "success", "listo en %s", total.Round(time.Millisecond))
}
