// Command popular lists the most rated items.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"

	"moviesims/internal/config"
	"moviesims/internal/data"
	"moviesims/internal/logging"
	"moviesims/internal/popular"
	"moviesims/pkg/styles"
)

func main() {
	cfgPath := flag.String("config", "moviesims.json", "path to the JSON config file")
	n := flag.Int("n", 10, "number of items to list (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Fatal("loading config", "err", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, *n); err != nil {
		logging.Fatal("popular failed", "err", err)
	}
}

func run(ctx context.Context, cfg config.Config, n int) error {
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

	counts, err := popular.Count(ctx, data.NewRatingReader(f, policy).Next)
	if err != nil {
		return err
	}
	top, err := popular.Top(counts, n, names)
	if err != nil {
		return err
	}

	styles.PrintFS("header", "=== Ítems más valorados ===")
	for i, e := range top {
		fmt.Printf("%4d  %-50s  %s\n", i+1, e.Name, humanize.Comma(e.Count))
	}
	return nil
}
