// Command worker connects to a coordinator and accumulates the user blocks
// it is sent. It reconnects until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"moviesims/internal/cluster"
	"moviesims/internal/config"
	"moviesims/internal/logging"
	"moviesims/pkg/styles"
)

const reconnectDelay = 2 * time.Second

func main() {
	cfgPath := flag.String("config", "moviesims.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Fatal("loading config", "err", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	addr := cfg.Cluster.CoordinatorAddr
	for ctx.Err() == nil {
		c := cluster.NewClient(cfg.Concurrency.Workers)
		c.HeartbeatInterval = cfg.Cluster.HeartbeatInterval.Std()

		if err := c.Dial(ctx, addr); err != nil {
			logging.Warn("cannot reach coordinator", "addr", addr, "err", err)
		} else {
			styles.PrintFS("success", "[WORKER] Handshake completado. Worker ID asignado: %s", c.ID)
			if err := c.Run(ctx); err != nil {
				logging.Warn("connection lost", "err", err)
			}
		}

		select {
		case <-ctx.Done():
		case <-time.After(reconnectDelay):
		}
	}
	logging.Info("worker stopped")
}
