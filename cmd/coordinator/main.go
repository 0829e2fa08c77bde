// Command coordinator accepts worker nodes over TCP, runs the similarity
// pipeline with accumulation spread across them and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"moviesims/internal/cluster"
	"moviesims/internal/config"
	"moviesims/internal/data"
	"moviesims/internal/engine"
	"moviesims/internal/httpapi"
	"moviesims/internal/logging"
	"moviesims/internal/sink"
	"moviesims/pkg/styles"
)

func main() {
	cfgPath := flag.String("config", "moviesims.json", "path to the JSON config file")
	once := flag.Bool("once", false, "wait for min_workers, run the pipeline once and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Fatal("loading config", "err", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := serve(ctx, cfg, *once); err != nil {
		logging.Fatal("coordinator stopped", "err", err)
	}
}

func serve(ctx context.Context, cfg config.Config, once bool) error {
	var reg cluster.Registry
	if rc := cluster.NewRedisClient(cfg.Redis); rc != nil {
		defer rc.Close()
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rc.Ping(pctx).Err(); err != nil {
			logging.Warn("redis unavailable, worker registry disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			reg = cluster.NewRedisRegistry(rc)
			logging.Info("worker registry on redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		}
		cancel()
	}

	srv := cluster.NewServer(reg)
	disp := cluster.NewDispatcher(ctx, srv, cfg.Cluster.TaskTimeout.Std(), cfg.Concurrency.BlockSize)
	disp.LocalFallback = cfg.Cluster.MinWorkers == 0

	// stop ends the TCP listener once a -once run is done
	sctx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Cluster.ListenAddr) })

	runFn := func(ctx context.Context) (*engine.Report, engine.Stats, error) {
		return runPipeline(ctx, cfg, disp)
	}

	if once {
		g.Go(func() error {
			defer stop()
			styles.PrintFS("info", "[COORD] Esperando %d worker(s)...", cfg.Cluster.MinWorkers)
			if err := srv.WaitForWorkers(gctx, cfg.Cluster.MinWorkers); err != nil {
				return err
			}
			_, _, err := runFn(gctx)
			return err
		})
		return g.Wait()
	}

	runner := httpapi.NewRunner(gctx, runFn)
	api := httpapi.New(runner, srv, cfg.Cluster.MinWorkers)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}

	g.Go(func() error {
		styles.PrintFS("default", "[HTTP] Escuchando en %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err := g.Wait()
	runner.Wait()
	return err
}

func runPipeline(ctx context.Context, cfg config.Config, exec engine.Executor) (*engine.Report, engine.Stats, error) {
	names, err := data.LoadItemNames(cfg.Input.ItemsPath)
	if err != nil {
		return nil, engine.Stats{}, err
	}
	policy, err := data.ParsePolicy(cfg.Input.OnMalformed)
	if err != nil {
		return nil, engine.Stats{}, err
	}
	f, err := os.Open(cfg.Input.RatingsPath)
	if err != nil {
		return nil, engine.Stats{}, fmt.Errorf("opening ratings: %w", err)
	}
	defer f.Close()

	p := &engine.Pipeline{
		Executor: exec,
		Thresholds: engine.Thresholds{
			MinCoRatings: cfg.Similarity.MinCoRatings,
			MinScore:     cfg.Similarity.MinScore,
		},
		Policy:          policy,
		MaxItemsPerUser: cfg.Similarity.MaxItemsPerUser,
	}
	rep, st, err := p.Run(ctx, f, names)
	if err != nil {
		return nil, st, err
	}

	sinks, err := sink.FromConfig(ctx, cfg.Output)
	if err != nil {
		return nil, st, err
	}
	defer sinks.Close()
	if err := sinks.Write(ctx, rep.Records()); err != nil {
		return nil, st, err
	}
	return rep, st, nil
}
