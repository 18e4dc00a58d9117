package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/quote-graph/internal/config"
	"github.com/rickgao/quote-graph/internal/database"
	"github.com/rickgao/quote-graph/internal/feed"
	"github.com/rickgao/quote-graph/internal/graph"
	"github.com/rickgao/quote-graph/internal/logging"
	"github.com/rickgao/quote-graph/internal/metrics"
	"github.com/rickgao/quote-graph/internal/sink"
	"github.com/rickgao/quote-graph/internal/sink/memory"
	"github.com/rickgao/quote-graph/internal/sink/timescale"
	"github.com/rickgao/quote-graph/internal/version"
	"github.com/rickgao/quote-graph/internal/viewer"
)

func main() {
	configPath := flag.String("config", "configs/quotegraph.local.yaml", "path to config file")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	input := flag.String("input", "", "quote feed file, - for stdin (overrides feed.path)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Bootstrap logger until the configured one exists
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := config.LoadEnv(*envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Feed.Path = *input
	}

	logger, err = logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	logger = logger.With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting quotegraph",
		"build", version.Get(),
		"config", *configPath,
		"engines", cfg.Sink.Engines,
		"feed", cfg.Feed.Path,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Engines
	var (
		caps    []sink.Capability
		memEng  *memory.Engine
		hub     *viewer.Hub
		tsPool  *pgxpool.Pool
		checker pinger
	)
	for _, name := range cfg.Sink.Engines {
		switch name {
		case config.EngineMemory:
			memEng = memory.New()
			caps = append(caps, memEng)
		case config.EngineWebSocket:
			hub = viewer.NewHub(
				viewer.WithLogger(logger.With("component", "viewer")),
				viewer.WithSendBuffer(cfg.Viewer.SendBuffer),
			)
			caps = append(caps, hub)
		case config.EngineTimescale:
			db := cfg.Database.Timescale
			logger.Info("connecting to database",
				"host", db.Host,
				"port", db.Port,
				"database", db.Name,
			)
			tsPool, err = database.Connect(ctx, db, "quotegraph-"+cfg.Instance.ID)
			if err != nil {
				// The engine stays configured so the adapter reports it degraded.
				logger.Error("failed to connect to database", "error", err)
				caps = append(caps, unavailable{name: name, err: err})
				continue
			}
			checker = tsPool
			caps = append(caps, timescale.New(tsPool, cfg.Sink.Table,
				timescale.WithLogger(logger.With("component", "timescale"))))
			logger.Info("database connected")
		}
	}
	if tsPool != nil {
		defer tsPool.Close()
	}

	adapter := sink.NewAdapter(combine(caps),
		sink.WithLogger(logger.With("component", "sink")),
		sink.WithMetrics(m),
	)

	// Feed
	src, err := openFeed(cfg.Feed.Path)
	if err != nil {
		logger.Error("failed to open feed", "path", cfg.Feed.Path, "error", err)
		os.Exit(1)
	}
	defer src.Close()

	g := graph.New(
		graph.Config{MaxUpdates: cfg.Feed.MaxUpdates, QueueSize: cfg.Feed.QueueSize},
		adapter,
		feed.NewDecoder(src),
		logger.With("component", "graph"),
		graph.WithMetrics(m),
	)

	// HTTP server
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: newHandler(handlerDeps{
			adapter:     adapter,
			graph:       g,
			db:          checker,
			memory:      memEng,
			hub:         hub,
			gatherer:    reg,
			metricsPath: cfg.Metrics.Path,
			viewerPath:  cfg.Viewer.Path,
		}),
	}
	go func() {
		logger.Info("starting http server", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := g.Start(ctx); err != nil {
		logger.Error("failed to start graph", "error", err)
		os.Exit(1)
	}

	logger.Info("quotegraph running",
		"sink_state", adapter.State().String(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
	)

	// Wait for shutdown. An exhausted feed keeps the chart served.
	select {
	case <-ctx.Done():
	case <-g.Done():
		if err := g.Err(); err != nil {
			logger.Error("feed stopped", "error", err)
		} else {
			logger.Info("feed complete, serving until shutdown", "stats", g.Stats())
		}
		<-ctx.Done()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := g.Stop(shutdownCtx); err != nil {
		logger.Error("graph stop failed", "error", err)
	}
	if hub != nil {
		hub.Close()
	}
	srv.Shutdown(shutdownCtx)

	logger.Info("quotegraph stopped")
}

// combine returns the capability the adapter drives: nil when no engine
// is configured, the engine itself when there is one, a fanout otherwise.
func combine(caps []sink.Capability) sink.Capability {
	switch len(caps) {
	case 0:
		return nil
	case 1:
		return caps[0]
	default:
		return sink.NewFanout(caps...)
	}
}

// openFeed opens path for reading; "-" is stdin.
func openFeed(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
