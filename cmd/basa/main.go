// Command basa is the remedial session server. It stores reading session
// results in PostgreSQL and serves them over an HTTP JSON API, with health
// probes and Prometheus metrics alongside.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/basa-ph/basa/internal/api"
	"github.com/basa-ph/basa/internal/config"
	"github.com/basa-ph/basa/internal/health"
	"github.com/basa-ph/basa/internal/observe"
	"github.com/basa-ph/basa/internal/remedial"
	"github.com/basa-ph/basa/internal/remedial/postgres"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file (empty: environment only)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "basa: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("basa starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.PostgresDSN == "" {
		slog.Error("database.postgres_dsn is required; set it in the config or BASA_POSTGRES_DSN")
		return 1
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to postgres", "err", err)
		return 1
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply migrations", "err", err)
			return 1
		}
	}
	store := postgres.New(pool)

	// ── Service ───────────────────────────────────────────────────────────────
	svc := remedial.NewService(store,
		remedial.WithMasteryThreshold(cfg.Scoring.MasteryThreshold),
		remedial.WithTargetWPM(cfg.Scoring.TargetWPM),
		remedial.WithMetrics(metrics),
	)

	// ── Config hot reload ─────────────────────────────────────────────────────
	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			applyConfigChange(config.Diff(old, new), &level, svc)
		})
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		}
	}

	// ── HTTP ──────────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.NewHandler(svc).Register(mux)
	health.New(
		health.Ping("database", store),
		health.Checker{Name: "schema", Check: func(ctx context.Context) error { return postgres.CheckSchema(ctx, pool) }},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path, or only the environment when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml or pass -config \"\" to use the environment only", path)
	}
	return cfg, err
}

// applyConfigChange applies the hot-reloadable parts of a config change.
func applyConfigChange(d config.ConfigDiff, level *slog.LevelVar, svc *remedial.Service) {
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MasteryThresholdChanged {
		svc.SetMasteryThreshold(d.NewMasteryThreshold)
		slog.Info("mastery threshold changed", "threshold", d.NewMasteryThreshold)
	}
	for _, field := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "field", field)
	}
}
