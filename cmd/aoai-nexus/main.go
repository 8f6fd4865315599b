package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pysugar/aoai-nexus/internal/auth/token"
	"github.com/pysugar/aoai-nexus/internal/config"
	"github.com/pysugar/aoai-nexus/internal/db"
	"github.com/pysugar/aoai-nexus/internal/logging"
	"github.com/pysugar/aoai-nexus/internal/proxy/handlers"
	"github.com/pysugar/aoai-nexus/internal/proxy/middleware"
	"github.com/pysugar/aoai-nexus/internal/reliability"
	"github.com/pysugar/aoai-nexus/internal/routing"
	"github.com/pysugar/aoai-nexus/internal/stats"
	"github.com/pysugar/aoai-nexus/internal/version"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default: $NEXUS_CONFIG or config/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aoai-nexus %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		return
	}

	logger, err := logging.New(os.Getenv("NEXUS_LOG_LEVEL"), os.Getenv("NEXUS_LOG_FORMAT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	store := config.NewStore(path, cfg, logger)

	// Token provider
	tokens, err := token.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token provider: %w", err)
	}

	// Router index follows every config swap
	router := routing.NewRouter()
	router.Rebuild(cfg)
	store.OnReplace(func(next *config.Config) {
		router.Rebuild(next)
		if err := tokens.Reconfigure(next.Auth); err != nil {
			logger.Error("auth settings rejected, keeping previous token provider", zap.Error(err))
		}
	})

	// Statistics sinks
	counters := stats.NewCounters()
	sinks := stats.Multi{counters}

	var registry *prometheus.Registry
	if cfg.Server.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sinks = append(sinks, stats.NewPrometheus(registry))
	}

	var ledger *stats.Ledger
	if cfg.Server.UsageLedger.Enabled {
		database, err := db.Open(cfg.Server.UsageLedger.Path)
		if err != nil {
			return fmt.Errorf("failed to open usage ledger: %w", err)
		}
		ledger = stats.NewLedger(database, logger)
		sinks = append(sinks, ledger)
	}

	engine := reliability.NewEngine(newUpstreamClient(), logger)
	proxy := handlers.NewProxy(store, router, tokens, engine, sinks, logger)

	// Create router
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handlers.HealthHandler())
	if registry != nil {
		r.Handle(cfg.Server.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/admin/api", func(r chi.Router) {
		r.Use(middleware.AdminAuth(store))
		var summarizer handlers.UsageSummarizer
		if ledger != nil {
			summarizer = ledger
		}
		r.Get("/stats", handlers.AdminStatsHandler(counters, summarizer, logger))
		r.Post("/reload", handlers.AdminReloadHandler(store))
		r.Get("/version", handlers.VersionHandler())
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(store))
		r.Get("/models", handlers.ModelsListHandler(store))
		r.Post("/chat/completions", proxy.Handler(routing.RouteChatCompletions))
		r.Post("/responses", proxy.Handler(routing.RouteResponses))
		r.Post("/images/generations", proxy.Handler(routing.RouteImageGenerations))
	})

	go func() {
		if err := store.Watch(ctx); err != nil {
			logger.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("aoai-nexus starting",
		zap.String("addr", addr),
		zap.String("config", path),
		zap.String("version", version.Version),
		zap.Int("models", len(cfg.Models)),
		zap.Bool("metrics", registry != nil),
		zap.Bool("usage_ledger", ledger != nil))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	if ledger != nil {
		if err := ledger.Close(shutdownCtx); err != nil {
			logger.Warn("usage ledger flush incomplete", zap.Error(err))
		}
	}
	return nil
}

// newUpstreamClient has no overall timeout; the reliability policy owns timing.
// Compression is disabled so stream bodies arrive as identity-encoded bytes.
func newUpstreamClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	transport.MaxIdleConnsPerHost = 32
	transport.ResponseHeaderTimeout = 0
	return &http.Client{Transport: transport}
}
