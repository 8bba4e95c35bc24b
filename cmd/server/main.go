package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/config"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/database"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/deal"
	apihandlers "github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/handlers/api"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/middleware"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/storage"
	"github.com/morpheus18-glitch/Autolytiq-desk-studio-sub006/internal/taxrules"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Rule sources: the configured one first, then the embedded bundle.
	var pool *pgxpool.Pool
	var sources []taxrules.Source
	switch cfg.Rules.Source {
	case config.SourceFile:
		sources = append(sources, taxrules.FileSource{Dir: cfg.Rules.Dir})
	case config.SourceHTTP:
		sources = append(sources, taxrules.NewHTTPSource(cfg.Rules.URL, cfg.Rules.HTTPTimeout))
	case config.SourcePostgres:
		pool, err = database.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected, migrations complete")
		sources = append(sources, taxrules.NewPostgresSource(pool))
	case config.SourceObject:
		objects, err := storage.Open(context.Background(), cfg.Storage)
		if err != nil {
			slog.Error("failed to open object storage", "error", err)
			os.Exit(1)
		}
		sources = append(sources, taxrules.NewObjectSource(objects, cfg.Storage.Prefix))
	}
	if cfg.Rules.Source == config.SourceEmbedded || cfg.Rules.FallbackEmbedded {
		sources = append(sources, taxrules.EmbeddedSource{})
	}

	store := taxrules.NewStore(nil)
	syncer := taxrules.NewSyncer(store, logger, sources...)

	var scheduler *taxrules.Scheduler
	var initial taxrules.SyncResult
	if cfg.Rules.ReloadEnabled {
		scheduler = taxrules.NewScheduler(syncer, taxrules.SchedulerConfig{
			Interval:    cfg.Rules.ReloadInterval,
			MaxRetries:  cfg.Rules.MaxRetries,
			RetryDelay:  cfg.Rules.RetryDelay,
			SyncTimeout: cfg.Rules.HTTPTimeout + 30*time.Second,
		}, logger)
		initial = scheduler.Start(context.Background())
	} else {
		initial = syncer.Sync(context.Background())
	}
	if initial.Error != nil {
		slog.Error("failed to load tax rules", "error", initial.Error)
		os.Exit(1)
	}
	slog.Info("tax rules loaded",
		"source", initial.Source,
		"rules_version", initial.Version,
		"jurisdictions", initial.Jurisdictions,
		"states", initial.States,
	)

	engine := deal.NewEngine(store)
	quoteHandler := apihandlers.NewQuoteHandler(engine, logger)

	apiMux := http.NewServeMux()
	quoteHandler.RegisterRoutes(apiMux)

	// Apply API middleware stack (CORS for the desk UI, rate limiting, logging, recovery)
	var apiChain http.Handler = apiMux
	apiChain = middleware.SecurityHeaders(apiChain)
	if cfg.CORSOrigin != "" {
		apiChain = middleware.CORS(cfg.CORSOrigin)(apiChain)
	}
	var limiter *middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, "/api/v1/health")
		apiChain = limiter.Middleware(apiChain)
	}
	apiChain = middleware.Recover(logger)(apiChain)
	apiChain = middleware.RequestLogger(logger)(apiChain)
	apiChain = middleware.RequestID(apiChain)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiChain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if limiter != nil {
		limiter.Stop()
	}
	if err := apiServer.Shutdown(ctx); err != nil {
		slog.Error("api server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
