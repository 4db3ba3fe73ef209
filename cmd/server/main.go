package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/finsightlab/finsight/internal/config"
	"github.com/finsightlab/finsight/internal/extract"
	"github.com/finsightlab/finsight/internal/logging"
	"github.com/finsightlab/finsight/internal/match"
	"github.com/finsightlab/finsight/internal/resolve"
	"github.com/finsightlab/finsight/internal/session"
	"github.com/finsightlab/finsight/internal/store"
	"github.com/finsightlab/finsight/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"extract_enabled", cfg.Extract.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	db := store.New(pool)
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Extraction fallback: real model when enabled, a no-op otherwise
	var extractor extract.Extractor = extract.Disabled{}
	var classifier extract.CategoryClassifier = extract.Disabled{}
	if cfg.Extract.Enabled {
		gem, err := extract.NewGemini(ctx, cfg.Extract.Model)
		if err != nil {
			slog.Error("failed to create extraction client", "error", err)
			os.Exit(1)
		}
		extractor = gem
		classifier = gem
		slog.Info("extraction enabled", "model", cfg.Extract.Model)
	}

	resolveCfg := cfg.ResolveConfig()
	entityResolver := resolve.NewEntityResolver(match.TokenOverlap{}, extractor, resolveCfg)
	categoryResolver := resolve.NewCategoryResolver(match.TokenOverlap{}, classifier, resolveCfg)

	svc := session.NewService(db, entityResolver, categoryResolver, cfg.Detect.DetectOptions())

	server := web.NewServer(svc, db, cfg)

	// Graceful shutdown: main blocks on done after the listener closes, so
	// in-flight resolution passes finish before the pool is torn down.
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		svc.Wait()
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("server stopped")
}
