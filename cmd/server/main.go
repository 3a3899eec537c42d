package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atena-edu/enem-helper/internal/api"
	"github.com/atena-edu/enem-helper/internal/exercise"
	"github.com/atena-edu/enem-helper/internal/pipeline"
	"github.com/atena-edu/enem-helper/internal/platform/cache"
	"github.com/atena-edu/enem-helper/internal/platform/config"
	"github.com/atena-edu/enem-helper/internal/platform/database"
	"github.com/atena-edu/enem-helper/internal/store"
	"github.com/atena-edu/enem-helper/internal/topic"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to initialise dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewServer(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildDeps connects the configured backends. Without a database URL the
// exercises live in memory; without a cache URL results are not cached.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	classifier, err := topic.LoadClassifier(cfg.Topic.RulesPath)
	if err != nil {
		return api.Deps{}, cleanup, err
	}
	hint := topic.RangeHint{From: cfg.Topic.HintFrom, To: cfg.Topic.HintTo, Area: exercise.AreaMathematics}

	deps := api.Deps{
		Pipeline: pipeline.New(pipeline.Config{Classifier: classifier, Hint: &hint, Logger: logger}),
		Runner: pipeline.RunnerConfig{
			Workers: cfg.Extraction.Workers,
			Timeout: cfg.Extraction.Timeout,
			Retries: cfg.Extraction.Retries,
			Backoff: cfg.Extraction.Backoff,
		},
		Checks: map[string]api.Checker{},
		Logger: logger,
	}

	if cfg.HasDatabase() {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return api.Deps{}, cleanup, err
		}
		closers = append(closers, db.Close)
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return api.Deps{}, cleanup, err
			}
		}
		st, err := store.NewPostgresStore(db.Pool)
		if err != nil {
			return api.Deps{}, cleanup, err
		}
		deps.Store = st
		deps.Events = store.NewPostgresEventLogger(db.Pool)
		deps.Checks["database"] = db
		slog.Info("using postgres exercise store")
	} else {
		deps.Store = store.NewMemoryStore()
		slog.Warn("ATENA_DATABASE_URL not set, exercises are kept in memory")
	}

	if cfg.HasCache() {
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.TTL)
		if err != nil {
			return api.Deps{}, cleanup, err
		}
		closers = append(closers, func() { _ = c.Close() })
		deps.Cache = c
		deps.Checks["cache"] = c
	}

	return deps, cleanup, nil
}
