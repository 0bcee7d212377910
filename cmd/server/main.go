package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sigongjoa/exam-builder/internal/activity"
	"github.com/sigongjoa/exam-builder/internal/ai"
	"github.com/sigongjoa/exam-builder/internal/concept"
	"github.com/sigongjoa/exam-builder/internal/curriculum"
	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/generate"
	"github.com/sigongjoa/exam-builder/internal/platform/cache"
	"github.com/sigongjoa/exam-builder/internal/platform/config"
	"github.com/sigongjoa/exam-builder/internal/platform/database"
	"github.com/sigongjoa/exam-builder/internal/platform/logging"
	"github.com/sigongjoa/exam-builder/internal/platform/metrics"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/server"
	"github.com/sigongjoa/exam-builder/internal/student"
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

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	checks := map[string]server.HealthChecker{"database": db}

	var indexOpts []curriculum.IndexOption
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer c.Close()
		indexOpts = append(indexOpts, curriculum.WithCache(c, cfg.Cache.TTL))
		checks["cache"] = c
	}

	index := curriculum.NewIndex(curriculum.NewPostgresStore(db.Pool), indexOpts...)
	if err := seedCurriculum(ctx, index, cfg.CurriculumPath); err != nil {
		return err
	}

	router := newAIRouter(cfg.AI)
	checks["ai"] = router

	m := metrics.New()
	events := activity.NewPostgresEventLogger(db.Pool)
	problems := problem.NewPostgresStore(db.Pool)
	students := student.NewPostgresStore(db.Pool)

	gen := generate.New(router, problems,
		generate.WithMaxCount(cfg.Generation.MaxCount),
		generate.WithChapters(index),
		generate.WithEvents(events),
		generate.WithMetrics(m),
	)

	srv := server.New(server.Deps{
		Students:   students,
		Curriculum: index,
		Problems:   problems,
		Exams: exam.NewService(exam.NewPostgresStore(db.Pool), students,
			exam.WithEvents(events),
			exam.WithMetrics(m),
		),
		Concepts:            concept.NewService(concept.NewPostgresStore(db.Pool), problems, gen, events),
		Generator:           gen,
		Metrics:             m,
		Events:              events,
		Checks:              checks,
		GenerationPerMinute: cfg.Generation.RatePerMinute,
		GenerationBurst:     cfg.Generation.Burst,
	})

	return serve(ctx, newHTTPServer(cfg.Addr(), srv.Handler()))
}

// seedCurriculum loads the YAML curriculum files into the store. A missing
// directory leaves whatever the database already holds.
func seedCurriculum(ctx context.Context, index *curriculum.Index, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Warn("curriculum directory not found", "path", dir)
		return nil
	}
	docs, err := curriculum.LoadDir(dir)
	if err != nil {
		return err
	}
	if err := index.Seed(ctx, docs); err != nil {
		return fmt.Errorf("seed curriculum: %w", err)
	}
	slog.Info("curriculum seeded", "path", dir, "subjects", len(docs))
	return nil
}

// newAIRouter registers the configured providers. Ollama is tried first when
// both are enabled.
func newAIRouter(cfg config.AIConfig) *ai.Router {
	client := &http.Client{Timeout: cfg.Timeout}
	router := ai.NewRouter()

	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL,
			ai.WithOllamaHTTPClient(client),
			ai.WithOllamaModel(cfg.Ollama.Model),
		))
		slog.Info("AI provider registered", "provider", "ollama", "model", cfg.Ollama.Model)
	}
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey,
			ai.WithBaseURL(cfg.OpenAI.BaseURL),
			ai.WithHTTPClient(client),
			ai.WithDefaultModel(cfg.OpenAI.Model),
		))
		slog.Info("AI provider registered", "provider", "openai", "model", cfg.OpenAI.Model)
	}
	return router
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// No read or write deadline: generation requests and websocket
		// streams run for minutes. Request bodies are size-capped instead.
		IdleTimeout: 60 * time.Second,
	}
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
