package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/threadsift/threadsift/internal/analysis"
	"github.com/threadsift/threadsift/internal/config"
	"github.com/threadsift/threadsift/internal/events"
	"github.com/threadsift/threadsift/internal/platform/gemini"
	"github.com/threadsift/threadsift/internal/platform/logger"
	"github.com/threadsift/threadsift/internal/platform/metrics"
	"github.com/threadsift/threadsift/internal/store"
	"github.com/threadsift/threadsift/internal/task"
)

// application holds the wired components for the server's lifetime.
type application struct {
	cfg      *config.Config
	logger   *slog.Logger
	kv       store.KV
	service  *task.Service
	analyzer analysis.Analyzer
	registry *prometheus.Registry

	// cancelTasks aborts in-flight executors at shutdown.
	cancelTasks context.CancelFunc
}

// run loads configuration, wires the application, recovers persisted task
// state, and serves until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Setup(cfg.Server.LogLevel, os.Stderr)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.service.Initialize(ctx); err != nil {
		return fmt.Errorf("recover task state: %w", err)
	}

	return app.serve(ctx)
}

func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	kv, err := store.Open(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		Redis: store.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		},
		PostgresURL: cfg.Storage.PostgresURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", "driver", cfg.Storage.Driver)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	emitter := events.NewEmitter(log)
	emitter.Subscribe(events.SubscriberFunc(func(ev events.StatusEvent) {
		log.Debug("task status",
			"task_id", ev.Task.ID,
			"status", ev.Task.Status,
			"progress", ev.Task.Progress)
	}))

	taskCtx, cancelTasks := context.WithCancel(context.Background())

	svc := task.NewService(task.ServiceConfig{
		Options: task.Options{
			RetainFinished: cfg.Tasks.RetainFinished,
		},
		KV: kv,
		Persistence: task.PersistenceConfig{
			Key:          cfg.Storage.SnapshotKey,
			Debounce:     time.Duration(cfg.Tasks.DebounceMs) * time.Millisecond,
			MaxAttempts:  cfg.Tasks.PersistMaxAttempts,
			InitialDelay: time.Duration(cfg.Tasks.PersistInitialDelay) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Tasks.PersistMaxDelay) * time.Millisecond,
		},
		Notifier:    emitter,
		Metrics:     m,
		BaseContext: taskCtx,
		Logger:      log,
	})

	app := &application{
		cfg:         cfg,
		logger:      log,
		kv:          kv,
		service:     svc,
		registry:    registry,
		cancelTasks: cancelTasks,
	}

	if cfg.LLM.GeminiAPIKey != "" {
		analyzer, err := gemini.NewAnalyzer(ctx, gemini.Config{
			APIKey: cfg.LLM.GeminiAPIKey,
			Model:  cfg.LLM.Model,
		}, log)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("create analyzer: %w", err)
		}
		app.analyzer = analyzer
		log.Info("analyzer ready", "model", analyzer.Model())
	} else {
		log.Info("no LLM API key configured, analyze tasks need an external executor")
	}

	return app, nil
}

func (app *application) analyzeRetry() task.AnalyzeRetry {
	return task.AnalyzeRetry{
		MaxAttempts:  app.cfg.LLM.MaxAttempts,
		InitialDelay: time.Duration(app.cfg.LLM.InitialDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(app.cfg.LLM.MaxDelayMs) * time.Millisecond,
	}
}

// serve runs the HTTP server until ctx is cancelled, then drains the task
// core and flushes a final snapshot.
func (app *application) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("http shutdown failed", "error", err)
	}

	// Abort in-flight executors, then wait for them and flush state.
	app.cancelTasks()
	app.service.Shutdown(shutdownCtx)
	return nil
}

func (app *application) close() {
	if app.kv != nil {
		app.kv.Close()
	}
}
