// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/checkpoint"
	"github.com/starford/ansuz/internal/kernel"
	"github.com/starford/ansuz/internal/labserver"
	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/remote"
	"github.com/starford/ansuz/internal/runner"
	"github.com/starford/ansuz/internal/storage"
)

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// Serve starts the lab server with the given options and blocks until
// shutdown.
func Serve(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg)
	logger.Info("Configuration loaded",
		slog.String("address", cfg.Serve.Address()),
		slog.String("root", cfg.Serve.Root),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Serve.Root, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Serve.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	srv := labserver.New(store, logger, &labserver.Settings{
		AmbiguousEvery: cfg.Serve.AmbiguousEvery,
	})

	httpServer := &http.Server{
		Addr:    cfg.Serve.Address(),
		Handler: srv.Router(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Watch(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting lab server", slog.String("address", cfg.Serve.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("lab server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("lab server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

// ExecuteNotebook opens the notebook id from the configured store, starts a
// kernel, runs every code cell, waits for the replies, and saves the result.
func ExecuteNotebook(ctx context.Context, cfg *Config, id string) error {
	logger := newLogger(cfg)

	client := remote.NewClient(nil)
	nb, err := notebook.Open(ctx, client, cfg.Remote.BaseURL, id)
	if err != nil {
		return fmt.Errorf("open notebook: %w", err)
	}

	session := kernel.NewSession(
		kernel.WSDialer(cfg.Remote.KernelURL(), logger, &kernel.WSSettings{
			HandshakeTimeout: cfg.Kernel.HandshakeTimeout,
			WriteTimeout:     cfg.Kernel.WriteTimeout,
		}),
		logger,
		&kernel.Settings{RequestTimeout: cfg.Kernel.RequestTimeout},
	)
	if err := session.Start(ctx, id); err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}
	nb.BindSession(session)
	defer func() {
		if confirmKill(cfg, nb) {
			if err := nb.Close(); err != nil {
				logger.Warn("close notebook", slog.String("error", err.Error()))
			}
		} else {
			notebook.Unregister(nb)
		}
	}()

	co := runner.New(nb, session, logger)
	if err := co.RunAll(); err != nil {
		return fmt.Errorf("run cells: %w", err)
	}
	if err := co.Wait(ctx); err != nil {
		return fmt.Errorf("await execution: %w", err)
	}

	saveSettings := &persist.Settings{MaxRetries: cfg.Save.MaxRetries}
	if cfg.Save.DiscardOutputs == DiscardAlways {
		saveSettings.DiscardOutputs = notebook.DiscardAlways
	}
	if cfg.Checkpoint.Path != "" {
		cp, err := checkpoint.Open(cfg.Checkpoint.Path)
		if err != nil {
			return fmt.Errorf("open checkpoints: %w", err)
		}
		defer cp.Close()
		saveSettings.Checkpoints = cp
		saveSettings.CheckpointKeep = cfg.Checkpoint.Keep
	}

	mgr := persist.NewManager(client, logger, saveSettings)
	if err := mgr.Save(ctx, nb); err != nil {
		return fmt.Errorf("save notebook: %w", err)
	}
	logger.Info("notebook executed and saved",
		slog.String("notebook", id),
		slog.Int("cells", nb.Len()))
	return nil
}

// confirmKill applies the kill-confirmation policy before the kernel is
// terminated on exit.
func confirmKill(cfg *Config, nb *notebook.Notebook) bool {
	if !cfg.App.KillConfirm {
		return true
	}
	fmt.Fprintf(os.Stderr, "kill kernel for %s? [y/N] ", nb.ID())
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}
