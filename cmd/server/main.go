package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/programme-lv/anytime/conf"
	apihttp "github.com/programme-lv/anytime/http"
	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/selector"
	"github.com/programme-lv/anytime/submsrvc"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := conf.FromEnv(ctx)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Environment)
	slog.SetDefault(log)
	log.Info("starting ANYTIME contest API", "environment", cfg.Environment)

	sel := selector.New(selector.Config{
		Preferred:   cfg.StorageBackend,
		Credentials: cfg.Storage,
		Logger:      log.With("module", "selector"),
	})
	handle, err := sel.Select(ctx)
	if err != nil {
		log.Error("no storage backend available", "error", err)
		os.Exit(1)
	}
	defer sel.Close()
	log.Info("storage backend selected", "backend", handle.Kind())

	if cfg.ReprobeInterval > 0 {
		go sel.Watch(ctx, cfg.ReprobeInterval)
	}

	api, err := apihttp.NewHttpServer(submsrvc.NewSubmSrvc(sel, log), apihttp.Options{
		Environment:      cfg.Environment,
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowOriginRegex: cfg.AllowOriginRegex,
		BackupEnabled:    cfg.BackupEnabled,
		StatsInterval:    time.Minute,
		Logger:           log,
	})
	if err != nil {
		log.Error("failed to create http server", "error", err)
		os.Exit(1)
	}
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
