package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"certkeeper/internal/app/server/api"
	"certkeeper/internal/app/server/config"
	"certkeeper/internal/draftstore"
	"certkeeper/internal/infrastructure/storage/postgres"
	"certkeeper/internal/utils/logger"
)

func main() {
	conf := config.MustLoad()
	log := logger.New(conf.Env)

	if err := run(conf, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(conf *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, conf, log)
	if err != nil {
		return err
	}
	store, err := draftstore.Open(ctx, backend, log)
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:    conf.Server.RunAddress,
		Handler: api.New(store, log),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "address", conf.Server.RunAddress, "env", conf.Env)
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, conf *config.Config, log *slog.Logger) (draftstore.Backend, error) {
	if conf.DB.DatabaseURI == "" {
		log.Warn("DATABASE_URI not set, certificates are kept in memory")
		return draftstore.NewMemoryBackend(), nil
	}
	pg, err := postgres.New(ctx, conf, log)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
