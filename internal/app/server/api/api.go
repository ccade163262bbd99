package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"

	certificateAPI "certkeeper/internal/app/server/api/http/certificate"
	healthAPI "certkeeper/internal/app/server/api/http/health"
	"certkeeper/internal/app/server/api/http/middleware/logger"
)

// Storage is what the HTTP layer needs from the draft store.
type Storage interface {
	certificateAPI.Store
	Ping(ctx context.Context) error
}

type Handlers struct {
	Health      *healthAPI.Handler
	Certificate *certificateAPI.Handler
}

// New builds the router with every API operation and the /metrics endpoint.
func New(storage Storage, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	config := huma.DefaultConfig("certkeeper API", "1.0.0")
	API := humachi.New(mux, config)

	h := handlers(storage, log)
	h.Health.SetupRoutes(API)
	h.Certificate.SetupRoutes(API)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// handlers gives every operation the same request logging middleware.
func handlers(storage Storage, log *slog.Logger) *Handlers {
	mw := huma.Middlewares{logger.New(log).Middleware()}

	return &Handlers{
		Health:      healthAPI.NewHandler(storage, log, mw),
		Certificate: certificateAPI.NewHandler(storage, log, mw),
	}
}
