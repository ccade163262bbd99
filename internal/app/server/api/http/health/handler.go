package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Pinger reports whether the storage behind the API is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	storage    Pinger
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(storage Pinger, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		storage:    storage,
		log:        log.With("component", "health"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	resp := Response{Status: "OK", Storage: "none", CheckedAt: time.Now().UTC()}
	if h.storage != nil {
		if err := h.storage.Ping(ctx); err != nil {
			h.log.Warn("storage unreachable", "error", err)
			return nil, huma.Error503ServiceUnavailable("storage unavailable")
		}
		resp.Storage = "up"
	}
	return &Output{Body: resp}, nil
}
