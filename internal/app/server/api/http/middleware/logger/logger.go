// Package logger records every API request in the log and in the request
// latency histogram.
package logger

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"certkeeper/internal/metrics"
)

type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	return &Logger{
		log: log.With(slog.String("component", "http_logger")),
	}
}

// Middleware logs failed requests at error level and client errors at warn.
func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		op := ctx.Operation().OperationID

		next(ctx)

		status := ctx.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(op, metrics.StatusClass(status)).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		l.log.Log(ctx.Context(), level, "HTTP request",
			slog.String("operation", op),
			slog.String("method", ctx.Method()),
			slog.String("path", ctx.URL().Path),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.String("remote_addr", ctx.RemoteAddr()),
		)
	}
}
