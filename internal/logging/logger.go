package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init(environment string) {
	slog.SetDefault(New(os.Stdout, environment))
}

// New builds the logger Init installs, writing to w.
func New(w io.Writer, environment string) *slog.Logger {
	var handler slog.Handler
	if strings.ToLower(environment) == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// WithPoint returns a logger scoped to one point collection.
func WithPoint(pointID string) *slog.Logger {
	return slog.With("pid", pointID)
}

// WithQuery returns a logger scoped to a single query request.
func WithQuery(queryID, pointID string) *slog.Logger {
	return slog.With(
		"query_id", queryID,
		"pid", pointID,
	)
}
