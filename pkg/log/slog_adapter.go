package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.Strategy != "" {
		attrs = append(attrs, slog.String("strategy", event.Strategy))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}

	switch {
	case event.Request != nil:
		attrs = append(attrs,
			slog.String("method", event.Request.Method),
			slog.String("path", event.Request.Path),
			slog.Int("api_version", int(event.Request.APIVersion)),
		)
		if event.Request.Background {
			attrs = append(attrs, slog.Bool("background", true))
		}
	case event.Response != nil:
		attrs = append(attrs,
			slog.Int("http_status", event.Response.HTTPStatus),
			slog.String("result", event.Response.Result),
			slog.Int("payload_size", event.Response.PayloadSize),
			slog.Duration("duration", event.Response.Duration),
		)
	case event.Gate != nil:
		attrs = append(attrs,
			slog.Bool("allowed", event.Gate.Allowed),
			slog.Uint64("configuration", uint64(event.Gate.Configuration)),
			slog.Uint64("prerequisites", uint64(event.Gate.Prerequisites)),
		)
		if event.Gate.Status != "" {
			attrs = append(attrs, slog.String("status", event.Gate.Status))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "request_event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
