// Package notify receives the structured events a session emits. Rendering
// and delivery to chat services happen elsewhere.
package notify

import (
	"context"

	"raidbot/internal/domain"

	"github.com/rs/zerolog"
)

type Sink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// LogSink writes every event as a structured log record.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Logger()}
}

func (s *LogSink) Publish(ctx context.Context, event domain.Event) error {
	e := s.logger.Info()
	if event.Kind == domain.EventDisbanded {
		e = s.logger.Warn()
	}
	e.Str("kind", string(event.Kind)).
		Str("session", event.Session).
		Str("title", event.Title).
		Str("text", event.Text).
		Str("footer", event.Footer).
		Bool("hat_trick", event.HatTrick).
		Int("screenshot_bytes", len(event.Screenshot))
	if event.Code != "" {
		e.Str("code", event.Code)
	}
	if len(event.Names) > 0 {
		e.Strs("names", event.Names)
	}
	e.Msg("session event")
	return nil
}
