// Package deadletter records alert deliveries that could not be published.
package deadletter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harish-x/log-boy/internal/events"
)

// Letter is one permanently failed delivery.
type Letter struct {
	Channel  string
	Event    *events.DeliveryEvent
	Payload  []byte
	Err      error
	FailedAt time.Time
}

// Reason returns the failure cause as text.
func (l *Letter) Reason() string {
	if l.Err == nil {
		return "unknown"
	}
	return l.Err.Error()
}

// Sink receives dead letters.
type Sink interface {
	Send(ctx context.Context, letter *Letter) error
}

// LogSink writes dead letters to the log with the full event.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, l *Letter) error {
	attrs := []any{
		"channel", l.Channel,
		"reason", l.Reason(),
		"failed_at", l.FailedAt.Format(time.RFC3339),
		"payload", string(l.Payload),
	}
	if l.Event != nil {
		attrs = append(attrs,
			"project", l.Event.ProjectName,
			"rule_id", l.Event.ID,
			"rule_type", l.Event.RuleType,
			"summary", l.Event.Summary(),
		)
	}
	slog.Error("CRITICAL: alert delivery permanently failed", attrs...)
	return nil
}

// Multi fans a letter out to several sinks. Every sink is tried; errors are joined.
type Multi []Sink

// Send implements Sink.
func (m Multi) Send(ctx context.Context, l *Letter) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
