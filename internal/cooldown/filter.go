package cooldown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harish-x/log-boy/internal/events"
)

var errMismatchedResults = errors.New("mismatched cooldown results")

// Metrics receives cooldown outcomes.
type Metrics interface {
	RecordSuppressed(count int)
	RecordCooldownFailOpen()
}

type noOpMetrics struct{}

func (noOpMetrics) RecordSuppressed(int)    {}
func (noOpMetrics) RecordCooldownFailOpen() {}

// Filter admits or suppresses observations by fingerprint.
type Filter struct {
	store   Store
	period  time.Duration
	timeout time.Duration
	metrics Metrics
	now     func() time.Time
}

// NewFilter creates a cooldown filter. timeout bounds each store round trip; a
// non-positive value disables it. metrics may be nil.
func NewFilter(store Store, period, timeout time.Duration, metrics Metrics) *Filter {
	if metrics == nil {
		metrics = noOpMetrics{}
	}
	return &Filter{
		store:   store,
		period:  period,
		timeout: timeout,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the filter's time source.
func (f *Filter) WithClock(now func() time.Time) *Filter {
	f.now = now
	return f
}

// Filter returns the observations allowed to fire now, in input order.
// If the store cannot be reached every observation is admitted.
func (f *Filter) Filter(ctx context.Context, observations []*events.Observation) []*events.Observation {
	if len(observations) == 0 {
		return observations
	}

	fingerprints := make([]string, len(observations))
	for i, o := range observations {
		fingerprints[i] = o.Fingerprint()
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	admitted, err := f.store.CheckAndSet(ctx, fingerprints, f.now(), f.period)
	if err == nil && len(admitted) != len(observations) {
		err = fmt.Errorf("%w: expected %d, got %d", errMismatchedResults, len(observations), len(admitted))
	}
	if err != nil {
		slog.Error("Cooldown store unavailable, admitting all alerts",
			"alerts", len(observations),
			"error", err,
		)
		f.metrics.RecordCooldownFailOpen()
		return observations
	}

	out := make([]*events.Observation, 0, len(observations))
	for i, o := range observations {
		if admitted[i] {
			out = append(out, o)
			continue
		}
		slog.Debug("Alert suppressed by cooldown",
			"project", o.Rule.Project,
			"rule_id", o.Rule.ID,
			"fingerprint", fingerprints[i],
		)
	}
	if suppressed := len(observations) - len(out); suppressed > 0 {
		f.metrics.RecordSuppressed(suppressed)
	}
	return out
}
