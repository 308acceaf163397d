// Package publisher delivers admitted observations to the alerts channel.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/harish-x/log-boy/internal/deadletter"
	"github.com/harish-x/log-boy/internal/events"
)

// Bus is the pub/sub transport.
type Bus interface {
	// PublishBatch publishes every payload or none, returning per-payload subscriber counts.
	PublishBatch(ctx context.Context, channel string, payloads [][]byte) ([]int64, error)
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// Report summarizes one Publish call.
type Report struct {
	Published    []*events.DeliveryEvent
	DeadLettered []*deadletter.Letter
	// Fallback is true when the batch failed and events were published one by one.
	Fallback bool
}

// Publisher turns observations into delivery events and publishes them.
type Publisher struct {
	bus     Bus
	channel string
	timeout time.Duration
	sink    deadletter.Sink
	now     func() time.Time
}

// NewPublisher creates a publisher. timeout bounds each bus call; a non-positive value
// disables it. A nil sink logs dead letters.
func NewPublisher(bus Bus, channel string, timeout time.Duration, sink deadletter.Sink) *Publisher {
	if sink == nil {
		sink = deadletter.LogSink{}
	}
	return &Publisher{
		bus:     bus,
		channel: channel,
		timeout: timeout,
		sink:    sink,
		now:     time.Now,
	}
}

// WithClock overrides the publisher's time source.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

type pending struct {
	event   *events.DeliveryEvent
	payload []byte
}

// Publish delivers observations as one batch, falling back to individual publishes when
// the batch fails. Events that fail individually are sent to the dead-letter sink; they
// never block the remaining events.
func (p *Publisher) Publish(ctx context.Context, observations []*events.Observation) Report {
	var report Report
	if len(observations) == 0 {
		return report
	}

	publishedAt := p.now()
	batch := make([]pending, 0, len(observations))
	for _, o := range observations {
		ev := events.NewDeliveryEvent(o, publishedAt)
		payload, err := json.Marshal(ev)
		if err != nil {
			report.DeadLettered = append(report.DeadLettered, p.deadLetter(ctx, ev, nil, fmt.Errorf("failed to marshal event: %w", err)))
			continue
		}
		batch = append(batch, pending{event: ev, payload: payload})
	}
	if len(batch) == 0 {
		return report
	}

	payloads := make([][]byte, len(batch))
	for i, b := range batch {
		payloads[i] = b.payload
	}

	bctx, cancel := p.withTimeout(ctx)
	receivers, err := p.bus.PublishBatch(bctx, p.channel, payloads)
	cancel()
	if err == nil && len(receivers) == len(batch) {
		for i, b := range batch {
			p.logPublished(b.event, receivers[i])
			report.Published = append(report.Published, b.event)
		}
		return report
	}
	if err == nil {
		err = fmt.Errorf("batch returned %d results for %d events", len(receivers), len(batch))
	}

	slog.Warn("Batch publish failed, falling back to individual publish",
		"channel", p.channel,
		"events", len(batch),
		"error", err,
	)
	report.Fallback = true

	for _, b := range batch {
		ictx, cancel := p.withTimeout(ctx)
		n, err := p.bus.Publish(ictx, p.channel, b.payload)
		cancel()
		if err != nil {
			report.DeadLettered = append(report.DeadLettered, p.deadLetter(ctx, b.event, b.payload, err))
			continue
		}
		p.logPublished(b.event, n)
		report.Published = append(report.Published, b.event)
	}
	return report
}

func (p *Publisher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Publisher) logPublished(ev *events.DeliveryEvent, receivers int64) {
	slog.Info("Alert published",
		"project", ev.ProjectName,
		"rule_id", ev.ID,
		"channel", p.channel,
		"receivers", receivers,
		"summary", ev.Summary(),
	)
	if receivers == 0 {
		slog.Warn("No subscribers on alert channel", "channel", p.channel, "rule_id", ev.ID)
	}
}

func (p *Publisher) deadLetter(ctx context.Context, ev *events.DeliveryEvent, payload []byte, cause error) *deadletter.Letter {
	letter := &deadletter.Letter{
		Channel:  p.channel,
		Event:    ev,
		Payload:  payload,
		Err:      cause,
		FailedAt: p.now(),
	}

	sctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if err := p.sink.Send(sctx, letter); err != nil {
		slog.Error("Failed to record dead letter",
			"project", ev.ProjectName,
			"rule_id", ev.ID,
			"cause", cause,
			"error", err,
		)
	}
	return letter
}
