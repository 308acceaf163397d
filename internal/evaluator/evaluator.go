// Package evaluator evaluates alert rules against a telemetry backend.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/harish-x/log-boy/internal/events"
	"github.com/harish-x/log-boy/internal/rules"
)

const (
	// topTermsLimit is how many ranked terms are fetched for ip_address and event_count rules.
	topTermsLimit = 10

	// Term fields understood by Backend.TopTermsOver.
	TermFieldIPAddress = "ip_address"
	TermFieldMessage   = "message"
)

// LifecyclePhrases are the log messages counted by event_count rules.
var LifecyclePhrases = []string{
	"server started",
	"database connected",
	"database disconnected",
	"db connected",
	"server shutdown",
	"app shutdown",
}

// Counts is the result of a filtered count query.
type Counts struct {
	Matching int64
	Total    int64
}

// TermCount is one bucket of a terms aggregation.
type TermCount struct {
	Key   string
	Count int64
}

// TermsQuery describes a ranked terms lookup.
type TermsQuery struct {
	Field string
	// Phrases, when set, restricts the documents to messages matching any phrase.
	Phrases []string
	Limit   int
}

// Backend is the telemetry aggregation backend. since is a relative lower bound
// as produced by rules.ResolveTimeWindow.
type Backend interface {
	// AverageOver returns the average of a metric, or nil when there is no data.
	AverageOver(ctx context.Context, project, metric, since string) (*float64, error)
	// CountsOver counts log entries matching field/value and the total in the window.
	// For the status_code field, value is a class ("4xx", "5xx").
	CountsOver(ctx context.Context, project, field, value, since string) (Counts, error)
	// TopTermsOver returns the most frequent terms ordered by descending count.
	TopTermsOver(ctx context.Context, project string, query TermsQuery, since string) ([]TermCount, error)
}

// Result is the outcome of evaluating one rule.
type Result struct {
	Triggered bool
	Detail    events.Detail
}

// NotTriggered is the zero result.
var NotTriggered = Result{}

func triggered(d events.Detail) Result {
	return Result{Triggered: true, Detail: d}
}

// Evaluator runs rules against a Backend, bounding each backend call by a timeout.
type Evaluator struct {
	backend      Backend
	queryTimeout time.Duration
}

// NewEvaluator creates an evaluator. A non-positive timeout disables the per-query bound.
func NewEvaluator(backend Backend, queryTimeout time.Duration) *Evaluator {
	return &Evaluator{
		backend:      backend,
		queryTimeout: queryTimeout,
	}
}

// Evaluate checks a single rule. Errors (bad time window, backend failures, timeouts)
// are returned to the caller, which treats the rule as not triggered.
func (e *Evaluator) Evaluate(ctx context.Context, rule *rules.AlertRule) (Result, error) {
	since, err := rules.ResolveTimeWindow(rule.TimeWindow)
	if err != nil {
		return NotTriggered, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	switch c := rule.Condition.(type) {
	case rules.MetricAverage:
		return e.evaluateMetric(ctx, rule, c, since)
	case rules.LogCount:
		return e.evaluateLogCount(ctx, rule, c, since)
	case rules.EventCount:
		return e.evaluateEvents(ctx, rule, since)
	default:
		return NotTriggered, fmt.Errorf("%w: unsupported condition %T", rules.ErrInvalidRule, rule.Condition)
	}
}

func (e *Evaluator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.queryTimeout)
}

func (e *Evaluator) evaluateMetric(ctx context.Context, rule *rules.AlertRule, c rules.MetricAverage, since string) (Result, error) {
	avg, err := e.backend.AverageOver(ctx, rule.Project, c.MetricName, since)
	if err != nil {
		return NotTriggered, fmt.Errorf("failed to query average of %s: %w", c.MetricName, err)
	}
	if avg == nil {
		return NotTriggered, nil
	}

	if !rules.Compare(rule.Operator, avg, rules.Float(rule.Threshold)) {
		return NotTriggered, nil
	}
	return triggered(events.Detail{CurrentValue: rules.Round2(*avg)}), nil
}

func (e *Evaluator) evaluateLogCount(ctx context.Context, rule *rules.AlertRule, c rules.LogCount, since string) (Result, error) {
	switch c.Field {
	case rules.LogFieldLevel:
		return e.evaluateShare(ctx, rule, c, since)
	case rules.LogFieldStatusCode:
		if c.Value != "4xx" && c.Value != "5xx" {
			return NotTriggered, nil
		}
		return e.evaluateShare(ctx, rule, c, since)
	case rules.LogFieldIPAddress:
		terms, err := e.backend.TopTermsOver(ctx, rule.Project, TermsQuery{Field: TermFieldIPAddress, Limit: topTermsLimit}, since)
		if err != nil {
			return NotTriggered, fmt.Errorf("failed to query top ip addresses: %w", err)
		}
		term, share, ok := firstMatchingTerm(rule, terms)
		if !ok {
			return NotTriggered, nil
		}
		count := term.Count
		return triggered(events.Detail{
			CurrentValue: rules.Round2(share),
			TriggeredIP:  term.Key,
			IPCount:      &count,
		}), nil
	default:
		return NotTriggered, fmt.Errorf("%w: unsupported log field %q", rules.ErrInvalidRule, c.Field)
	}
}

// evaluateShare compares the percentage of matching log entries against the threshold.
func (e *Evaluator) evaluateShare(ctx context.Context, rule *rules.AlertRule, c rules.LogCount, since string) (Result, error) {
	counts, err := e.backend.CountsOver(ctx, rule.Project, c.Field, c.Value, since)
	if err != nil {
		return NotTriggered, fmt.Errorf("failed to count %s=%s logs: %w", c.Field, c.Value, err)
	}
	if counts.Total == 0 {
		return NotTriggered, nil
	}

	percentage := float64(counts.Matching) / float64(counts.Total) * 100
	if !rules.Compare(rule.Operator, &percentage, rules.Float(rule.Threshold)) {
		return NotTriggered, nil
	}

	matching, total := counts.Matching, counts.Total
	return triggered(events.Detail{
		CurrentValue:  rules.Round2(percentage),
		MatchingCount: &matching,
		TotalCount:    &total,
	}), nil
}

func (e *Evaluator) evaluateEvents(ctx context.Context, rule *rules.AlertRule, since string) (Result, error) {
	query := TermsQuery{Field: TermFieldMessage, Phrases: LifecyclePhrases, Limit: topTermsLimit}
	terms, err := e.backend.TopTermsOver(ctx, rule.Project, query, since)
	if err != nil {
		return NotTriggered, fmt.Errorf("failed to query lifecycle events: %w", err)
	}

	term, share, ok := firstMatchingTerm(rule, terms)
	if !ok {
		return NotTriggered, nil
	}
	count := term.Count
	return triggered(events.Detail{
		CurrentValue:     rules.Round2(share),
		TriggeredMessage: term.Key,
		MessageCount:     &count,
	}), nil
}

// firstMatchingTerm returns the first term (in backend rank order) whose share of
// the returned total satisfies the rule, along with that share in percent.
func firstMatchingTerm(rule *rules.AlertRule, terms []TermCount) (TermCount, float64, bool) {
	if len(terms) > topTermsLimit {
		terms = terms[:topTermsLimit]
	}

	var total int64
	for _, t := range terms {
		total += t.Count
	}
	if total == 0 {
		return TermCount{}, 0, false
	}

	threshold := rules.Float(rule.Threshold)
	for _, t := range terms {
		share := float64(t.Count) / float64(total) * 100
		if rules.Compare(rule.Operator, &share, threshold) {
			return t, share, true
		}
	}
	return TermCount{}, 0, false
}
