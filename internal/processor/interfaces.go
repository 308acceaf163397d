// Package processor runs alert evaluation cycles across projects.
package processor

import (
	"context"

	"github.com/harish-x/log-boy/internal/database"
	"github.com/harish-x/log-boy/internal/evaluator"
	"github.com/harish-x/log-boy/internal/events"
	"github.com/harish-x/log-boy/internal/publisher"
	"github.com/harish-x/log-boy/internal/rules"
)

// RuleSource loads projects, rules and notification methods.
type RuleSource interface {
	// ListActiveProjects returns projects that are active with monitoring enabled.
	ListActiveProjects(ctx context.Context) ([]string, error)

	// ListRules returns a project's rules ordered by descending threshold.
	ListRules(ctx context.Context, project string) ([]*database.RuleRecord, error)

	// ListNotificationMethods returns the methods configured for a rule.
	ListNotificationMethods(ctx context.Context, ruleID string) ([]database.MethodRecord, error)
}

// RuleEvaluator evaluates a single rule.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, rule *rules.AlertRule) (evaluator.Result, error)
}

// CooldownFilter drops observations that fired within the cooldown period.
type CooldownFilter interface {
	Filter(ctx context.Context, observations []*events.Observation) []*events.Observation
}

// AlertPublisher delivers observations to the alerts channel.
type AlertPublisher interface {
	Publish(ctx context.Context, observations []*events.Observation) publisher.Report
}
