// Package rules defines alert rule definitions and the pure helpers used to evaluate them:
// time window resolution, threshold comparison, priority scoring and fingerprinting.
package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidRule is returned when a stored rule cannot be turned into an AlertRule.
var ErrInvalidRule = errors.New("invalid alert rule")

// Category identifies the kind of telemetry a rule inspects.
type Category string

const (
	CategoryMetricAverage Category = "metric_avg"
	CategoryLogCount      Category = "log_count"
	CategoryEventCount    Category = "event_count"
)

// ParseCategory maps a stored rule_type to a Category.
// Both "metric_avg" and "metric_average" are accepted for metric rules.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metric_avg", "metric_average":
		return CategoryMetricAverage, nil
	case "log_count":
		return CategoryLogCount, nil
	case "event_count":
		return CategoryEventCount, nil
	default:
		return "", fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, s)
	}
}

// Log fields supported by log_count rules.
const (
	LogFieldLevel      = "level"
	LogFieldStatusCode = "status_code"
	LogFieldIPAddress  = "ip_address"
)

// Condition is the category-specific part of a rule.
// The set of implementations is closed: MetricAverage, LogCount and EventCount.
type Condition interface {
	Category() Category
	condition()
}

// MetricAverage triggers on the average of a metric over the time window.
type MetricAverage struct {
	MetricName string
}

// LogCount triggers on the share of log entries matching Field/Value.
type LogCount struct {
	Field string
	Value string
}

// EventCount triggers on the share of lifecycle events in the log stream.
type EventCount struct{}

func (MetricAverage) Category() Category { return CategoryMetricAverage }
func (LogCount) Category() Category      { return CategoryLogCount }
func (EventCount) Category() Category    { return CategoryEventCount }

func (MetricAverage) condition() {}
func (LogCount) condition()      {}
func (EventCount) condition()    {}

// NewCondition builds the condition for a stored rule row.
func NewCondition(category Category, metricName, logField, logFieldValue string) (Condition, error) {
	switch category {
	case CategoryMetricAverage:
		if strings.TrimSpace(metricName) == "" {
			return nil, fmt.Errorf("%w: metric_name is required for %s rules", ErrInvalidRule, category)
		}
		return MetricAverage{MetricName: metricName}, nil
	case CategoryLogCount:
		switch logField {
		case LogFieldLevel, LogFieldStatusCode, LogFieldIPAddress:
			return LogCount{Field: logField, Value: logFieldValue}, nil
		case "":
			return nil, fmt.Errorf("%w: log_field is required for %s rules", ErrInvalidRule, category)
		default:
			return nil, fmt.Errorf("%w: unsupported log_field %q", ErrInvalidRule, logField)
		}
	case CategoryEventCount:
		return EventCount{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, category)
	}
}

// NotificationMethod is a delivery channel configured for a rule.
type NotificationMethod struct {
	Method string `json:"method"`
	Value  string `json:"value"`
}

// AlertRule is one monitored condition of a project.
type AlertRule struct {
	ID         string
	Project    string
	Condition  Condition
	Operator   Operator
	Threshold  float64
	TimeWindow string
	Methods    []NotificationMethod
}

// Category returns the rule's category.
func (r *AlertRule) Category() Category {
	if r.Condition == nil {
		return ""
	}
	return r.Condition.Category()
}

// Validate checks that a rule can be evaluated: it has an identity, a condition,
// a known operator, a finite threshold and a resolvable time window.
func (r *AlertRule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	if strings.TrimSpace(r.Project) == "" {
		return fmt.Errorf("%w: rule %s has no project", ErrInvalidRule, r.ID)
	}
	if r.Condition == nil {
		return fmt.Errorf("%w: rule %s has no condition", ErrInvalidRule, r.ID)
	}
	if _, err := ParseOperator(string(r.Operator)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w: rule %s has a non-finite threshold", ErrInvalidRule, r.ID)
	}
	if _, err := ResolveTimeWindow(r.TimeWindow); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}
