// Package events defines the triggered-alert observation and the delivery event
// published to the alerts channel.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/harish-x/log-boy/internal/rules"
)

const (
	// Source identifies this pipeline on published events.
	Source = "alert-cron"
	// SchemaVersion is the version of the DeliveryEvent JSON schema.
	SchemaVersion = "1.0"
)

// Detail carries the measured value and supporting data of a triggered rule.
// Values are already rounded to two decimals.
type Detail struct {
	CurrentValue float64

	// level / status_code rules
	MatchingCount *int64
	TotalCount    *int64

	// ip_address rules
	TriggeredIP string
	IPCount     *int64

	// event_count rules
	TriggeredMessage string
	MessageCount     *int64
}

// Observation is a triggered rule at one point in time. It lives for a single cycle.
type Observation struct {
	Rule      *rules.AlertRule
	Detail    Detail
	Timestamp time.Time
	Priority  float64
}

// NewObservation builds an observation for a triggered rule, scoring its priority.
func NewObservation(rule *rules.AlertRule, detail Detail, at time.Time) *Observation {
	return &Observation{
		Rule:      rule,
		Detail:    detail,
		Timestamp: at.UTC(),
		Priority:  rules.Priority(rule.Operator, rule.Threshold),
	}
}

// GroupKey returns the key used to collapse near-duplicate observations.
func (o *Observation) GroupKey() string {
	return rules.GroupKey(o.Rule)
}

// Fingerprint returns the cooldown identity of the observation.
func (o *Observation) Fingerprint() string {
	return rules.Fingerprint(o.Rule)
}

// DeliveryEvent is the payload published for each admitted observation.
type DeliveryEvent struct {
	ID               string                     `json:"id"`
	ProjectName      string                     `json:"project_name"`
	RuleType         string                     `json:"rule_type"`
	MetricName       string                     `json:"metric_name,omitempty"`
	LogField         string                     `json:"log_field,omitempty"`
	LogFieldValue    string                     `json:"log_field_value,omitempty"`
	Operator         string                     `json:"operator"`
	Threshold        float64                    `json:"threshold"`
	CurrentValue     float64                    `json:"current_value"`
	ErrorCount       *int64                     `json:"error_count,omitempty"`
	TotalCount       *int64                     `json:"total_count,omitempty"`
	TriggeredIP      string                     `json:"triggered_ip,omitempty"`
	IPCount          *int64                     `json:"ip_count,omitempty"`
	TriggeredMessage string                     `json:"triggered_message,omitempty"`
	MessageCount     *int64                     `json:"message_count,omitempty"`
	TimeWindow       string                     `json:"time_window"`
	Methods          []rules.NotificationMethod `json:"methods"`
	Timestamp        time.Time                  `json:"timestamp"`
	PublishedAt      time.Time                  `json:"published_at"`
	Source           string                     `json:"source"`
	Version          string                     `json:"version"`
}

// NewDeliveryEvent stamps an observation for publishing. Priority is intentionally
// not carried over; it only matters inside a cycle.
func NewDeliveryEvent(o *Observation, publishedAt time.Time) *DeliveryEvent {
	r := o.Rule
	ev := &DeliveryEvent{
		ID:               r.ID,
		ProjectName:      r.Project,
		RuleType:         string(r.Category()),
		Operator:         string(r.Operator),
		Threshold:        r.Threshold,
		CurrentValue:     o.Detail.CurrentValue,
		ErrorCount:       o.Detail.MatchingCount,
		TotalCount:       o.Detail.TotalCount,
		TriggeredIP:      o.Detail.TriggeredIP,
		IPCount:          o.Detail.IPCount,
		TriggeredMessage: o.Detail.TriggeredMessage,
		MessageCount:     o.Detail.MessageCount,
		TimeWindow:       r.TimeWindow,
		Methods:          r.Methods,
		Timestamp:        o.Timestamp,
		PublishedAt:      publishedAt.UTC(),
		Source:           Source,
		Version:          SchemaVersion,
	}
	if ev.Methods == nil {
		ev.Methods = []rules.NotificationMethod{}
	}

	switch c := r.Condition.(type) {
	case rules.MetricAverage:
		ev.MetricName = c.MetricName
	case rules.LogCount:
		ev.LogField = c.Field
		ev.LogFieldValue = c.Value
	}
	return ev
}

// Summary renders a one-line description of the event for logs.
func (e *DeliveryEvent) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ALERT] %s - %s", e.ProjectName, strings.ToUpper(e.RuleType))

	threshold := rules.FormatThreshold(e.Threshold)
	switch rules.Category(e.RuleType) {
	case rules.CategoryMetricAverage:
		fmt.Fprintf(&b, " - %s: %v%% %s %s%%", e.MetricName, e.CurrentValue, e.Operator, threshold)
	case rules.CategoryLogCount:
		fmt.Fprintf(&b, " - %s(%s): %v%% %s %s%%", e.LogField, e.LogFieldValue, e.CurrentValue, e.Operator, threshold)
		if e.ErrorCount != nil && e.TotalCount != nil {
			fmt.Fprintf(&b, " (%d/%d)", *e.ErrorCount, *e.TotalCount)
		}
	case rules.CategoryEventCount:
		fmt.Fprintf(&b, " - Events: %v%% %s %s%%", e.CurrentValue, e.Operator, threshold)
	}

	fmt.Fprintf(&b, " | Time Window: %s | Triggered: %s", e.TimeWindow, e.Timestamp.Format(time.RFC3339))
	return b.String()
}
