package grouping

import (
	"testing"
	"time"

	"github.com/harish-x/log-boy/internal/events"
	"github.com/harish-x/log-boy/internal/rules"
)

func observation(id string, cond rules.Condition, op rules.Operator, threshold float64) *events.Observation {
	rule := &rules.AlertRule{ID: id, Project: "p1", Condition: cond, Operator: op, Threshold: threshold, TimeWindow: "5 minutes"}
	return events.NewObservation(rule, events.Detail{}, time.Unix(0, 0))
}

func ids(obs []*events.Observation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Rule.ID
	}
	return out
}

func TestSelectHighestPriority(t *testing.T) {
	cpu := rules.MetricAverage{MetricName: "cpu_usage"}
	mem := rules.MetricAverage{MetricName: "memory_usage"}
	levelErr := rules.LogCount{Field: "level", Value: "error"}
	levelWarn := rules.LogCount{Field: "level", Value: "warn"}

	tests := []struct {
		name  string
		input []*events.Observation
		want  []string
	}{
		{
			name: "empty",
			want: []string{},
		},
		{
			name: "higher priority wins",
			input: []*events.Observation{
				observation("cpu-80", cpu, rules.OpGreater, 80),
				observation("cpu-90", cpu, rules.OpGreater, 90),
			},
			want: []string{"cpu-90"},
		},
		{
			name: "tie keeps first seen",
			input: []*events.Observation{
				observation("a", cpu, rules.OpGreater, 80),
				observation("b", cpu, rules.OpGreaterOrEqual, 80),
			},
			want: []string{"a"},
		},
		{
			name: "lesser operators score inverted",
			input: []*events.Observation{
				observation("lt-30", cpu, rules.OpLess, 30),
				observation("lt-10", cpu, rules.OpLess, 10),
			},
			want: []string{"lt-10"},
		},
		{
			name: "log levels share a group",
			input: []*events.Observation{
				observation("warn", levelWarn, rules.OpGreater, 20),
				observation("error", levelErr, rules.OpGreater, 5),
			},
			want: []string{"warn"},
		},
		{
			name: "distinct groups keep first appearance order",
			input: []*events.Observation{
				observation("mem", mem, rules.OpGreater, 70),
				observation("cpu-60", cpu, rules.OpGreater, 60),
				observation("cpu-95", cpu, rules.OpGreater, 95),
				observation("events", rules.EventCount{}, rules.OpGreater, 10),
			},
			want: []string{"mem", "cpu-95", "events"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(SelectHighestPriority(tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("SelectHighestPriority() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("SelectHighestPriority() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}
