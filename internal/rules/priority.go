package rules

import (
	"strconv"
	"strings"
)

// Priority scores a triggered rule for picking one alert per group.
// "Greater" rules rank by threshold, "lesser" rules by 100 - threshold, so the
// tighter bound wins in both directions. == and != have no direction and rank
// by raw threshold.
func Priority(op Operator, threshold float64) float64 {
	switch op {
	case OpLess, OpLessOrEqual:
		return 100 - threshold
	default:
		return threshold
	}
}

// GroupKey identifies rules that describe the same incident category:
// project, category and metric name or log field. Log field values are
// deliberately not part of the key.
func GroupKey(r *AlertRule) string {
	base := r.Project + "_" + string(r.Category())
	switch c := r.Condition.(type) {
	case MetricAverage:
		return base + "_" + c.MetricName
	case LogCount:
		return base + "_" + c.Field
	default:
		return base
	}
}

// Fingerprint identifies "the same alert" across cycles for cooldown purposes.
// Rules with equal fingerprints share a cooldown even if their IDs differ.
func Fingerprint(r *AlertRule) string {
	parts := []string{r.Project, string(r.Category())}
	switch c := r.Condition.(type) {
	case MetricAverage:
		parts = append(parts, c.MetricName)
	case LogCount:
		parts = append(parts, c.Field, c.Value)
	}
	parts = append(parts, FormatThreshold(r.Threshold), string(r.Operator))
	return strings.Join(parts, "_")
}

// FormatThreshold renders a threshold without trailing zeros ("80", "12.5").
func FormatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
