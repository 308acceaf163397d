package rules

import (
	"log/slog"
	"strings"
)

// knownMethods are the channel kinds downstream consumers understand.
var knownMethods = map[string]bool{
	"email":   true,
	"slack":   true,
	"webhook": true,
	"sms":     true,
	"discord": true,
}

// NormalizeMethods lowercases method kinds, trims destinations and drops entries
// without a kind or destination. Unknown kinds are kept but logged.
func NormalizeMethods(methods []NotificationMethod) []NotificationMethod {
	out := make([]NotificationMethod, 0, len(methods))
	for _, m := range methods {
		kind := strings.ToLower(strings.TrimSpace(m.Method))
		if kind == "" {
			continue
		}
		if !knownMethods[kind] {
			slog.Warn("Unknown alert method", "method", m.Method)
		}

		value := strings.TrimSpace(m.Value)
		if value == "" {
			slog.Warn("Empty value for alert method", "method", kind)
			continue
		}

		out = append(out, NotificationMethod{Method: kind, Value: value})
	}
	return out
}
