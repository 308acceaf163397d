package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTimeWindow is returned for time windows not of the form "<n> <unit>".
var ErrInvalidTimeWindow = errors.New("invalid time window")

// timeUnits maps accepted unit names to date-math suffixes.
var timeUnits = map[string]string{
	"second":  "s",
	"seconds": "s",
	"minute":  "m",
	"minutes": "m",
	"hour":    "h",
	"hours":   "h",
	"day":     "d",
	"days":    "d",
}

// ResolveTimeWindow turns "5 minutes" into the relative lower bound "now-5m/m",
// rounded down to the unit.
func ResolveTimeWindow(window string) (string, error) {
	parts := strings.Fields(window)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q must be in format \"number unit\" (e.g. \"5 minutes\")", ErrInvalidTimeWindow, window)
	}

	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: %q is not a positive integer", ErrInvalidTimeWindow, parts[0])
	}

	unit, ok := timeUnits[strings.ToLower(parts[1])]
	if !ok {
		return "", fmt.Errorf("%w: unsupported unit %q (supported: days, hours, minutes, seconds)", ErrInvalidTimeWindow, parts[1])
	}

	return fmt.Sprintf("now-%d%s/%s", n, unit, unit), nil
}
