// Package grouping collapses simultaneous observations of the same alert category.
package grouping

import (
	"github.com/harish-x/log-boy/internal/events"
)

// SelectHighestPriority keeps one observation per group key: the one with the highest
// priority, or the earliest in input order on a tie. Output follows the order in which
// each group key first appears.
func SelectHighestPriority(observations []*events.Observation) []*events.Observation {
	index := make(map[string]int, len(observations))
	selected := make([]*events.Observation, 0, len(observations))

	for _, o := range observations {
		key := o.GroupKey()
		i, seen := index[key]
		if !seen {
			index[key] = len(selected)
			selected = append(selected, o)
			continue
		}
		if o.Priority > selected[i].Priority {
			selected[i] = o
		}
	}
	return selected
}
