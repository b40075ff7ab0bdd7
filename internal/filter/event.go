// Package filter selects run events by time, type and stage.
package filter

import (
	"path/filepath"

	"github.com/dyluth/teamflow/pkg/runstore"
)

// Criteria defines filtering criteria for events.
// All filters are ANDed together; an event must match every criterion to pass.
type Criteria struct {
	Since    int64  // Unix seconds, 0 = no lower bound
	Until    int64  // Unix seconds, 0 = no upper bound
	TypeGlob string // Glob on the event type, e.g. "step_*"
	Step     string // Exact stage name
}

// Matches reports whether e satisfies every set criterion.
func (c *Criteria) Matches(e runstore.Event) bool {
	if c.Since > 0 && e.Timestamp < c.Since {
		return false
	}
	if c.Until > 0 && e.Timestamp > c.Until {
		return false
	}

	if c.TypeGlob != "" {
		matched, err := filepath.Match(c.TypeGlob, string(e.Type))
		if err != nil || !matched {
			return false
		}
	}

	if c.Step != "" && e.Step != c.Step && e.StartStep != c.Step {
		return false
	}

	return true
}

// HasFilters reports whether any criterion is set.
func (c *Criteria) HasFilters() bool {
	return c.Since > 0 || c.Until > 0 || c.TypeGlob != "" || c.Step != ""
}
