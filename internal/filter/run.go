package filter

import (
	"fmt"
	"path/filepath"

	"github.com/dyluth/dtioctl/internal/registry"
)

// Criteria defines filtering criteria for runs.
// All filters are ANDed together - a run must match ALL criteria to pass.
type Criteria struct {
	Status      registry.Status // Exact status, empty = no filter
	ProgramGlob string          // Glob on the scenario program's base name, empty = no filter
	Mechanism   string          // Run must have intercepted with this mechanism, empty = no filter
}

// Validate rejects an unknown status or a malformed glob
func (c *Criteria) Validate() error {
	if c.Status != "" {
		if err := c.Status.Validate(); err != nil {
			return err
		}
	}
	if c.ProgramGlob != "" {
		if _, err := filepath.Match(c.ProgramGlob, ""); err != nil {
			return fmt.Errorf("invalid program pattern '%s': %w", c.ProgramGlob, err)
		}
	}
	return nil
}

// Matches returns true if the run matches all filter criteria.
// Empty criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(r *registry.Run) bool {
	if c.Status != "" && r.Status != c.Status {
		return false
	}

	if c.ProgramGlob != "" {
		if len(r.Command) == 0 {
			return false
		}
		matched, err := filepath.Match(c.ProgramGlob, filepath.Base(r.Command[0]))
		if err != nil || !matched {
			return false
		}
	}

	if c.Mechanism != "" {
		found := false
		for _, m := range r.Mechanisms {
			if m == c.Mechanism {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.Status != "" || c.ProgramGlob != "" || c.Mechanism != ""
}

// Apply returns the runs that match, preserving order
func (c *Criteria) Apply(runs []*registry.Run) []*registry.Run {
	if !c.HasFilters() {
		return runs
	}
	out := make([]*registry.Run, 0, len(runs))
	for _, r := range runs {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
