// Package timespec parses the --since/--until arguments of history queries.
package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse resolves a time specification against now. Accepted forms:
//   - "now"
//   - Go durations, meaning that long before now: "90m", "1h30m"
//   - Whole days before now: "7d"
//   - RFC3339 timestamps: "2025-10-29T13:00:00Z"
//   - Dates, taken as midnight UTC: "2025-10-29"
func Parse(spec string, now time.Time) (time.Time, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if spec == "now" {
		return now, nil
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, spec); err == nil {
		return t, nil
	}

	if days, ok := strings.CutSuffix(spec, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("negative duration: %s", spec)
		}
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m' or '7d', a date like '2025-10-29', or RFC3339)", spec)
}

// Range is a closed time interval. A zero bound is open.
type Range struct {
	Since time.Time
	Until time.Time
}

// ParseRange parses both --since and --until flags. Empty strings leave that
// bound open. Since must be before until when both are given.
func ParseRange(since, until string, now time.Time) (Range, error) {
	var r Range
	var err error

	if since != "" {
		if r.Since, err = Parse(since, now); err != nil {
			return Range{}, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if r.Until, err = Parse(until, now); err != nil {
			return Range{}, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if !r.Since.IsZero() && !r.Until.IsZero() && !r.Since.Before(r.Until) {
		return Range{}, fmt.Errorf("--since must be before --until")
	}

	return r, nil
}

// Contains reports whether t falls within the range, bounds included
func (r Range) Contains(t time.Time) bool {
	if !r.Since.IsZero() && t.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && t.After(r.Until) {
		return false
	}
	return true
}
