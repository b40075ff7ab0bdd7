package filter

import (
	"fmt"
	"time"
)

// ParseTime parses a time specification into Unix seconds. It accepts an
// RFC3339 timestamp or a Go duration, which counts back from now ("90m" is
// ninety minutes ago).
func ParseTime(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.Unix(), nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).Unix(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-01-02T15:04:05Z')", spec)
}

// ParseRange parses --since and --until. Empty bounds are returned as 0.
func ParseRange(since, until string, now time.Time) (int64, int64, error) {
	var from, to int64
	var err error

	if since != "" {
		if from, err = ParseTime(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}
	if until != "" {
		if to, err = ParseTime(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if from > 0 && to > 0 && from >= to {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}
	return from, to, nil
}
