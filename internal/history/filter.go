package history

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// FilterOptions specifies criteria for selecting journal entries.
type FilterOptions struct {
	Since   time.Duration  // Only entries closed within this window (0=all)
	App     string         // Exact match on app name
	Urgency *model.Urgency // nil=any
	Reason  string         // Close reason name, e.g. "expired"
	Limit   int            // Maximum results (0=unlimited)
}

// Filter returns the matching entries, newest first.
func Filter(entries []Entry, opts FilterOptions) []Entry {
	now := time.Now()
	result := make([]Entry, 0, len(entries))

	for _, e := range slices.Backward(entries) {
		if opts.Since > 0 && e.ClosedAt.Before(now.Add(-opts.Since)) {
			continue
		}
		if opts.App != "" && e.AppName != opts.App {
			continue
		}
		if opts.Urgency != nil && e.Urgency != *opts.Urgency {
			continue
		}
		if opts.Reason != "" && !strings.EqualFold(e.Reason, opts.Reason) {
			continue
		}

		result = append(result, e)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}

	return result
}

// ParseDuration parses a duration string with extended formats.
// Supports: 48h, 7d, 1w, 0 (all time)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if s == "0" || s == "" {
		return 0, nil
	}

	if days, found := strings.CutSuffix(s, "d"); found {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	if weeks, found := strings.CutSuffix(s, "w"); found {
		n, err := strconv.Atoi(weeks)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}
