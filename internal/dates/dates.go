// Package dates handles the query window: computing the rolling range,
// grading how trustworthy an upstream publication date is, and turning
// dates into filter and sort inputs.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"litscout/internal/core"
)

var fullDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Range returns the inclusive [from, to] window ending at now, spanning the
// given number of days. Both bounds are UTC calendar dates.
func Range(days int, now time.Time) (string, string) {
	now = now.UTC()
	to := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -days).Format("2006-01-02")
	return from, to
}

// Confidence grades a publication date against the requested window:
// high for a complete date inside [from, to], medium for anything partial,
// unparseable or out of range, low when no date exists at all.
//
// Adapters that pad a year-month date out to a full one must downgrade the
// result themselves; this function only sees the padded string.
func Confidence(date, from, to string) core.Confidence {
	if date == "" {
		return core.ConfidenceLow
	}
	if !fullDateRe.MatchString(date) {
		return core.ConfidenceMedium
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return core.ConfidenceMedium
	}
	if date >= from && date <= to {
		return core.ConfidenceHigh
	}
	return core.ConfidenceMedium
}

// FilterByDate drops items dated outside [from, to]. Undated items are kept
// unless requireDate is set. ISO dates compare lexicographically, so plain
// string comparison suffices.
func FilterByDate(items []core.Item, from, to string, requireDate bool) []core.Item {
	kept := make([]core.Item, 0, len(items))
	for _, it := range items {
		if it.Date == "" {
			if !requireDate {
				kept = append(kept, it)
			}
			continue
		}
		if it.Date < from || it.Date > to {
			continue
		}
		kept = append(kept, it)
	}
	return kept
}

// AsInt converts an ISO date to a sortable integer, e.g. "2025-08-25" to
// 20250825. Empty or malformed dates become 0 and sort last among
// equal-score items.
func AsInt(date string) int {
	if !fullDateRe.MatchString(date) {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(date, "-", ""))
	if err != nil {
		return 0
	}
	return n
}

// RecencyScore maps an item date to a 0-100 sub-score, in tiers that decay
// with age relative to now. Undated items score 0; dates in the future
// land in the newest tier.
func RecencyScore(date string, now time.Time) int {
	if date == "" {
		return 0
	}
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	days := int(now.UTC().Sub(t).Hours() / 24)
	switch {
	case days <= 1:
		return 100
	case days <= 3:
		return 95
	case days <= 7:
		return 85
	case days <= 14:
		return 70
	case days <= 21:
		return 55
	case days <= 30:
		return 40
	default:
		return 25
	}
}
