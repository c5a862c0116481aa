// Package smartparse interprets the loosely shaped values that flow between
// steps: relative date expressions in parameters and the heterogeneous result
// shapes collaborators return.
package smartparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var agoRe = regexp.MustCompile(`^(\d+)\s+(day|week|month)s?\s+ago$`)

// ParseRelativeDate interprets a relative date expression against a base
// instant in the given timezone. Recognized forms: now, today, yesterday,
// tomorrow, last week, last month, "N days/weeks/months ago" (case
// insensitive), plus strict ISO-8601 fallback. Unrecognized strings report
// ok=false; callers apply their own default.
func ParseRelativeDate(s string, loc *time.Location, base time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	expr := strings.ToLower(strings.TrimSpace(s))
	local := base.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	switch expr {
	case "":
		return time.Time{}, false
	case "now":
		return base, true
	case "today":
		return midnight, true
	case "yesterday":
		return midnight.AddDate(0, 0, -1), true
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), true
	case "last week":
		return midnight.AddDate(0, 0, -7), true
	case "last month":
		return midnight.AddDate(0, -1, 0), true
	}

	if m := agoRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "day":
			return midnight.AddDate(0, 0, -n), true
		case "week":
			return midnight.AddDate(0, 0, -7*n), true
		case "month":
			return midnight.AddDate(0, -n, 0), true
		}
	}

	// Strict ISO-8601 fallback
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc); err == nil {
		return t, true
	}

	return time.Time{}, false
}
