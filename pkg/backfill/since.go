package backfill

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// relativeRe matches the relative shorthand: a count and a unit, where the
// unit is d (days), w (weeks), m or M (months), or y (years).
var relativeRe = regexp.MustCompile(`^(\d+)([dwmMy])$`)

// ParseSince interprets a --since filter value. It accepts either a relative
// shorthand like "7d", "2w", "3m", "1y" (subtracted from now) or an absolute
// ISO-8601 date ("2026-01-13" or a full RFC3339 timestamp).
func ParseSince(value string, now time.Time) (time.Time, error) {
	if m := relativeRe.FindStringSubmatch(value); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid since value %q: %w", value, err)
		}

		switch m[2] {
		case "d":
			return now.AddDate(0, 0, -n), nil
		case "w":
			return now.AddDate(0, 0, -7*n), nil
		case "m", "M":
			return now.AddDate(0, -n, 0), nil
		case "y":
			return now.AddDate(-n, 0, 0), nil
		}
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid since value %q: use <N>{d|w|m|y} or an ISO-8601 date", value)
}
