package db

import (
	"fmt"
	"time"
)

// WeekKey returns the ISO-8601 week of t in UTC, e.g. "2025-W35".
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
