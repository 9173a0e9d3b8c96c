package timeutil

import "time"

func StartOfDay(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, value.Location())
}

// DayKey is the canonical grouping key for calendar dates.
func DayKey(value time.Time) string {
	return value.Format("2006-01-02")
}
