package importer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"smartsteps/internal/timeutil"
)

// Excel serial dates count days since 1899-12-30; serial 25569 is the Unix
// epoch day.
const serialEpochOffsetDays = 25569

// ParseClock converts a raw time cell into an absolute timestamp anchored to
// the given calendar date. It accepts Excel day fractions, full date-time
// strings, 24-hour clocks and 12-hour AM/PM clocks, in that order. It returns
// nil when the value is unparseable; the caller treats that as "time absent".
func ParseClock(raw string, anchor time.Time) *time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}

	if fraction, err := strconv.ParseFloat(value, 64); err == nil {
		return clockFromDayFraction(fraction, anchor)
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"01/02/2006 15:04",
		"02.01.2006 15:04",
	} {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &parsed
		}
	}

	if at := clockFrom24Hour(value, anchor); at != nil {
		return at
	}
	return clockFrom12Hour(value, anchor)
}

func clockFromDayFraction(fraction float64, anchor time.Time) *time.Time {
	if fraction < 0 {
		return nil
	}
	// A value >= 1 is a full date-time serial; the work-date column is
	// authoritative for the day, so only the time-of-day part applies.
	fraction -= math.Floor(fraction)

	seconds := int(math.Floor(fraction * 86400))
	at := time.Date(
		anchor.Year(), anchor.Month(), anchor.Day(),
		seconds/3600, (seconds%3600)/60, seconds%60, 0,
		time.Local,
	)
	return &at
}

func clockFrom24Hour(value string, anchor time.Time) *time.Time {
	hour, minute, second, ok := splitClock(value)
	if !ok || hour > 23 {
		return nil
	}
	at := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), hour, minute, second, 0, time.Local)
	return &at
}

func clockFrom12Hour(value string, anchor time.Time) *time.Time {
	upper := strings.ToUpper(strings.TrimSpace(value))

	var pm bool
	switch {
	case strings.HasSuffix(upper, "AM"):
		upper = strings.TrimSuffix(upper, "AM")
	case strings.HasSuffix(upper, "PM"):
		upper = strings.TrimSuffix(upper, "PM")
		pm = true
	default:
		return nil
	}

	hour, minute, second, ok := splitClock(strings.TrimSpace(upper))
	if !ok || hour < 1 || hour > 12 {
		return nil
	}
	if hour == 12 {
		hour = 0
	}
	if pm {
		hour += 12
	}

	at := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), hour, minute, second, 0, time.Local)
	return &at
}

func splitClock(value string) (hour, minute, second int, ok bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, false
	}

	numbers := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		numbers[i] = n
	}

	hour, minute = numbers[0], numbers[1]
	if len(numbers) == 3 {
		second = numbers[2]
	}
	if minute > 59 || second > 59 {
		return 0, 0, 0, false
	}
	return hour, minute, second, true
}

// ParseWorkDate converts a raw date cell into a timezone-naive calendar date
// (midnight, local). Whole-number cells are treated as Excel serial dates.
func ParseWorkDate(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		days := int(math.Floor(serial))
		if days <= 0 {
			return time.Time{}, false
		}
		utc := time.Unix(int64(days-serialEpochOffsetDays)*86400, 0).UTC()
		return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.Local), true
	}

	for _, layout := range []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"1/2/2006",
		"02.01.2006",
		time.RFC3339,
		"2006-01-02 15:04:05",
	} {
		if parsed, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return timeutil.StartOfDay(parsed), true
		}
	}

	return time.Time{}, false
}
