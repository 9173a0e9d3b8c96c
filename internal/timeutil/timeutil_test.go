package timeutil

import (
	"testing"
	"time"
)

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	input := time.Date(2026, 3, 1, 14, 37, 9, 123, time.Local)
	got := StartOfDay(input)

	if got.Year() != 2026 || got.Month() != time.March || got.Day() != 1 {
		t.Fatalf("unexpected date: %v", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 || got.Nanosecond() != 0 {
		t.Fatalf("expected midnight, got %v", got)
	}
}

func TestDayKey(t *testing.T) {
	t.Parallel()

	input := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	if got := DayKey(input); got != "2026-03-01" {
		t.Fatalf("expected 2026-03-01, got %q", got)
	}
}
