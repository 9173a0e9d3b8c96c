package importer

import (
	"testing"
	"time"
)

var anchor = time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)

func TestParseClock_DayFraction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"0.5", "12:00:00"},
		{"0.354167", "08:30:00"},    // 0.354167 * 86400 floors to 30600s
		{"0.999988", "23:59:58"},    // floor, never round up past midnight
		{"45200.6875", "16:30:00"},  // full date-time serial: time part only
		{"0", "00:00:00"},
	}

	for _, tc := range cases {
		got := ParseClock(tc.raw, anchor)
		if got == nil {
			t.Fatalf("ParseClock(%q) = nil, want %s", tc.raw, tc.want)
		}
		if clock := got.Format("15:04:05"); clock != tc.want {
			t.Errorf("ParseClock(%q) = %s, want %s", tc.raw, clock, tc.want)
		}
		if got.Year() != anchor.Year() || got.Month() != anchor.Month() || got.Day() != anchor.Day() {
			t.Errorf("ParseClock(%q) not anchored to %s: got %s", tc.raw, anchor.Format("2006-01-02"), got)
		}
	}
}

func TestParseClock_StringPatterns(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"08:30", "08:30:00"},
		{"8:05:42", "08:05:42"},
		{"23:59", "23:59:00"},
		{"2026-03-10 14:15:00", "14:15:00"},
		{"12:00 AM", "00:00:00"},
		{"12:00 PM", "12:00:00"},
		{"1:05 pm", "13:05:00"},
		{"11:59:01PM", "23:59:01"},
	}

	for _, tc := range cases {
		got := ParseClock(tc.raw, anchor)
		if got == nil {
			t.Fatalf("ParseClock(%q) = nil, want %s", tc.raw, tc.want)
		}
		if clock := got.Format("15:04:05"); clock != tc.want {
			t.Errorf("ParseClock(%q) = %s, want %s", tc.raw, clock, tc.want)
		}
	}
}

func TestParseClock_RejectsUnparseable(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"", "   ", "lunch", "25:00", "9:75", "13:00 PM", "0:30 AM", "-0.25",
	} {
		if got := ParseClock(raw, anchor); got != nil {
			t.Errorf("ParseClock(%q) = %s, want nil", raw, got)
		}
	}
}

func TestParseWorkDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"45170", "2023-09-01"}, // Excel serial date
		{"45170.75", "2023-09-01"},
		{"2026-03-10", "2026-03-10"},
		{"2026/03/10", "2026-03-10"},
		{"03/10/2026", "2026-03-10"},
		{"10.03.2026", "2026-03-10"},
		{"2026-03-10 08:15:00", "2026-03-10"},
	}

	for _, tc := range cases {
		got, ok := ParseWorkDate(tc.raw)
		if !ok {
			t.Fatalf("ParseWorkDate(%q) failed, want %s", tc.raw, tc.want)
		}
		if day := got.Format("2006-01-02"); day != tc.want {
			t.Errorf("ParseWorkDate(%q) = %s, want %s", tc.raw, day, tc.want)
		}
		if h, m, s := got.Clock(); h != 0 || m != 0 || s != 0 {
			t.Errorf("ParseWorkDate(%q) not at midnight: %s", tc.raw, got)
		}
	}

	for _, raw := range []string{"", "yesterday", "0", "-3"} {
		if _, ok := ParseWorkDate(raw); ok {
			t.Errorf("ParseWorkDate(%q) succeeded, want failure", raw)
		}
	}
}
