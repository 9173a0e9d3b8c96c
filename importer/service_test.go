package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"smartsteps/timelog"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_FingerprintScannerExport(t *testing.T) {
	t.Parallel()

	content := "Name,Date,Time\n" +
		"Dana Reyes,2026-03-10,08:00\n" +
		"Dana Reyes,2026-03-10,16:30\n" +
		"Luis Ortega,2026-03-10,09:00\n"
	path := writeCSV(t, t.TempDir(), "scans.csv", content)

	mapping := timelog.ColumnMapping{Employee: "Name", Date: "Date", TimeIn: "Time", TimeOut: "Time"}
	result, err := Run(path, mapping, RunOptions{})
	if err != nil {
		t.Fatalf("run import: %v", err)
	}

	if result.Strategy.String() != "fingerprint-scanner" {
		t.Fatalf("strategy = %s, want fingerprint-scanner", result.Strategy)
	}
	if result.Filename != "scans.csv" {
		t.Errorf("filename = %q, want scans.csv", result.Filename)
	}
	if result.ContentHash == "" {
		t.Errorf("content hash is empty")
	}
	if result.RowsRead != 3 {
		t.Errorf("rows read = %d, want 3", result.RowsRead)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 shift rows, got %d", len(result.Rows))
	}

	paired := result.Rows[0]
	if paired.Minutes == nil || *paired.Minutes != 510 {
		t.Errorf("paired minutes = %v, want 510", paired.Minutes)
	}
	if result.Incomplete != 1 {
		t.Errorf("incomplete = %d, want 1 (Luis has one punch)", result.Incomplete)
	}
}

func TestRun_StandardExportWithSeparateColumns(t *testing.T) {
	t.Parallel()

	content := "Employee,Work_Date,Time In,Time Out,Direction\n" +
		"Dana Reyes,2026-03-10,08:00,16:30,\n" +
		"Luis Ortega,2026-03-10,09:00,17:00,\n"
	path := writeCSV(t, t.TempDir(), "shifts.csv", content)

	// Header matching ignores case, underscores and spaces.
	mapping := timelog.ColumnMapping{
		Employee:  "employee",
		Date:      "work date",
		TimeIn:    "timein",
		TimeOut:   "time-out",
		EventType: "direction",
	}
	result, err := Run(path, mapping, RunOptions{})
	if err != nil {
		t.Fatalf("run import: %v", err)
	}

	if result.Strategy.String() != "standard" {
		t.Fatalf("strategy = %s, want standard", result.Strategy)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 shift rows, got %d", len(result.Rows))
	}
	if m := result.Rows[1].Minutes; m == nil || *m != 480 {
		t.Errorf("second row minutes = %v, want 480", m)
	}
}

func TestRun_DeduplicatesIdenticalPunches(t *testing.T) {
	t.Parallel()

	content := "Name,Date,Time\n" +
		"Dana Reyes,2026-03-10,08:00\n" +
		"Dana Reyes,2026-03-10,08:00\n" +
		"Dana Reyes,2026-03-10,16:30\n"
	path := writeCSV(t, t.TempDir(), "double.csv", content)

	mapping := timelog.ColumnMapping{Employee: "Name", Date: "Date", TimeIn: "Time", TimeOut: "Time"}
	result, err := Run(path, mapping, RunOptions{})
	if err != nil {
		t.Fatalf("run import: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 shift row, got %d", len(result.Rows))
	}
	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if m := result.Rows[0].Minutes; m == nil || *m != 510 {
		t.Errorf("minutes = %v, want 510", m)
	}

	var sawDuplicate bool
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "duplicate punch") {
			sawDuplicate = true
		}
	}
	if !sawDuplicate {
		t.Errorf("warnings = %v, want a duplicate punch warning", result.Warnings)
	}
}

func TestRun_KeepsRowsThatShareOnlyTheInTime(t *testing.T) {
	t.Parallel()

	// Split shifts share an IN value; only fully identical rows are duplicates.
	content := "Employee,Work_Date,Time In,Time Out,Direction\n" +
		"Dana Reyes,2026-03-10,08:00,12:00,\n" +
		"Dana Reyes,2026-03-10,08:00,16:30,\n"
	path := writeCSV(t, t.TempDir(), "split.csv", content)

	mapping := timelog.ColumnMapping{
		Employee:  "Employee",
		Date:      "Work_Date",
		TimeIn:    "Time In",
		TimeOut:   "Time Out",
		EventType: "Direction",
	}
	result, err := Run(path, mapping, RunOptions{})
	if err != nil {
		t.Fatalf("run import: %v", err)
	}

	if result.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", result.Skipped)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 shift rows, got %d", len(result.Rows))
	}
	if m := result.Rows[0].Minutes; m == nil || *m != 240 {
		t.Errorf("first row minutes = %v, want 240", m)
	}
	if m := result.Rows[1].Minutes; m == nil || *m != 510 {
		t.Errorf("second row minutes = %v, want 510", m)
	}
}

func TestRun_SkipsRowsWithoutEmployeeOrDate(t *testing.T) {
	t.Parallel()

	content := "Name,Date,Time In,Time Out\n" +
		",2026-03-10,08:00,16:00\n" +
		"Dana Reyes,sometime,08:00,16:00\n" +
		"Dana Reyes,2026-03-10,08:00,16:00\n"
	path := writeCSV(t, t.TempDir(), "gaps.csv", content)

	mapping := timelog.ColumnMapping{Employee: "Name", Date: "Date", TimeIn: "Time In", TimeOut: "Time Out"}
	result, err := Run(path, mapping, RunOptions{})
	if err != nil {
		t.Fatalf("run import: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 shift row, got %d", len(result.Rows))
	}
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Skipped)
	}
}

func TestRun_RejectsInvalidMapping(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, t.TempDir(), "empty.csv", "Name,Date\n")
	if _, err := Run(path, timelog.ColumnMapping{Employee: "Name"}, RunOptions{}); err == nil {
		t.Fatalf("expected mapping validation error")
	}
}

func TestInferFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path     string
		override string
		want     string
	}{
		{"export.csv", "", "csv"},
		{"export.txt", "", "csv"},
		{"export.xlsx", "", "excel"},
		{"export.XLSM", "", "excel"},
		{"export.dat", "csv", "csv"},
	}
	for _, tc := range cases {
		got, err := InferFormat(tc.path, tc.override)
		if err != nil {
			t.Fatalf("InferFormat(%q, %q): %v", tc.path, tc.override, err)
		}
		if got != tc.want {
			t.Errorf("InferFormat(%q, %q) = %q, want %q", tc.path, tc.override, got, tc.want)
		}
	}

	if _, err := InferFormat("export.dat", ""); err == nil {
		t.Errorf("expected error for unknown extension")
	}
}
