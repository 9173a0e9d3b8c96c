package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartsteps/internal/classify"
	"smartsteps/reconcile"
	"smartsteps/timelog"
)

type Result struct {
	Filename    string
	ContentHash string
	Strategy    classify.Strategy
	RowsRead    int
	Imported    int
	Skipped     int
	Incomplete  int
	Warnings    []string
	Rows        []timelog.ShiftRow
}

type RunOptions struct {
	// Format overrides extension-based reader selection: csv|excel.
	Format string
	// StrictMapping rejects rows whose in/out source values are identical
	// instead of dropping the out value.
	StrictMapping bool
}

// Run ingests one uploaded time-log file: reads it, parses and deduplicates
// the raw rows, detects the ingestion strategy and reconciles punches into
// shift rows. Nothing is persisted here; the caller owns the import record.
func Run(path string, mapping timelog.ColumnMapping, options RunOptions) (*Result, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	format, err := InferFormat(path, options.Format)
	if err != nil {
		return nil, err
	}
	reader, err := ReaderForFormat(format)
	if err != nil {
		return nil, err
	}

	records, err := reader.Read(path)
	if err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Filename:    filepath.Base(path),
		ContentHash: hash,
		RowsRead:    len(records),
	}

	rows := make([]timelog.RawRow, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		row, ok := buildRawRow(record, mapping, result)
		if !ok {
			continue
		}

		key := punchKey(row)
		if _, duplicate := seen[key]; duplicate {
			result.Skipped++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: duplicate punch dropped", record.RowNumber))
			continue
		}
		seen[key] = struct{}{}

		rows = append(rows, row)
	}

	result.Strategy = classify.Detect(rows, mapping)

	reconciled := reconcile.Run(rows, result.Strategy, reconcile.Options{
		StrictMapping: options.StrictMapping,
	})
	result.Rows = reconciled.Rows
	result.Imported = len(reconciled.Rows)
	result.Skipped += reconciled.Skipped
	result.Incomplete = reconciled.Incomplete
	result.Warnings = append(result.Warnings, reconciled.Warnings...)

	return result, nil
}

func buildRawRow(record Record, mapping timelog.ColumnMapping, result *Result) (timelog.RawRow, bool) {
	employee := record.Get(mapping.Employee)
	employeeRef := record.Get(mapping.EmployeeRef)
	if employee == "" && employeeRef == "" {
		result.Skipped++
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("row %d: missing employee identifier", record.RowNumber))
		return timelog.RawRow{}, false
	}

	workDate, ok := ParseWorkDate(record.Get(mapping.Date))
	if !ok {
		result.Skipped++
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("row %d: unparseable work date %q", record.RowNumber, record.Get(mapping.Date)))
		return timelog.RawRow{}, false
	}

	row := timelog.RawRow{
		RowNumber:   record.RowNumber,
		Employee:    employee,
		EmployeeRef: employeeRef,
		WorkDate:    workDate,
		InRaw:       record.Get(mapping.TimeIn),
		OutRaw:      record.Get(mapping.TimeOut),
		Event:       record.Get(mapping.EventType),
		MinutesRaw:  record.Get(mapping.Minutes),
		HoursRaw:    record.Get(mapping.Hours),
	}
	row.In = ParseClock(row.InRaw, workDate)
	if mapping.SameTimeColumn() {
		// One source column feeds both roles; a single parse serves both.
		row.Out = nil
		row.OutRaw = ""
	} else {
		row.Out = ParseClock(row.OutRaw, workDate)
	}

	return row, true
}

// punchKey is the ingestion-path dedup key: identical punches from device
// double-reads collapse to one row before classification.
func punchKey(row timelog.RawRow) string {
	in, out := "", ""
	if row.In != nil {
		in = row.In.Format(time.RFC3339)
	}
	if row.Out != nil {
		out = row.Out.Format(time.RFC3339)
	}

	parts := strings.Join([]string{
		row.Employee, row.EmployeeRef, in, out, row.Event, row.MinutesRaw, row.HoursRaw,
	}, "\x00")
	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
