package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartsteps/payroll"
)

var (
	ErrRunNotFound  = errors.New("payroll run not found")
	ErrLineNotFound = errors.New("payroll run line not found")
)

// CreateRun persists a payroll run and its lines in one transaction and
// fills in the generated ids.
func (s *SQLiteStore) CreateRun(run *payroll.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	res, err := tx.Exec(`
INSERT INTO payroll_runs (import_id, period_start, period_end, created_at)
VALUES (?, ?, ?, ?);`,
		run.ImportID,
		run.PeriodStart.Format(dateLayout),
		run.PeriodEnd.Format(dateLayout),
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert payroll run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read payroll run id: %w", err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO payroll_run_lines (run_id, employee_id, employee_name,
	total_minutes, total_hours, hourly_rate, gross_pay, amount_paid)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare line insert: %w", err)
	}
	defer stmt.Close()

	for i := range run.Lines {
		line := &run.Lines[i]
		line.RunID = runID
		lineRes, err := stmt.Exec(
			runID,
			line.EmployeeID,
			line.Employee,
			line.TotalMinutes,
			line.TotalHours,
			line.HourlyRate,
			line.GrossPay,
			line.AmountPaid,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert line for employee %d: %w", line.EmployeeID, err)
		}
		if line.ID, err = lineRes.LastInsertId(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("read line id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payroll run: %w", err)
	}

	run.ID = runID
	return nil
}

func (s *SQLiteStore) GetRun(id int64) (*payroll.Run, error) {
	const query = `
SELECT id, import_id, period_start, period_end, created_at, emailed_at
FROM payroll_runs
WHERE id = ?;
`
	run, err := s.scanRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("query payroll run %d: %w", id, err)
	}

	run.Lines, err = s.listRunLines(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns() ([]payroll.Run, error) {
	const query = `
SELECT id, import_id, period_start, period_end, created_at, emailed_at
FROM payroll_runs
ORDER BY created_at, id;
`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query payroll runs: %w", err)
	}
	defer rows.Close()

	runs := make([]payroll.Run, 0, 16)
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payroll run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payroll runs: %w", err)
	}

	for i := range runs {
		if runs[i].Lines, err = s.listRunLines(runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// RecordLinePayment adds to a line's paid amount; amount owed stays derived.
func (s *SQLiteStore) RecordLinePayment(lineID int64, amount float64) error {
	res, err := s.db.Exec(
		`UPDATE payroll_run_lines SET amount_paid = amount_paid + ? WHERE id = ?;`,
		amount, lineID,
	)
	if err != nil {
		return fmt.Errorf("record payment for line %d: %w", lineID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read updated row count: %w", err)
	}
	if affected == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (s *SQLiteStore) scanRun(scanner rowScanner) (*payroll.Run, error) {
	var (
		run         payroll.Run
		periodStart string
		periodEnd   string
		createdAt   string
		emailedAt   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID, &run.ImportID, &periodStart, &periodEnd, &createdAt, &emailedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if run.PeriodStart, err = time.ParseInLocation(dateLayout, periodStart, time.Local); err != nil {
		return nil, fmt.Errorf("parse period start %q: %w", periodStart, err)
	}
	if run.PeriodEnd, err = time.ParseInLocation(dateLayout, periodEnd, time.Local); err != nil {
		return nil, fmt.Errorf("parse period end %q: %w", periodEnd, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if run.EmailedAt, err = parseNullableTime(emailedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) listRunLines(runID int64) ([]payroll.Line, error) {
	const query = `
SELECT id, run_id, employee_id, employee_name, total_minutes, total_hours,
	hourly_rate, gross_pay, amount_paid
FROM payroll_run_lines
WHERE run_id = ?
ORDER BY employee_name, id;
`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("query run lines: %w", err)
	}
	defer rows.Close()

	lines := make([]payroll.Line, 0, 16)
	for rows.Next() {
		var line payroll.Line
		if err := rows.Scan(
			&line.ID, &line.RunID, &line.EmployeeID, &line.Employee,
			&line.TotalMinutes, &line.TotalHours, &line.HourlyRate,
			&line.GrossPay, &line.AmountPaid,
		); err != nil {
			return nil, fmt.Errorf("scan run line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run lines: %w", err)
	}
	return lines, nil
}
