package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"smartsteps/timelog"
)

type SQLiteStore struct {
	db *sql.DB
}

var (
	ErrImportNotFound   = errors.New("import not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)

const dateLayout = "2006-01-02"

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single connection serializes writers, so a claim transaction that
	// loses a race re-reads after the winner commits instead of hitting
	// SQLITE_BUSY. The busy timeout covers other processes on the same file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS imports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'DRAFT',
	strategy TEXT NOT NULL DEFAULT '',
	mapping_json TEXT NOT NULL DEFAULT '{}',
	row_count INTEGER NOT NULL DEFAULT 0,
	imported_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	emailed_at TEXT
);

CREATE TABLE IF NOT EXISTS shift_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	import_id INTEGER NOT NULL REFERENCES imports(id) ON DELETE CASCADE,
	row_index INTEGER NOT NULL,
	employee_name TEXT NOT NULL,
	employee_ref TEXT NOT NULL DEFAULT '',
	employee_id INTEGER,
	work_date TEXT NOT NULL,
	time_in TEXT,
	time_out TEXT,
	minutes INTEGER CHECK(minutes IS NULL OR minutes > 0),
	hours REAL,
	incomplete INTEGER NOT NULL DEFAULT 0,
	raw_audit TEXT NOT NULL DEFAULT '{}',
	UNIQUE(import_id, row_index)
);

CREATE TABLE IF NOT EXISTS employees (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	external_ref TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	hourly_rate REAL NOT NULL DEFAULT 0,
	UNIQUE(name)
);

CREATE TABLE IF NOT EXISTS payroll_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	import_id INTEGER NOT NULL REFERENCES imports(id),
	period_start TEXT NOT NULL,
	period_end TEXT NOT NULL,
	created_at TEXT NOT NULL,
	emailed_at TEXT
);

CREATE TABLE IF NOT EXISTS payroll_run_lines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES payroll_runs(id) ON DELETE CASCADE,
	employee_id INTEGER NOT NULL,
	employee_name TEXT NOT NULL,
	total_minutes INTEGER NOT NULL,
	total_hours REAL NOT NULL,
	hourly_rate REAL NOT NULL,
	gross_pay REAL NOT NULL,
	amount_paid REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS email_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	recipients TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'QUEUED',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	batch_id TEXT NOT NULL DEFAULT '',
	queued_at TEXT NOT NULL,
	sent_at TEXT,
	deleted_at TEXT
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FindRecentImport returns the newest import with the given filename created
// at or after the cutoff, for duplicate-upload detection.
func (s *SQLiteStore) FindRecentImport(filename string, since time.Time) (*timelog.Import, error) {
	const query = `
SELECT id, filename, content_hash, status, strategy, mapping_json,
	row_count, imported_count, skipped_count, created_at, emailed_at
FROM imports
WHERE filename = ? AND created_at >= ?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	imp, err := scanImport(s.db.QueryRow(query, filename, since.Format(time.RFC3339)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find recent import: %w", err)
	}
	return imp, nil
}

// CreateImport persists the import record and all of its shift rows in one
// transaction. A failed row insert rolls the whole save back.
func (s *SQLiteStore) CreateImport(imp *timelog.Import, rows []timelog.ShiftRow) error {
	if imp.Status == "" {
		imp.Status = timelog.ImportStatusDraft
	}
	if imp.CreatedAt.IsZero() {
		imp.CreatedAt = time.Now()
	}

	mapping, err := mappingJSON(imp.Mapping)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	res, err := tx.Exec(`
INSERT INTO imports (filename, content_hash, status, strategy, mapping_json,
	row_count, imported_count, skipped_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		imp.Filename,
		imp.ContentHash,
		string(imp.Status),
		imp.Strategy,
		mapping,
		imp.RowCount,
		imp.ImportedCount,
		imp.SkippedCount,
		imp.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert import: %w", err)
	}

	importID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read import id: %w", err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO shift_rows (import_id, row_index, employee_name, employee_ref,
	work_date, time_in, time_out, minutes, hours, incomplete, raw_audit)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare shift row insert: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		row.ImportID = importID
		if _, err := stmt.Exec(
			importID,
			row.RowIndex,
			row.Employee,
			row.EmployeeRef,
			row.WorkDate.Format(dateLayout),
			nullableTime(row.TimeIn),
			nullableTime(row.TimeOut),
			nullableInt(row.Minutes),
			nullableFloat(row.Hours),
			boolToInt(row.Incomplete),
			row.RawAudit,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert shift row %d: %w", row.RowIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	imp.ID = importID
	return nil
}

func (s *SQLiteStore) GetImport(id int64) (*timelog.Import, error) {
	const query = `
SELECT id, filename, content_hash, status, strategy, mapping_json,
	row_count, imported_count, skipped_count, created_at, emailed_at
FROM imports
WHERE id = ?;
`
	imp, err := scanImport(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImportNotFound
		}
		return nil, fmt.Errorf("query import %d: %w", id, err)
	}
	return imp, nil
}

func (s *SQLiteStore) ListImports() ([]timelog.Import, error) {
	const query = `
SELECT id, filename, content_hash, status, strategy, mapping_json,
	row_count, imported_count, skipped_count, created_at, emailed_at
FROM imports
ORDER BY created_at, id;
`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	imports := make([]timelog.Import, 0, 16)
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imports = append(imports, *imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate imports: %w", err)
	}
	return imports, nil
}

// FinalizeImport moves a draft import to FINALIZED.
func (s *SQLiteStore) FinalizeImport(id int64) error {
	res, err := s.db.Exec(
		`UPDATE imports SET status = ? WHERE id = ? AND status = ?;`,
		string(timelog.ImportStatusFinalized), id, string(timelog.ImportStatusDraft),
	)
	if err != nil {
		return fmt.Errorf("finalize import %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read finalized row count: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetImport(id); err != nil {
			return err
		}
		return fmt.Errorf("import %d is not in DRAFT status", id)
	}
	return nil
}

// DeleteImport removes the import and, via the cascade, its shift rows.
func (s *SQLiteStore) DeleteImport(id int64) error {
	res, err := s.db.Exec(`DELETE FROM imports WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete import %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read deleted row count: %w", err)
	}
	if affected == 0 {
		return ErrImportNotFound
	}
	return nil
}

func (s *SQLiteStore) ListShiftRows(importID int64) ([]timelog.ShiftRow, error) {
	const query = `
SELECT id, import_id, row_index, employee_name, employee_ref, employee_id,
	work_date, time_in, time_out, minutes, hours, incomplete, raw_audit
FROM shift_rows
WHERE import_id = ?
ORDER BY row_index;
`
	return s.queryShiftRows(query, importID)
}

// ListShiftRowsForPeriod returns the import's rows whose work date falls
// inside [from, to], in row order.
func (s *SQLiteStore) ListShiftRowsForPeriod(importID int64, from, to time.Time) ([]timelog.ShiftRow, error) {
	const query = `
SELECT id, import_id, row_index, employee_name, employee_ref, employee_id,
	work_date, time_in, time_out, minutes, hours, incomplete, raw_audit
FROM shift_rows
WHERE import_id = ? AND work_date >= ? AND work_date <= ?
ORDER BY row_index;
`
	return s.queryShiftRows(query, importID, from.Format(dateLayout), to.Format(dateLayout))
}

// LinkImportRows resolves raw employee identifiers against the directory:
// external ref first, then case-insensitive name. Returns the number of
// linked rows in the import afterwards.
func (s *SQLiteStore) LinkImportRows(importID int64) (int, error) {
	const update = `
UPDATE shift_rows
SET employee_id = COALESCE(
	(SELECT e.id FROM employees e
	 WHERE e.external_ref != '' AND e.external_ref = shift_rows.employee_ref),
	(SELECT e.id FROM employees e
	 WHERE LOWER(e.name) = LOWER(shift_rows.employee_name))
)
WHERE import_id = ? AND employee_id IS NULL;
`
	if _, err := s.db.Exec(update, importID); err != nil {
		return 0, fmt.Errorf("link shift rows: %w", err)
	}

	var linked int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM shift_rows WHERE import_id = ? AND employee_id IS NOT NULL;`,
		importID,
	).Scan(&linked)
	if err != nil {
		return 0, fmt.Errorf("count linked rows: %w", err)
	}
	return linked, nil
}

func (s *SQLiteStore) CreateEmployee(employee *timelog.Employee) error {
	res, err := s.db.Exec(
		`INSERT INTO employees (name, external_ref, email, hourly_rate) VALUES (?, ?, ?, ?);`,
		employee.Name, employee.ExternalRef, employee.Email, employee.HourlyRate,
	)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read employee id: %w", err)
	}
	employee.ID = id
	return nil
}

func (s *SQLiteStore) ListEmployees() ([]timelog.Employee, error) {
	rows, err := s.db.Query(
		`SELECT id, name, external_ref, email, hourly_rate FROM employees ORDER BY name, id;`,
	)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	employees := make([]timelog.Employee, 0, 32)
	for rows.Next() {
		var employee timelog.Employee
		if err := rows.Scan(
			&employee.ID, &employee.Name, &employee.ExternalRef, &employee.Email, &employee.HourlyRate,
		); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

func (s *SQLiteStore) queryShiftRows(query string, args ...any) ([]timelog.ShiftRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shift rows: %w", err)
	}
	defer rows.Close()

	out := make([]timelog.ShiftRow, 0, 64)
	for rows.Next() {
		var (
			row        timelog.ShiftRow
			employeeID sql.NullInt64
			workDate   string
			timeIn     sql.NullString
			timeOut    sql.NullString
			minutes    sql.NullInt64
			hours      sql.NullFloat64
			incomplete int
		)
		if err := rows.Scan(
			&row.ID, &row.ImportID, &row.RowIndex, &row.Employee, &row.EmployeeRef, &employeeID,
			&workDate, &timeIn, &timeOut, &minutes, &hours, &incomplete, &row.RawAudit,
		); err != nil {
			return nil, fmt.Errorf("scan shift row: %w", err)
		}

		if employeeID.Valid {
			id := employeeID.Int64
			row.EmployeeID = &id
		}
		row.WorkDate, err = time.ParseInLocation(dateLayout, workDate, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse work date %q: %w", workDate, err)
		}
		if row.TimeIn, err = parseNullableTime(timeIn); err != nil {
			return nil, err
		}
		if row.TimeOut, err = parseNullableTime(timeOut); err != nil {
			return nil, err
		}
		if minutes.Valid {
			value := int(minutes.Int64)
			row.Minutes = &value
		}
		if hours.Valid {
			value := hours.Float64
			row.Hours = &value
		}
		row.Incomplete = incomplete != 0

		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shift rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImport(scanner rowScanner) (*timelog.Import, error) {
	var (
		imp       timelog.Import
		status    string
		mapping   string
		createdAt string
		emailedAt sql.NullString
	)
	if err := scanner.Scan(
		&imp.ID, &imp.Filename, &imp.ContentHash, &status, &imp.Strategy, &mapping,
		&imp.RowCount, &imp.ImportedCount, &imp.SkippedCount, &createdAt, &emailedAt,
	); err != nil {
		return nil, err
	}

	imp.Status = timelog.ImportStatus(status)
	if err := unmarshalMapping(mapping, &imp.Mapping); err != nil {
		return nil, err
	}

	var err error
	imp.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if imp.EmailedAt, err = parseNullableTime(emailedAt); err != nil {
		return nil, err
	}
	return &imp, nil
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(time.RFC3339)
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", value.String, err)
	}
	return &parsed, nil
}
