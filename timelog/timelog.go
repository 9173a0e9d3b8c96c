package timelog

import (
	"fmt"
	"strings"
	"time"
)

type ImportStatus string

const (
	ImportStatusDraft     ImportStatus = "DRAFT"
	ImportStatusFinalized ImportStatus = "FINALIZED"
)

// Import owns the shift rows produced by one uploaded time-log file.
type Import struct {
	ID            int64
	Filename      string
	ContentHash   string
	Status        ImportStatus
	Strategy      string
	Mapping       ColumnMapping
	RowCount      int
	ImportedCount int
	SkippedCount  int
	CreatedAt     time.Time
	EmailedAt     *time.Time
}

// ShiftRow is one reconciled worked period (or an incomplete half of one).
type ShiftRow struct {
	ID          int64
	ImportID    int64
	RowIndex    int
	Employee    string
	EmployeeRef string
	EmployeeID  *int64
	WorkDate    time.Time
	TimeIn      *time.Time
	TimeOut     *time.Time
	Minutes     *int
	Hours       *float64
	Incomplete  bool
	RawAudit    string
}

// RawRow is one ingested spreadsheet row before reconciliation. It only lives
// inside an import run; the audit blob on the resulting ShiftRow is the record
// of what produced it.
type RawRow struct {
	RowNumber   int
	Employee    string
	EmployeeRef string
	WorkDate    time.Time
	InRaw       string
	OutRaw      string
	In          *time.Time
	Out         *time.Time
	Event       string
	MinutesRaw  string
	HoursRaw    string
}

// PunchAt returns the single punch timestamp of a row when exactly one of the
// mapped time columns carries a value.
func (r RawRow) PunchAt() *time.Time {
	if r.In != nil {
		return r.In
	}
	return r.Out
}

// PunchRaw mirrors PunchAt for the raw cell text.
func (r RawRow) PunchRaw() string {
	if strings.TrimSpace(r.InRaw) != "" {
		return r.InRaw
	}
	return r.OutRaw
}

// ColumnMapping names which source columns feed each field. Column names are
// matched against normalized headers, so "Work Date", "work_date" and
// "workdate" are interchangeable.
type ColumnMapping struct {
	Employee    string `json:"employee" mapstructure:"employee"`
	EmployeeRef string `json:"employeeRef,omitempty" mapstructure:"employee_ref"`
	Date        string `json:"date" mapstructure:"date"`
	TimeIn      string `json:"timeIn,omitempty" mapstructure:"time_in"`
	TimeOut     string `json:"timeOut,omitempty" mapstructure:"time_out"`
	EventType   string `json:"eventType,omitempty" mapstructure:"event_type"`
	Minutes     string `json:"minutes,omitempty" mapstructure:"minutes"`
	Hours       string `json:"hours,omitempty" mapstructure:"hours"`
}

func (m ColumnMapping) HasEventType() bool {
	return strings.TrimSpace(m.EventType) != ""
}

func (m ColumnMapping) HasTimeIn() bool {
	return strings.TrimSpace(m.TimeIn) != ""
}

func (m ColumnMapping) HasTimeOut() bool {
	return strings.TrimSpace(m.TimeOut) != ""
}

// SameTimeColumn reports whether in and out are fed by one source column.
func (m ColumnMapping) SameTimeColumn() bool {
	if !m.HasTimeIn() || !m.HasTimeOut() {
		return false
	}
	return normalizeColumn(m.TimeIn) == normalizeColumn(m.TimeOut)
}

func (m ColumnMapping) Validate() error {
	if strings.TrimSpace(m.Employee) == "" {
		return fmt.Errorf("mapping requires an employee column")
	}
	if strings.TrimSpace(m.Date) == "" {
		return fmt.Errorf("mapping requires a work-date column")
	}
	if !m.HasTimeIn() && !m.HasTimeOut() &&
		strings.TrimSpace(m.Minutes) == "" && strings.TrimSpace(m.Hours) == "" {
		return fmt.Errorf("mapping requires a time, minutes or hours column")
	}
	return nil
}

func normalizeColumn(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	trimmed = strings.ReplaceAll(trimmed, "_", "")
	trimmed = strings.ReplaceAll(trimmed, "-", "")
	trimmed = strings.ReplaceAll(trimmed, " ", "")
	return trimmed
}

// Employee is the subset of the staff directory the payroll join needs.
type Employee struct {
	ID          int64
	Name        string
	ExternalRef string
	Email       string
	HourlyRate  float64
}
