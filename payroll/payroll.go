// Package payroll aggregates reconciled shift rows into payable run lines.
package payroll

import (
	"fmt"
	"math"
	"sort"
	"time"

	"smartsteps/timelog"
)

type Run struct {
	ID          int64
	ImportID    int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	CreatedAt   time.Time
	EmailedAt   *time.Time
	Lines       []Line
}

// Line is one employee's totals for a run. HourlyRate is snapshotted at run
// creation; AmountPaid is the only field mutated afterwards.
type Line struct {
	ID           int64
	RunID        int64
	EmployeeID   int64
	Employee     string
	TotalMinutes int
	TotalHours   float64
	HourlyRate   float64
	GrossPay     float64
	AmountPaid   float64
}

func (l Line) AmountOwed() float64 {
	return round2(l.GrossPay - l.AmountPaid)
}

// Store is the persistence contract the aggregator needs.
type Store interface {
	ListShiftRowsForPeriod(importID int64, from, to time.Time) ([]timelog.ShiftRow, error)
	ListEmployees() ([]timelog.Employee, error)
	CreateRun(run *Run) error
}

type Result struct {
	Run          *Run
	RowsIncluded int
	RowsUnlinked int
	RowsNoTime   int
}

// BuildRun sums worked time per linked employee over the period and persists
// one run with one line per employee. Hours are preferred over minutes when a
// row carries both; rows without a linked employee or without any computed
// time are counted but excluded.
func BuildRun(store Store, importID int64, from, to time.Time, rateOverrides map[int64]float64) (*Result, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("period end %s precedes start %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	rows, err := store.ListShiftRowsForPeriod(importID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list shift rows: %w", err)
	}

	employees, err := store.ListEmployees()
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	byID := make(map[int64]timelog.Employee, len(employees))
	for _, employee := range employees {
		byID[employee.ID] = employee
	}

	result := &Result{}
	totals := make(map[int64]*Line, len(employees))
	order := make([]int64, 0, len(employees))

	for _, row := range rows {
		if row.EmployeeID == nil {
			result.RowsUnlinked++
			continue
		}

		minutes, hours, ok := workedAmount(row)
		if !ok {
			result.RowsNoTime++
			continue
		}
		result.RowsIncluded++

		employeeID := *row.EmployeeID
		line, exists := totals[employeeID]
		if !exists {
			employee, known := byID[employeeID]
			if !known {
				return nil, fmt.Errorf("shift row %d references unknown employee %d", row.ID, employeeID)
			}
			rate := employee.HourlyRate
			if override, overridden := rateOverrides[employeeID]; overridden {
				rate = override
			}
			line = &Line{EmployeeID: employeeID, Employee: employee.Name, HourlyRate: rate}
			totals[employeeID] = line
			order = append(order, employeeID)
		}

		line.TotalMinutes += minutes
		line.TotalHours += hours
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	run := &Run{
		ImportID:    importID,
		PeriodStart: from,
		PeriodEnd:   to,
		Lines:       make([]Line, 0, len(order)),
	}
	for _, employeeID := range order {
		line := totals[employeeID]
		line.TotalHours = round2(line.TotalHours)
		line.GrossPay = round2(line.TotalHours * line.HourlyRate)
		run.Lines = append(run.Lines, *line)
	}

	if err := store.CreateRun(run); err != nil {
		return nil, fmt.Errorf("persist payroll run: %w", err)
	}

	result.Run = run
	return result, nil
}

func workedAmount(row timelog.ShiftRow) (minutes int, hours float64, ok bool) {
	switch {
	case row.Hours != nil:
		hours = *row.Hours
		if row.Minutes != nil {
			minutes = *row.Minutes
		} else {
			minutes = int(math.Round(hours * 60))
		}
		return minutes, hours, true
	case row.Minutes != nil:
		minutes = *row.Minutes
		return minutes, float64(minutes) / 60, true
	default:
		return 0, 0, false
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
