// Package classify decides which ingestion strategy applies to a mapped
// time-log file. The decision is a pure function of the raw rows and the
// column mapping, so it can be tested apart from reconciliation.
package classify

import (
	"strings"

	"smartsteps/internal/timeutil"
	"smartsteps/timelog"
)

type Strategy int

const (
	// StrategyStandard treats each row as one complete shift: separate
	// in/out values, or an explicit minutes/hours column.
	StrategyStandard Strategy = iota
	// StrategyFingerprint treats each row as a single undifferentiated punch
	// to be paired positionally, the way fingerprint-scanner exports log.
	StrategyFingerprint
	// StrategyEvent pairs punches by an explicit clock-in/clock-out marker
	// column.
	StrategyEvent
)

func (s Strategy) String() string {
	switch s {
	case StrategyFingerprint:
		return "fingerprint-scanner"
	case StrategyEvent:
		return "event-based"
	default:
		return "standard"
	}
}

// Detect applies the strategy rules in priority order; the first match wins.
// Multi-punch detection runs first and overrides whatever the mapping claims,
// because punch-clock exports routinely reuse one time column for both clock-in
// and clock-out rows.
func Detect(rows []timelog.RawRow, mapping timelog.ColumnMapping) Strategy {
	if !mapping.HasEventType() {
		if hasMultiPunchGroup(rows) {
			return StrategyFingerprint
		}
		if mapping.SameTimeColumn() {
			return StrategyFingerprint
		}
		if mapping.HasTimeIn() && !mapping.HasTimeOut() {
			return StrategyFingerprint
		}
		if mapping.HasTimeIn() && mapping.HasTimeOut() {
			return StrategyFingerprint
		}
		return StrategyStandard
	}

	if mapping.SameTimeColumn() {
		return StrategyEvent
	}
	return StrategyStandard
}

func hasMultiPunchGroup(rows []timelog.RawRow) bool {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		key := GroupKey(row)
		counts[key]++
		if counts[key] > 1 {
			return true
		}
	}
	return false
}

// GroupKey identifies the (employee, calendar date) bucket a row belongs to.
func GroupKey(row timelog.RawRow) string {
	employee := strings.ToLower(strings.TrimSpace(row.Employee))
	if employee == "" {
		employee = strings.ToLower(strings.TrimSpace(row.EmployeeRef))
	}
	return timeutil.DayKey(row.WorkDate) + "|" + employee
}
