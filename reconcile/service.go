// Package reconcile pairs raw time-log punches into shift rows according to
// the detected ingestion strategy.
package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"smartsteps/internal/classify"
	"smartsteps/timelog"
)

type Result struct {
	Rows       []timelog.ShiftRow
	Groups     int
	Incomplete int
	Skipped    int
	Warnings   []string
}

// Options tunes edge-case handling on the standard path.
type Options struct {
	// StrictMapping fails a row outright when its in/out source values are
	// textually identical, instead of dropping the out value with a warning.
	StrictMapping bool
}

func Run(rows []timelog.RawRow, strategy classify.Strategy, options Options) *Result {
	result := &Result{Rows: make([]timelog.ShiftRow, 0, len(rows))}

	switch strategy {
	case classify.StrategyFingerprint:
		runFingerprint(rows, result)
	case classify.StrategyEvent:
		runEvent(rows, result)
	default:
		runStandard(rows, options, result)
	}

	for i := range result.Rows {
		result.Rows[i].RowIndex = i
	}
	return result
}

// groupRows buckets rows by (employee, date), preserving first-seen group
// order and original row order within each group.
func groupRows(rows []timelog.RawRow) ([]string, map[string][]timelog.RawRow) {
	keys := make([]string, 0, 16)
	groups := make(map[string][]timelog.RawRow, 16)
	for _, row := range rows {
		key := classify.GroupKey(row)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], row)
	}
	return keys, groups
}

func runFingerprint(rows []timelog.RawRow, result *Result) {
	keys, groups := groupRows(rows)
	result.Groups = len(keys)

	for _, key := range keys {
		punches := make([]timelog.RawRow, 0, len(groups[key]))
		for _, row := range groups[key] {
			if row.PunchAt() == nil {
				result.Skipped++
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("row %d: unparseable punch time %q", row.RowNumber, row.PunchRaw()))
				continue
			}
			punches = append(punches, row)
		}
		if len(punches) == 0 {
			continue
		}

		sort.SliceStable(punches, func(i, j int) bool {
			return punches[i].PunchAt().Before(*punches[j].PunchAt())
		})

		for i := 0; i < len(punches); i += 2 {
			if i+1 < len(punches) {
				result.Rows = append(result.Rows, pairShift(punches[i], punches[i+1]))
				continue
			}
			result.Rows = append(result.Rows, incompleteShift(punches[i]))
			result.Incomplete++
		}
	}
}

func runEvent(rows []timelog.RawRow, result *Result) {
	keys, groups := groupRows(rows)
	result.Groups = len(keys)

	for _, key := range keys {
		events := make([]timelog.RawRow, 0, len(groups[key]))
		for _, row := range groups[key] {
			if row.PunchAt() == nil {
				result.Skipped++
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("row %d: unparseable punch time %q", row.RowNumber, row.PunchRaw()))
				continue
			}
			events = append(events, row)
		}

		// Source systems sort event rows by the raw time string, not the
		// parsed time. Preserved as-is, including the "9:59" < "10:00"
		// misordering that implies.
		sort.SliceStable(events, func(i, j int) bool {
			return strings.TrimSpace(events[i].PunchRaw()) < strings.TrimSpace(events[j].PunchRaw())
		})

		var pending *timelog.RawRow
		for i := range events {
			row := events[i]
			switch eventKind(row.Event) {
			case eventIn:
				// First clock-in wins until consumed by a clock-out.
				if pending == nil {
					pending = &events[i]
				}
			case eventOut:
				if pending == nil {
					result.Skipped++
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("row %d: clock-out without a pending clock-in", row.RowNumber))
					continue
				}
				result.Rows = append(result.Rows, pairShift(*pending, row))
				pending = nil
			default:
				result.Skipped++
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("row %d: unrecognized event type %q", row.RowNumber, row.Event))
			}
		}
		if pending != nil {
			result.Rows = append(result.Rows, incompleteShift(*pending))
			result.Incomplete++
		}
	}
}

type eventClass int

const (
	eventUnknown eventClass = iota
	eventIn
	eventOut
)

func eventKind(raw string) eventClass {
	lower := strings.ToLower(strings.TrimSpace(raw))
	in := strings.Contains(lower, "in")
	out := strings.Contains(lower, "out")
	switch {
	case in && !out:
		return eventIn
	case out && !in:
		return eventOut
	default:
		return eventUnknown
	}
}

func runStandard(rows []timelog.RawRow, options Options, result *Result) {
	result.Groups = len(rows)

	for _, row := range rows {
		in, out := row.In, row.Out
		outRaw := row.OutRaw
		note := ""

		inText := strings.TrimSpace(row.InRaw)
		outText := strings.TrimSpace(row.OutRaw)
		if inText != "" && inText == outText {
			// Almost certainly one source column mapped into both roles.
			if options.StrictMapping {
				result.Skipped++
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("row %d: identical in/out values %q rejected (strict mapping)", row.RowNumber, inText))
				continue
			}
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: identical in/out values %q, out discarded", row.RowNumber, inText))
			out, outRaw = nil, ""
			note = "out discarded: identical in/out source values"
		}
		if in != nil && out != nil && out.Equal(*in) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: out time equals in time, out discarded", row.RowNumber))
			out, outRaw = nil, ""
			note = "out discarded: equal to in"
		}

		shift := timelog.ShiftRow{
			Employee:    row.Employee,
			EmployeeRef: row.EmployeeRef,
			WorkDate:    row.WorkDate,
			TimeIn:      in,
		}

		switch {
		case in != nil && out != nil:
			adjusted, minutes := pairTimes(*in, *out)
			shift.TimeOut = adjusted
			shift.Minutes = minutes
			if minutes != nil {
				hours := roundHours(float64(*minutes) / 60)
				shift.Hours = &hours
			}
		case row.MinutesRaw != "" || row.HoursRaw != "":
			minutes, hours, err := parseWorkedAmount(row.MinutesRaw, row.HoursRaw)
			if err != nil {
				result.Skipped++
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("row %d: %v", row.RowNumber, err))
				continue
			}
			shift.Minutes = minutes
			shift.Hours = hours
		}

		if shift.TimeIn == nil && shift.TimeOut == nil && shift.Minutes == nil && shift.Hours == nil {
			result.Skipped++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: no usable time values", row.RowNumber))
			continue
		}

		if shift.TimeIn != nil && shift.TimeOut == nil {
			shift.Incomplete = true
			result.Incomplete++
		}
		shift.RawAudit = auditBlob([]timelog.RawRow{row}, row.InRaw, outRaw, shift.Incomplete, note)
		result.Rows = append(result.Rows, shift)
	}
}

// pairShift builds one shift from an in punch and an out punch, applying the
// overnight correction.
func pairShift(inRow, outRow timelog.RawRow) timelog.ShiftRow {
	in := *inRow.PunchAt()
	adjusted, minutes := pairTimes(in, *outRow.PunchAt())

	shift := timelog.ShiftRow{
		Employee:    inRow.Employee,
		EmployeeRef: inRow.EmployeeRef,
		WorkDate:    inRow.WorkDate,
		TimeIn:      &in,
		TimeOut:     adjusted,
		Minutes:     minutes,
	}
	if minutes != nil {
		hours := roundHours(float64(*minutes) / 60)
		shift.Hours = &hours
	}
	shift.RawAudit = auditBlob([]timelog.RawRow{inRow, outRow}, inRow.PunchRaw(), outRow.PunchRaw(), false, "")
	return shift
}

func incompleteShift(row timelog.RawRow) timelog.ShiftRow {
	at := *row.PunchAt()
	shift := timelog.ShiftRow{
		Employee:    row.Employee,
		EmployeeRef: row.EmployeeRef,
		WorkDate:    row.WorkDate,
		TimeIn:      &at,
		Incomplete:  true,
	}
	shift.RawAudit = auditBlob([]timelog.RawRow{row}, row.PunchRaw(), "", true, "")
	return shift
}

// pairTimes applies the overnight correction and computes worked minutes.
// Minutes is nil when the adjusted difference is still not positive.
func pairTimes(in, out time.Time) (*time.Time, *int) {
	if out.Before(in) {
		out = out.Add(24 * time.Hour)
	}
	minutes := int(out.Sub(in).Minutes())
	if minutes <= 0 {
		return &out, nil
	}
	return &out, &minutes
}

func parseWorkedAmount(minutesRaw, hoursRaw string) (*int, *float64, error) {
	if strings.TrimSpace(minutesRaw) != "" {
		value, err := parseDecimal(minutesRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("parse minutes %q: %w", minutesRaw, err)
		}
		minutes := int(math.Round(value))
		if minutes < 0 {
			return nil, nil, fmt.Errorf("minutes must not be negative")
		}
		hours := roundHours(float64(minutes) / 60)
		return &minutes, &hours, nil
	}

	value, err := parseDecimal(hoursRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse hours %q: %w", hoursRaw, err)
	}
	if value < 0 {
		return nil, nil, fmt.Errorf("hours must not be negative")
	}
	minutes := int(math.Round(value * 60))
	hours := roundHours(value)
	return &minutes, &hours, nil
}

func parseDecimal(raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	return strconv.ParseFloat(cleaned, 64)
}

func roundHours(value float64) float64 {
	return math.Round(value*100) / 100
}

type auditSource struct {
	Row   int    `json:"row"`
	Time  string `json:"time,omitempty"`
	Event string `json:"event,omitempty"`
}

type auditPayload struct {
	Sources      []auditSource `json:"sources"`
	In           string        `json:"in,omitempty"`
	Out          string        `json:"out,omitempty"`
	IsIncomplete bool          `json:"isIncomplete,omitempty"`
	Note         string        `json:"note,omitempty"`
}

func auditBlob(sources []timelog.RawRow, inRaw, outRaw string, incomplete bool, note string) string {
	payload := auditPayload{
		Sources:      make([]auditSource, 0, len(sources)),
		In:           strings.TrimSpace(inRaw),
		Out:          strings.TrimSpace(outRaw),
		IsIncomplete: incomplete,
		Note:         note,
	}
	for _, source := range sources {
		payload.Sources = append(payload.Sources, auditSource{
			Row:   source.RowNumber,
			Time:  strings.TrimSpace(source.PunchRaw()),
			Event: strings.TrimSpace(source.Event),
		})
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
