package importer

import (
	"strings"
)

// Record is one source row: cell values keyed by normalized header name.
type Record struct {
	RowNumber int
	Values    map[string]string
}

// Get returns the trimmed cell value for the first matching column name.
// An empty column name never matches.
func (r Record) Get(columns ...string) string {
	for _, column := range columns {
		normalized := normalizeHeader(column)
		if normalized == "" {
			continue
		}
		if value, ok := r.Values[normalized]; ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeHeader(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	trimmed = strings.ReplaceAll(trimmed, "_", "")
	trimmed = strings.ReplaceAll(trimmed, "-", "")
	trimmed = strings.ReplaceAll(trimmed, " ", "")
	return trimmed
}
