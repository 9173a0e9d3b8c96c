package storage

import (
	"encoding/json"
	"fmt"

	"smartsteps/timelog"
)

// Column mappings are persisted on the import record as JSON for audit and
// reuse.
func mappingJSON(mapping timelog.ColumnMapping) (string, error) {
	blob, err := json.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("encode column mapping: %w", err)
	}
	return string(blob), nil
}

func unmarshalMapping(blob string, mapping *timelog.ColumnMapping) error {
	if blob == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(blob), mapping); err != nil {
		return fmt.Errorf("decode column mapping: %w", err)
	}
	return nil
}
