package postgres

import (
	"encoding/json"
)

// marshalStringList serializes a string slice to a JSON column value.
func marshalStringList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// unmarshalStringList parses a JSON column value into a string slice.
// Malformed values decode to an empty list rather than failing the row.
func unmarshalStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}
