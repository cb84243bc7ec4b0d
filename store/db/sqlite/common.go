package sqlite

import (
	"encoding/json"
	"strings"
)

// placeholders returns n "?" placeholders for SQLite.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = "?"
	}
	return strings.Join(list, ", ")
}

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

// marshalVector serializes an embedding to a JSON column value.
func marshalVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// unmarshalVector parses a JSON column value into an embedding.
func unmarshalVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	return vec
}
