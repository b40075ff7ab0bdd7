package runstore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis values
//
// The metadata hash stores each field as a plain string so individual fields can
// be read and updated with HGET/HSET. Events are stored as compact JSON strings
// inside a list.

// Metadata hash field names.
const (
	fieldStatus     = "status"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
	fieldGeneration = "generation"
	fieldMaxChars   = "max_chars"
	fieldFastMode   = "fast_mode"
)

// MetaToHash converts RunMeta to a Redis hash. Zero-valued optional fields are omitted.
func MetaToHash(m *RunMeta) map[string]interface{} {
	hash := map[string]interface{}{
		fieldStatus:     string(m.Status),
		fieldCreatedAt:  m.CreatedAt,
		fieldGeneration: m.Generation,
	}
	if m.UpdatedAt > 0 {
		hash[fieldUpdatedAt] = m.UpdatedAt
	}
	if m.MaxChars > 0 {
		hash[fieldMaxChars] = m.MaxChars
	}
	if m.FastMode {
		hash[fieldFastMode] = "true"
	}
	for k, v := range m.Extra {
		if _, reserved := hash[k]; !reserved {
			hash[k] = v
		}
	}
	return hash
}

// HashToMeta converts a Redis metadata hash back to RunMeta.
// Numeric fields that fail to parse are reported as errors; absent fields stay zero.
func HashToMeta(hash map[string]string) (*RunMeta, error) {
	meta := &RunMeta{
		Status: RunStatus(hash[fieldStatus]),
		Extra:  make(map[string]string),
	}
	if meta.Status == "" {
		meta.Status = RunStatusUnknown
	}

	var err error
	if meta.CreatedAt, err = parseInt(hash, fieldCreatedAt); err != nil {
		return nil, err
	}
	if meta.UpdatedAt, err = parseInt(hash, fieldUpdatedAt); err != nil {
		return nil, err
	}
	if meta.Generation, err = parseInt(hash, fieldGeneration); err != nil {
		return nil, err
	}
	maxChars, err := parseInt(hash, fieldMaxChars)
	if err != nil {
		return nil, err
	}
	meta.MaxChars = int(maxChars)
	meta.FastMode = hash[fieldFastMode] == "true"

	for k, v := range hash {
		switch k {
		case fieldStatus, fieldCreatedAt, fieldUpdatedAt, fieldGeneration, fieldMaxChars, fieldFastMode:
		default:
			meta.Extra[k] = v
		}
	}

	return meta, nil
}

func parseInt(hash map[string]string, field string) (int64, error) {
	raw, ok := hash[field]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s field: %w", field, err)
	}
	return v, nil
}

// EventToJSON encodes an event for storage in the events list.
func EventToJSON(e Event) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(data), nil
}

// JSONToEvent decodes a stored event.
func JSONToEvent(raw string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return e, nil
}
