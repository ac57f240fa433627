package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotObject is returned when a JSON document is valid but is not an object.
var ErrNotObject = errors.New("not a JSON object")

// Record is one line of a line-delimited JSON dataset.
// Field order from the source line is kept, and non-string values are kept verbatim.
type Record struct {
	// Line is the 1-based line number in the source file (0 for derived records).
	Line   int
	fields *orderedmap.OrderedMap[string, json.RawMessage]
}

// NewRecord creates an empty record attributed to the given source line.
func NewRecord(line int) Record {
	return Record{
		Line:   line,
		fields: orderedmap.New[string, json.RawMessage](),
	}
}

// Len returns the number of fields.
func (r Record) Len() int {
	if r.fields == nil {
		return 0
	}
	return r.fields.Len()
}

// Keys returns field names in insertion order.
func (r Record) Keys() []string {
	if r.fields == nil {
		return nil
	}
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Has reports whether the field is present, whatever its value.
func (r Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Get returns the raw JSON value of a field.
func (r Record) Get(key string) (json.RawMessage, bool) {
	if r.fields == nil {
		return nil, false
	}
	return r.fields.Get(key)
}

// String returns the decoded value of a string field.
// ok is false when the field is missing or holds a non-string value.
func (r Record) String(key string) (string, bool) {
	raw, ok := r.Get(key)
	if !ok || !IsJSONString(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Set stores a raw JSON value. Existing fields keep their position.
func (r *Record) Set(key string, value json.RawMessage) {
	if r.fields == nil {
		r.fields = orderedmap.New[string, json.RawMessage]()
	}
	r.fields.Set(key, value)
}

// SetString stores s as a JSON string without HTML escaping.
func (r *Record) SetString(key, s string) error {
	raw, err := marshalNoEscape(s)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	r.Set(key, raw)
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := NewRecord(r.Line)
	if r.fields == nil {
		return out
	}
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		out.fields.Set(pair.Key, append(json.RawMessage(nil), pair.Value...))
	}
	return out
}

// MarshalJSON writes the fields in order, compacted, without HTML escaping.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.fields != nil {
		first := true
		for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false

			key, err := marshalNoEscape(pair.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := json.Compact(&buf, pair.Value); err != nil {
				return nil, fmt.Errorf("field %s: %w", pair.Key, err)
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object, replacing any existing fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrNotObject
	}

	fields := orderedmap.New[string, json.RawMessage]()
	if err := fields.UnmarshalJSON(trimmed); err != nil {
		return err
	}
	r.fields = fields
	return nil
}

// IsJSONString reports whether raw encodes a JSON string.
func IsJSONString(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
