package resolve

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sidecar is a flat, insertion-ordered mapping of standardized field
// names to values. Fields are set and extended, never cleared.
type Sidecar struct {
	keys   []string
	values map[string]any
}

// NewSidecar creates an empty sidecar
func NewSidecar() *Sidecar {
	return &Sidecar{values: make(map[string]any)}
}

// Get returns a field value
func (s *Sidecar) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores a field, keeping its position when it already exists
func (s *Sidecar) Set(key string, value any) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// SetDefault stores a field only when it is missing
func (s *Sidecar) SetDefault(key string, value any) {
	if _, ok := s.values[key]; !ok {
		s.Set(key, value)
	}
}

// Extend appends items to a list field, creating it when missing
func (s *Sidecar) Extend(key string, items any) error {
	add, err := toList(items)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	current, ok := s.values[key]
	if !ok {
		s.Set(key, append([]any{}, add...))
		return nil
	}
	list, err := toList(current)
	if err != nil {
		return fmt.Errorf("%s: cannot extend: %w", key, err)
	}
	s.values[key] = append(list, add...)
	return nil
}

// Keys returns the field names in insertion order
func (s *Sidecar) Keys() []string {
	return s.keys
}

// Len returns the number of fields
func (s *Sidecar) Len() int {
	return len(s.keys)
}

// Map returns a copy of the fields as a plain map
func (s *Sidecar) Map() map[string]any {
	out := make(map[string]any, len(s.keys))
	for _, k := range s.keys {
		out[k] = s.values[k]
	}
	return out
}

// MarshalJSON writes the fields in insertion order
func (s *Sidecar) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
