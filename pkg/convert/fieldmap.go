package convert

import (
	"bytes"
	"encoding/json"
)

// FieldMap is an ordered field map: Go's encoding/json always sorts a plain
// map's keys alphabetically, which would scramble the template-declaration
// order §5 requires a resource's fields to keep. FieldMap carries its own
// key order and marshals itself directly instead of going through a map.
type FieldMap struct {
	keys   []string
	values map[string]interface{}
}

// NewFieldMap returns an empty, ordered field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string]interface{})}
}

// Set appends key in declaration order the first time it is set; a later
// Set of the same key updates the value in place without moving it.
func (m *FieldMap) Set(key string, value interface{}) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value bound to key, if any.
func (m *FieldMap) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the field names in declaration order.
func (m *FieldMap) Keys() []string {
	return m.keys
}

// Len reports the number of fields set.
func (m *FieldMap) Len() int {
	return len(m.keys)
}

// MarshalJSON writes the object in Keys() order rather than Go's default
// alphabetical map order.
func (m *FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
