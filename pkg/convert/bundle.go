package convert

import "github.com/google/uuid"

// Entry is one produced resource: the synthetic envelope
// { resourceType, id, ...fields } described in §3/§6. Fields is a FieldMap,
// not a plain Go map, so the resource's fields serialize in the order its
// template declared them in rather than Go's alphabetical map-key order.
type Entry struct {
	ResourceType string
	ID           string
	Fields       *FieldMap
}

// MarshalJSON writes resourceType and id first, then every field in
// template declaration order.
func (e *Entry) MarshalJSON() ([]byte, error) {
	out := NewFieldMap()
	out.Set("resourceType", e.ResourceType)
	out.Set("id", e.ID)
	if e.Fields != nil {
		for _, k := range e.Fields.Keys() {
			v, _ := e.Fields.Get(k)
			out.Set(k, v)
		}
	}
	return out.MarshalJSON()
}

// Bundle is the ordered, per-conversion output collection described in
// §3/§6: entries in Resource-Entry declaration order, each with a stable
// synthetic id, plus the RFC 3339 instant the conversion produced them.
// Two runs over identical input produce byte-identical output modulo
// Entries' ids and this Timestamp (§8's Ordering Stability property).
type Bundle struct {
	Timestamp string
	Entries   []*Entry
}

// NewBundle returns an empty bundle, ready for one conversion.
func NewBundle() *Bundle {
	return &Bundle{}
}

// Add appends a produced entry and returns it.
func (b *Bundle) Add(resourceType string, fields *FieldMap) *Entry {
	e := &Entry{ResourceType: resourceType, ID: uuid.NewString(), Fields: fields}
	b.Entries = append(b.Entries, e)
	return e
}

// ReferenceCache is the per-conversion index from resourceType to the most
// recently produced id of that type (§4.5): published by the Resource
// Builder after an isReferenced entry is appended, consumed by the
// evaluator's Reference expressions.
type ReferenceCache struct {
	byType map[string]string
}

// NewReferenceCache returns an empty cache for one conversion.
func NewReferenceCache() *ReferenceCache {
	return &ReferenceCache{byType: make(map[string]string)}
}

// Publish overwrites any prior binding for resourceType, so a later entry
// of the same type always becomes the one referenced next.
func (r *ReferenceCache) Publish(resourceType, id string) {
	r.byType[resourceType] = id
}

// Lookup returns the most recently published id for resourceType.
func (r *ReferenceCache) Lookup(resourceType string) (string, bool) {
	id, ok := r.byType[resourceType]
	return id, ok
}
