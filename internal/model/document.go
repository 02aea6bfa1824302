package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Document is the backend-neutral record shape: an identity, server-side
// timestamps, and a flat field map.
type Document struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// NewDocument builds a document with a private copy of fields.
func NewDocument(id string, createdAt time.Time, fields map[string]any) Document {
	return Document{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Fields:    CopyFields(fields),
	}
}

// Value returns the named field, resolving the identity and timestamp
// pseudo-fields first.
func (d Document) Value(field string) (any, bool) {
	switch field {
	case FieldID:
		return d.ID, true
	case FieldCreatedAt:
		return d.CreatedAt, true
	case FieldUpdatedAt:
		return d.UpdatedAt, true
	}
	v, ok := d.Fields[field]
	return v, ok
}

// Merge applies a partial update and stamps UpdatedAt.
func (d *Document) Merge(fields map[string]any, now time.Time) {
	if d.Fields == nil {
		d.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		d.Fields[k] = v
	}
	d.UpdatedAt = now
}

// Clone returns a deep-enough copy for callers that mutate Fields.
func (d Document) Clone() Document {
	d.Fields = CopyFields(d.Fields)
	return d
}

// CopyFields copies the top level of a field map, dropping reserved keys.
func CopyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		if s, ok := v.([]string); ok {
			c := make([]string, len(s))
			copy(c, s)
			v = c
		}
		out[k] = v
	}
	return out
}

// MarshalJSON flattens the document into a single JSON object.
func (d Document) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Fields)+3)
	for k, v := range d.Fields {
		flat[k] = v
	}
	flat[FieldID] = d.ID
	flat[FieldCreatedAt] = d.CreatedAt
	flat[FieldUpdatedAt] = d.UpdatedAt
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if flat == nil {
		return fmt.Errorf("document is null")
	}
	id, err := cast.ToStringE(flat[FieldID])
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	d.ID = id
	d.CreatedAt = timeOr(flat[FieldCreatedAt], time.Time{})
	d.UpdatedAt = timeOr(flat[FieldUpdatedAt], d.CreatedAt)
	delete(flat, FieldID)
	delete(flat, FieldCreatedAt)
	delete(flat, FieldUpdatedAt)
	d.Fields = flat
	return nil
}
