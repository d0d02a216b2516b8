package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Reserved relationship field names inside a document body.
const (
	FieldID         = "_id"
	FieldParent     = "_ed_parent"
	FieldChildren   = "_ed_child"
	FieldAttachment = "_ed_attachment"
)

// Ref points at exactly one document in a named collection.
type Ref struct {
	Collection string `json:"$ref"`
	ID         string `json:"$id"`
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Document is one schema-flexible record in a collection.
//
// Relationship fields are kept out of Fields; they are folded back into the
// body under the reserved keys when the document is serialized.
type Document struct {
	Collection  string         `json:"-"`
	ID          string         `json:"-"`
	Parent      *Ref           `json:"-"`
	Children    []Ref          `json:"-"`
	Attachments []string       `json:"-"`
	Fields      map[string]any `json:"-"`
	Revision    int64          `json:"-"`
	CreatedAt   time.Time      `json:"-"`
	UpdatedAt   time.Time      `json:"-"`
}

// Ref returns the reference addressing this document.
func (d *Document) Ref() Ref {
	return Ref{Collection: d.Collection, ID: d.ID}
}

// Clone returns a copy that shares no slices or maps with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	if d.Parent != nil {
		parent := *d.Parent
		out.Parent = &parent
	}
	out.Children = append([]Ref(nil), d.Children...)
	out.Attachments = append([]string(nil), d.Attachments...)
	out.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	return &out
}

// HasAttachment reports whether blobID is referenced by the document.
func (d *Document) HasAttachment(blobID string) bool {
	for _, id := range d.Attachments {
		if id == blobID {
			return true
		}
	}
	return false
}

// WithAttachments returns a copy of d whose attachment list is ids with
// duplicates removed. An empty list drops the field entirely.
func (d *Document) WithAttachments(ids []string) *Document {
	out := d.Clone()
	out.Attachments = dedupeStrings(ids)
	return out
}

// MarshalJSON writes the persisted body: user fields plus reserved keys.
func (d Document) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(d.Fields)+3)
	for k, v := range d.Fields {
		if isReservedField(k) {
			continue
		}
		body[k] = v
	}
	if d.Parent != nil {
		body[FieldParent] = *d.Parent
	}
	if len(d.Children) > 0 {
		body[FieldChildren] = d.Children
	}
	if len(d.Attachments) > 0 {
		body[FieldAttachment] = d.Attachments
	}
	return json.Marshal(body)
}

// UnmarshalJSON reads a persisted body back into typed relationship fields.
func (d *Document) UnmarshalJSON(data []byte) error {
	var reserved struct {
		Parent      *Ref     `json:"_ed_parent"`
		Children    []Ref    `json:"_ed_child"`
		Attachments []string `json:"_ed_attachment"`
	}
	if err := json.Unmarshal(data, &reserved); err != nil {
		return fmt.Errorf("decode document relationships: %w", err)
	}

	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("decode document fields: %w", err)
	}
	for key := range fields {
		if isReservedField(key) {
			delete(fields, key)
		}
	}

	d.Parent = reserved.Parent
	d.Children = reserved.Children
	d.Attachments = reserved.Attachments
	d.Fields = fields
	return nil
}

func isReservedField(key string) bool {
	switch key {
	case FieldID, FieldParent, FieldChildren, FieldAttachment:
		return true
	default:
		return false
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
