package entities

import (
	"encoding/json"
	"fmt"
	"reflect"
)

type RecordDecoratorFunc func(r *Record)

// Record is a schemaless entity backed by a map of lazy fields and a
// map of relationship paths. It is the workhorse type used by the
// daemon and by tests, but any type with a Model can flow through
// the store stack.
type Record struct {
	id         Identifier
	recordType string
	fields     map[string]Lazy[any]
	related    map[string][]Identifier
}

func F(name string, value any) RecordDecoratorFunc {
	return func(r *Record) {
		r.fields[name] = Requested(value)
	}
}

// Placeholder declares a field that exists on the record but whose
// value has not been requested from its source.
func Placeholder(name string) RecordDecoratorFunc {
	return func(r *Record) {
		r.fields[name] = NotRequested[any]()
	}
}

func R(path string, objects ...Identifier) RecordDecoratorFunc {
	return func(r *Record) {
		r.related[path] = objects
	}
}

func NewRecord(id Identifier, recordType string, decorators ...RecordDecoratorFunc) *Record {
	r := &Record{
		id:         id,
		recordType: recordType,
		fields:     map[string]Lazy[any]{},
		related:    map[string][]Identifier{},
	}

	for _, decorate := range decorators {
		decorate(r)
	}

	return r
}

func (r *Record) Identifier() Identifier {
	return r.id
}

func (r *Record) RecordType() string {
	return r.recordType
}

func (r *Record) Field(name string) (any, bool) {
	lazy, ok := r.fields[name]
	if !ok {
		return nil, false
	}
	return lazy.Value()
}

func (r *Record) Related(path string) []Identifier {
	return r.related[path]
}

func (r *Record) ForEachField(callback func(name string, value Lazy[any])) {
	for name, value := range r.fields {
		callback(name, value)
	}
}

func (r *Record) MarshalJSON() ([]byte, error) {
	contents := map[string]any{
		"id":   r.id,
		"type": r.recordType,
	}

	if len(r.fields) > 0 {
		contents["fields"] = r.fields
	}

	if len(r.related) > 0 {
		contents["related"] = r.related
	}

	return json.Marshal(&contents)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	repr := struct {
		ID      Identifier              `json:"id"`
		Type    string                  `json:"type"`
		Fields  map[string]Lazy[any]    `json:"fields"`
		Related map[string][]Identifier `json:"related"`
	}{}

	err := json.Unmarshal(data, &repr)
	if err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}

	r.id = repr.ID
	r.recordType = repr.Type
	r.fields = repr.Fields
	r.related = repr.Related

	if r.fields == nil {
		r.fields = map[string]Lazy[any]{}
	}

	if r.related == nil {
		r.related = map[string][]Identifier{}
	}

	return nil
}

// NewRecordModel returns a Model over records of the given type with
// the given declared relationship paths.
func NewRecordModel(recordType string, paths ...PathSpec) Model[*Record] {
	return &recordModel{recordType: recordType, paths: paths}
}

type recordModel struct {
	recordType string
	paths      []PathSpec
}

func (m *recordModel) EntityType() string {
	return m.recordType
}

func (m *recordModel) Identity(r *Record) Identifier {
	return r.id
}

func (m *recordModel) Value(r *Record, field string) (any, bool) {
	return r.Field(field)
}

func (m *recordModel) Merge(existing, incoming *Record) *Record {
	merged := &Record{
		id:         existing.id,
		recordType: existing.recordType,
		fields:     map[string]Lazy[any]{},
		related:    map[string][]Identifier{},
	}

	// A remote confirmation on either side survives the merge
	if incoming.id.IsSynced() {
		merged.id = incoming.id
	}

	for name, value := range existing.fields {
		merged.fields[name] = value
	}

	for name, value := range incoming.fields {
		merged.fields[name] = merged.fields[name].Merge(value)
	}

	for path, objects := range existing.related {
		merged.related[path] = objects
	}

	for path, objects := range incoming.related {
		if len(objects) > 0 {
			merged.related[path] = objects
		}
	}

	return merged
}

func (m *recordModel) Identical(a, b *Record) bool {
	if !a.id.Equals(b.id) || a.recordType != b.recordType {
		return false
	}

	return reflect.DeepEqual(a.fields, b.fields) && reflect.DeepEqual(a.related, b.related)
}

func (m *recordModel) RelationshipPaths() []PathSpec {
	return m.paths
}

func (m *recordModel) Related(r *Record, path string) []Identifier {
	return r.related[path]
}

func (m *recordModel) EncodeSlice(items []*Record) ([]byte, error) {
	return json.Marshal(items)
}

func (m *recordModel) DecodeSlice(data []byte) ([]*Record, error) {
	records := []*Record{}

	err := json.Unmarshal(data, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}

	for _, r := range records {
		if r == nil {
			return nil, fmt.Errorf("failed to parse record: null element")
		}
		if r.recordType == "" {
			return nil, fmt.Errorf("failed to parse record: missing type")
		}
	}

	return records, nil
}
