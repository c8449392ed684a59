// Package schema describes the set of known document fields a formula
// may reference. A schema is an optional validation input: when absent,
// field-existence and field-type checks are skipped entirely.
package schema

// Field is a single known document field.
type Field struct {
	Name string
	// Type is the data-view type name: "number", "string", "boolean",
	// "date" or "ip".
	Type string
}

// Schema is an immutable snapshot of the known fields.
type Schema struct {
	fields []Field
	byName map[string]*Field
}

// New creates a schema from the given fields.
func New(fields []Field) *Schema {
	s := &Schema{
		fields: make([]Field, len(fields)),
		byName: make(map[string]*Field, len(fields)),
	}
	copy(s.fields, fields)
	for i := range s.fields {
		s.byName[s.fields[i].Name] = &s.fields[i]
	}
	return s
}

// Lookup returns the field with the given name.
func (s *Schema) Lookup(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Names returns all field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}
