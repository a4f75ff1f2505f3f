// Handles schema definition, column types, and reflection-based schema generation.

package flatdb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// ColumnType is the semantic type of a column.
type ColumnType string

const (
	// TypeAuto has no declared type; values are encoded by their Go type and
	// decoded by shape.
	TypeAuto ColumnType = "auto"
	// TypeInteger stores int64 values.
	TypeInteger ColumnType = "integer"
	// TypeFloat stores float64 values.
	TypeFloat ColumnType = "float"
	// TypeBool stores true/false.
	TypeBool ColumnType = "bool"
	// TypeDateTime stores a time.Time with second precision.
	TypeDateTime ColumnType = "datetime"
	// TypeDate stores the calendar date of a time.Time.
	TypeDate ColumnType = "date"
	// TypeText stores strings.
	TypeText ColumnType = "text"
)

func (t ColumnType) valid() bool {
	switch t {
	case TypeAuto, TypeInteger, TypeFloat, TypeBool, TypeDateTime, TypeDate, TypeText:
		return true
	}
	return false
}

// Column is one column of a table.
type Column struct {
	Name        string
	Type        ColumnType
	Identity    bool
	Description string
}

// Schema is the immutable column layout of a table.
type Schema struct {
	table    string
	columns  []Column
	identity []int

	// Set by SchemaFor: Go field index path for each column.
	fields [][]int
}

// NewSchema builds a schema for the named table from explicit column
// definitions. Columns with an empty Type are TypeAuto.
func NewSchema(table string, cols ...Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, schemaErrorf(table, "no columns declared")
	}
	s := &Schema{table: table, columns: make([]Column, len(cols))}
	seen := make(map[string]bool, len(cols))
	for i, c := range cols {
		if c.Name == "" {
			return nil, schemaErrorf(table, "column %d: name is required", i)
		}
		if seen[c.Name] {
			return nil, schemaErrorf(table, "column %q declared twice", c.Name)
		}
		seen[c.Name] = true
		if c.Type == "" {
			c.Type = TypeAuto
		}
		if !c.Type.valid() {
			return nil, schemaErrorf(table, "column %q: unknown type %q", c.Name, c.Type)
		}
		if c.Identity {
			s.identity = append(s.identity, i)
		}
		s.columns[i] = c
	}
	return s, nil
}

// Table returns the table name.
func (s *Schema) Table() string {
	return s.table
}

// Columns returns a copy of the column definitions in header order.
func (s *Schema) Columns() []Column {
	return slices.Clone(s.columns)
}

// Names returns the column names in header order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Identity returns the names of the identity columns.
func (s *Schema) Identity() []string {
	names := make([]string, len(s.identity))
	for i, idx := range s.identity {
		names[i] = s.columns[idx].Name
	}
	return names
}

// HasIdentity reports whether the schema declares identity columns.
func (s *Schema) HasIdentity() bool {
	return len(s.identity) != 0
}

// Column returns the column with the given name.
func (s *Schema) Column(name string) (Column, bool) {
	for _, c := range s.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// JSONSchema describes the records of the table as a JSON Schema object.
// Identity columns are listed as required.
func (s *Schema) JSONSchema() *jsonschema.Schema {
	js := &jsonschema.Schema{
		Version:    jsonschema.Version,
		Title:      s.table,
		Type:       "object",
		Properties: jsonschema.NewProperties(),
	}
	for _, c := range s.columns {
		prop := &jsonschema.Schema{Description: c.Description}
		switch c.Type {
		case TypeInteger:
			prop.Type = "integer"
		case TypeFloat:
			prop.Type = "number"
		case TypeBool:
			prop.Type = "boolean"
		case TypeDateTime:
			prop.Type = "string"
			prop.Format = "date-time"
		case TypeDate:
			prop.Type = "string"
			prop.Format = "date"
		case TypeText:
			prop.Type = "string"
		case TypeAuto:
		}
		if c.Identity {
			js.Required = append(js.Required, c.Name)
		}
		js.Properties.Set(c.Name, prop)
	}
	return js
}

// TableNamer is implemented by record types to name their table.
type TableNamer interface {
	TableName() string
}

var schemaCache sync.Map // reflect.Type -> *Schema

// SchemaFor derives the schema of struct type T, memoized per type.
//
// Persisted fields carry a `db:"NAME"` tag, optionally followed by the "id"
// option for identity columns and the "date" option to store a time.Time as a
// date only. Descriptions come from `jsonschema:"description=..."` tags. The
// table name comes from a TableName method on T or *T.
func SchemaFor[T any]() (*Schema, error) {
	t := reflect.TypeFor[T]()
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema), nil
	}
	s, err := schemaFromType(t)
	if err != nil {
		return nil, err
	}
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

func schemaFromType(t reflect.Type) (*Schema, error) {
	if t.Kind() != reflect.Struct {
		return nil, schemaErrorf("", "type must be a struct, got %s", t)
	}
	namer, ok := reflect.New(t).Interface().(TableNamer)
	if !ok {
		return nil, schemaErrorf("", "%s has no TableName method", t)
	}
	table := namer.TableName()
	if table == "" {
		return nil, schemaErrorf("", "%s has an empty table name", t)
	}

	// The reflector yields properties in declaration order, embedded structs
	// inlined, with `db:"-"` and unexported fields already dropped.
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, FieldNameTag: "db"}
	js := r.ReflectFromType(t)

	var tagged []string
	byName := make(map[string]reflect.StructField)
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		name, _ := parseDBTag(tag)
		if name == "" {
			return nil, schemaErrorf(table, "field %s: db tag has no column name", f.Name)
		}
		if _, dup := byName[name]; dup {
			return nil, schemaErrorf(table, "column %q declared twice", name)
		}
		byName[name] = f
		tagged = append(tagged, name)
	}

	// Column order is the property order. Tagged fields the reflector skipped
	// follow in field order.
	var order []string
	descriptions := make(map[string]string)
	if js.Properties != nil {
		for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if _, ok := byName[pair.Key]; !ok {
				// Untagged field: not persisted.
				continue
			}
			order = append(order, pair.Key)
			descriptions[pair.Key] = pair.Value.Description
		}
	}
	for _, name := range tagged {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	cols := make([]Column, 0, len(order))
	fields := make([][]int, 0, len(order))
	for _, name := range order {
		f := byName[name]
		_, opts := parseDBTag(f.Tag.Get("db"))
		colType, err := goTypeToColumnType(f.Type, slices.Contains(opts, "date"))
		if err != nil {
			return nil, schemaErrorf(table, "field %s: %v", f.Name, err)
		}
		cols = append(cols, Column{
			Name:        name,
			Type:        colType,
			Identity:    slices.Contains(opts, "id"),
			Description: descriptions[name],
		})
		fields = append(fields, f.Index)
	}

	s, err := NewSchema(table, cols...)
	if err != nil {
		return nil, err
	}
	s.fields = fields
	return s, nil
}

// parseDBTag splits `NAME,opt1,opt2`.
func parseDBTag(tag string) (string, []string) {
	parts := strings.Split(tag, ",")
	return strings.TrimSpace(parts[0]), parts[1:]
}

var timeType = reflect.TypeFor[time.Time]()

// goTypeToColumnType maps Go field types to column types.
func goTypeToColumnType(t reflect.Type, dateOnly bool) (ColumnType, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		if dateOnly {
			return TypeDate, nil
		}
		return TypeDateTime, nil
	}
	if dateOnly {
		return "", errors.New("date option requires a time.Time field")
	}
	switch t.Kind() { //nolint:exhaustive // Everything else is unsupported.
	case reflect.String:
		return TypeText, nil
	case reflect.Bool:
		return TypeBool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger, nil
	case reflect.Float32, reflect.Float64:
		return TypeFloat, nil
	}
	return "", fmt.Errorf("unsupported type %s", t)
}
