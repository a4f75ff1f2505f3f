package flatdb

import (
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"
)

type schemaPerson struct {
	ID      int       `db:"ID,id" jsonschema:"description=Unique identifier"`
	Born    time.Time `db:"BORN,date"`
	Name    string    `db:"NAME"`
	Score   *float64  `db:"SCORE"`
	Active  bool      `db:"ACTIVE"`
	Note    string
	Skipped string `db:"-"`
}

func (schemaPerson) TableName() string { return "PEOPLE" }

type SchemaBase struct {
	ID int `db:"ID,id"`
}

type schemaEmbedded struct {
	SchemaBase
	Name string `db:"NAME"`
}

func (*schemaEmbedded) TableName() string { return "EMBEDDED" }

type schemaNoName struct {
	ID int `db:"ID"`
}

type schemaMissingColumnName struct {
	ID int `db:",id"`
}

func (schemaMissingColumnName) TableName() string { return "BAD" }

type schemaUnsupported struct {
	Tags map[string]string `db:"TAGS"`
}

func (schemaUnsupported) TableName() string { return "BAD" }

type schemaBadDate struct {
	Name string `db:"NAME,date"`
}

func (schemaBadDate) TableName() string { return "BAD" }

type schemaUntagged struct {
	Name string
}

func (schemaUntagged) TableName() string { return "BAD" }

func TestNewSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := NewSchema("people",
			Column{Name: "id", Type: TypeInteger, Identity: true},
			Column{Name: "name"},
		)
		if err != nil {
			t.Fatalf("NewSchema error: %v", err)
		}
		if s.Table() != "people" {
			t.Errorf("Table() = %q, want %q", s.Table(), "people")
		}
		if got := s.Names(); !slices.Equal(got, []string{"id", "name"}) {
			t.Errorf("Names() = %v", got)
		}
		if got := s.Identity(); !slices.Equal(got, []string{"id"}) {
			t.Errorf("Identity() = %v", got)
		}
		if !s.HasIdentity() {
			t.Error("HasIdentity() = false, want true")
		}
		c, ok := s.Column("name")
		if !ok || c.Type != TypeAuto {
			t.Errorf("Column(name) = %+v, %v; want auto column", c, ok)
		}
		if _, ok := s.Column("missing"); ok {
			t.Error("Column(missing) found")
		}
	})

	t.Run("columns are copied", func(t *testing.T) {
		s, err := NewSchema("t", Column{Name: "a"})
		if err != nil {
			t.Fatalf("NewSchema error: %v", err)
		}
		s.Columns()[0].Name = "b"
		if s.Names()[0] != "a" {
			t.Error("Columns() exposed internal state")
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			cols []Column
		}{
			{"no columns", nil},
			{"empty name", []Column{{Name: ""}}},
			{"duplicate", []Column{{Name: "a"}, {Name: "a"}}},
			{"unknown type", []Column{{Name: "a", Type: "blob"}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewSchema("t", tt.cols...)
				if !errors.Is(err, ErrSchema) {
					t.Errorf("NewSchema error = %v, want ErrSchema", err)
				}
			})
		}
	})
}

func TestSchemaFor(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := SchemaFor[schemaPerson]()
		if err != nil {
			t.Fatalf("SchemaFor error: %v", err)
		}
		if s.Table() != "PEOPLE" {
			t.Errorf("Table() = %q, want PEOPLE", s.Table())
		}
		wantNames := []string{"ID", "BORN", "NAME", "SCORE", "ACTIVE"}
		if got := s.Names(); !slices.Equal(got, wantNames) {
			t.Errorf("Names() = %v, want %v", got, wantNames)
		}
		wantTypes := []ColumnType{TypeInteger, TypeDate, TypeText, TypeFloat, TypeBool}
		for i, c := range s.Columns() {
			if c.Type != wantTypes[i] {
				t.Errorf("column %s type = %s, want %s", c.Name, c.Type, wantTypes[i])
			}
		}
		if got := s.Identity(); !slices.Equal(got, []string{"ID"}) {
			t.Errorf("Identity() = %v, want [ID]", got)
		}
		if c, _ := s.Column("ID"); c.Description != "Unique identifier" {
			t.Errorf("ID description = %q", c.Description)
		}
	})

	t.Run("memoized", func(t *testing.T) {
		a, err := SchemaFor[schemaPerson]()
		if err != nil {
			t.Fatalf("SchemaFor error: %v", err)
		}
		b, err := SchemaFor[schemaPerson]()
		if err != nil {
			t.Fatalf("SchemaFor error: %v", err)
		}
		if a != b {
			t.Error("SchemaFor returned different schemas for the same type")
		}
	})

	t.Run("embedded struct and pointer receiver", func(t *testing.T) {
		s, err := SchemaFor[schemaEmbedded]()
		if err != nil {
			t.Fatalf("SchemaFor error: %v", err)
		}
		if s.Table() != "EMBEDDED" {
			t.Errorf("Table() = %q, want EMBEDDED", s.Table())
		}
		names := s.Names()
		if len(names) != 2 || !slices.Contains(names, "ID") || !slices.Contains(names, "NAME") {
			t.Errorf("Names() = %v, want ID and NAME", names)
		}
		if got := s.Identity(); !slices.Equal(got, []string{"ID"}) {
			t.Errorf("Identity() = %v, want [ID]", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			fn   func() (*Schema, error)
		}{
			{"not a struct", SchemaFor[int]},
			{"pointer", SchemaFor[*schemaPerson]},
			{"no table name", SchemaFor[schemaNoName]},
			{"missing column name", SchemaFor[schemaMissingColumnName]},
			{"unsupported type", SchemaFor[schemaUnsupported]},
			{"date on text", SchemaFor[schemaBadDate]},
			{"no persisted fields", SchemaFor[schemaUntagged]},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := tt.fn()
				if !errors.Is(err, ErrSchema) {
					t.Errorf("SchemaFor error = %v, want ErrSchema", err)
				}
			})
		}
	})
}

func TestGoTypeToColumnType(t *testing.T) {
	var (
		i   int
		u8  uint8
		f32 float32
		s   string
		b   bool
		tm  time.Time
		ptm *time.Time
		ch  chan int
	)
	tests := []struct {
		name     string
		v        any
		dateOnly bool
		want     ColumnType
		wantErr  bool
	}{
		{"int", i, false, TypeInteger, false},
		{"uint8", u8, false, TypeInteger, false},
		{"float32", f32, false, TypeFloat, false},
		{"string", s, false, TypeText, false},
		{"bool", b, false, TypeBool, false},
		{"time", tm, false, TypeDateTime, false},
		{"time date", tm, true, TypeDate, false},
		{"time pointer", ptm, false, TypeDateTime, false},
		{"date on int", i, true, "", true},
		{"chan", ch, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := goTypeToColumnType(reflect.TypeOf(tt.v), tt.dateOnly)
			if (err != nil) != tt.wantErr {
				t.Fatalf("goTypeToColumnType error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("goTypeToColumnType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSchemaJSONSchema(t *testing.T) {
	s, err := SchemaFor[schemaPerson]()
	if err != nil {
		t.Fatalf("SchemaFor error: %v", err)
	}
	js := s.JSONSchema()
	if js.Title != "PEOPLE" {
		t.Errorf("Title = %q, want PEOPLE", js.Title)
	}
	if !slices.Equal(js.Required, []string{"ID"}) {
		t.Errorf("Required = %v, want [ID]", js.Required)
	}
	if js.Properties.Len() != 5 {
		t.Fatalf("Properties.Len() = %d, want 5", js.Properties.Len())
	}
	tests := []struct {
		name   string
		typ    string
		format string
	}{
		{"ID", "integer", ""},
		{"BORN", "string", "date"},
		{"NAME", "string", ""},
		{"SCORE", "number", ""},
		{"ACTIVE", "boolean", ""},
	}
	for _, tt := range tests {
		prop, ok := js.Properties.Get(tt.name)
		if !ok {
			t.Errorf("property %s missing", tt.name)
			continue
		}
		if prop.Type != tt.typ || prop.Format != tt.format {
			t.Errorf("property %s = %s/%s, want %s/%s", tt.name, prop.Type, prop.Format, tt.typ, tt.format)
		}
	}
	if prop, _ := js.Properties.Get("ID"); prop.Description != "Unique identifier" {
		t.Errorf("ID description = %q", prop.Description)
	}
}
