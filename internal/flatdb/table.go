// Binds Go struct types to tables.

package flatdb

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"
)

// Table is a typed view of the table backing struct type T. T must satisfy
// SchemaFor.
type Table[T any] struct {
	db     *DB
	schema *Schema
}

// NewTable returns the typed view of T's table in db. The table file is not
// touched.
func NewTable[T any](db *DB) (*Table[T], error) {
	s, err := SchemaFor[T]()
	if err != nil {
		return nil, err
	}
	return &Table[T]{db: db, schema: s}, nil
}

// Schema returns the schema derived from T.
func (t *Table[T]) Schema() *Schema {
	return t.schema
}

// Create creates the table file.
func (t *Table[T]) Create(ctx context.Context) error {
	return t.db.Create(ctx, t.schema)
}

// Exists reports whether the table file exists.
func (t *Table[T]) Exists() (bool, error) {
	return t.db.Exists(t.schema.Table())
}

// Query returns the rows for which where returns true, sorted with cmp. Both
// may be nil.
func (t *Table[T]) Query(ctx context.Context, where func(*T) bool, cmp func(a, b *T) int) ([]*T, error) {
	recs, err := t.db.Query(ctx, t.schema, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(recs))
	for i, r := range recs {
		row, err := t.fromRecord(r)
		if err != nil {
			return nil, newError(CodeIO, t.schema.Table(), "record %d", i+1).Wrap(err)
		}
		if where == nil || where(row) {
			out = append(out, row)
		}
	}
	if cmp != nil {
		slices.SortStableFunc(out, cmp)
	}
	return out, nil
}

// All returns every row in file order.
func (t *Table[T]) All(ctx context.Context) ([]*T, error) {
	return t.Query(ctx, nil, nil)
}

// Insert appends rows, enforcing identity uniqueness.
func (t *Table[T]) Insert(ctx context.Context, rows ...*T) error {
	recs, err := t.toRecords(rows)
	if err != nil {
		return err
	}
	return t.db.Insert(ctx, t.schema, recs...)
}

// Delete removes the rows for which where returns true. A nil where removes
// every row.
func (t *Table[T]) Delete(ctx context.Context, where func(*T) bool) (int, error) {
	return t.db.Delete(ctx, t.schema, t.predicate(where))
}

// Update replaces the rows sharing an identity with rows, inserting the ones
// that have none.
func (t *Table[T]) Update(ctx context.Context, rows ...*T) error {
	recs, err := t.toRecords(rows)
	if err != nil {
		return err
	}
	return t.db.Update(ctx, t.schema, recs...)
}

// UpdateWhere removes the rows for which where returns true and inserts rows.
func (t *Table[T]) UpdateWhere(ctx context.Context, where func(*T) bool, rows ...*T) (int, error) {
	recs, err := t.toRecords(rows)
	if err != nil {
		return 0, err
	}
	return t.db.UpdateWhere(ctx, t.schema, t.predicate(where), recs...)
}

// predicate adapts a typed filter. A record that fails to convert is not
// matched.
func (t *Table[T]) predicate(where func(*T) bool) Predicate {
	if where == nil {
		return nil
	}
	return func(r Record) bool {
		row, err := t.fromRecord(r)
		return err == nil && where(row)
	}
}

func (t *Table[T]) toRecords(rows []*T) ([]Record, error) {
	recs := make([]Record, len(rows))
	for i, row := range rows {
		if row == nil {
			return nil, schemaErrorf(t.schema.Table(), "row %d is nil", i)
		}
		recs[i] = t.toRecord(row)
	}
	return recs, nil
}

func (t *Table[T]) toRecord(row *T) Record {
	v := reflect.ValueOf(row).Elem()
	r := make(Record, len(t.schema.columns))
	for i, c := range t.schema.columns {
		f, err := v.FieldByIndexErr(t.schema.fields[i])
		if err != nil {
			// Nil embedded pointer: the column is empty.
			r[c.Name] = nil
			continue
		}
		if f.Kind() == reflect.Pointer && f.IsNil() {
			r[c.Name] = nil
			continue
		}
		r[c.Name] = f.Interface()
	}
	return r
}

func (t *Table[T]) fromRecord(r Record) (*T, error) {
	row := new(T)
	v := reflect.ValueOf(row).Elem()
	for i, c := range t.schema.columns {
		val := r[c.Name]
		if val == nil {
			continue
		}
		f := fieldByIndexAlloc(v, t.schema.fields[i])
		if err := setField(f, val); err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
	}
	return row, nil
}

// fieldByIndexAlloc is reflect.Value.FieldByIndex allocating nil embedded
// pointers along the way.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// setField stores a decoded value into a struct field, allocating pointers.
func setField(f reflect.Value, val any) error {
	if f.Kind() == reflect.Pointer {
		p := reflect.New(f.Type().Elem())
		if err := setField(p.Elem(), val); err != nil {
			return err
		}
		f.Set(p)
		return nil
	}
	switch x := val.(type) {
	case time.Time:
		if f.Type() != timeType {
			break
		}
		f.Set(reflect.ValueOf(x))
		return nil
	case int64:
		switch f.Kind() { //nolint:exhaustive
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if f.OverflowInt(x) {
				return fmt.Errorf("value %d overflows %s", x, f.Type())
			}
			f.SetInt(x)
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if x < 0 || f.OverflowUint(uint64(x)) {
				return fmt.Errorf("value %d overflows %s", x, f.Type())
			}
			f.SetUint(uint64(x))
			return nil
		case reflect.Float32, reflect.Float64:
			f.SetFloat(float64(x))
			return nil
		}
	case float64:
		if f.Kind() == reflect.Float32 || f.Kind() == reflect.Float64 {
			if f.OverflowFloat(x) {
				return fmt.Errorf("value %g overflows %s", x, f.Type())
			}
			f.SetFloat(x)
			return nil
		}
	case bool:
		if f.Kind() == reflect.Bool {
			f.SetBool(x)
			return nil
		}
	case string:
		if f.Kind() == reflect.String {
			f.SetString(x)
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", val, f.Type())
}
