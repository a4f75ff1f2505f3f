// Converts records to and from delimited text lines.

package flatdb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultDelimiter separates fields when Options.Delimiter is empty.
	DefaultDelimiter = ";"

	// Reserved tokens substituted inside text values. Values containing the
	// tokens themselves do not round-trip.
	escapeDelim = "{{DELIM}}"
	escapeLF    = "{{LF}}"
	escapeCR    = "{{CR}}"

	quote = `"`

	dateTimeLayout = "20060102150405"
	dateLayout     = "20060102"
)

// Record is one row, keyed by column name. The column order is the table's
// header order. Values are int64, float64, bool, time.Time, string or nil
// when read back; any Go value of a compatible kind is accepted on write.
type Record map[string]any

// Predicate selects records. A nil Predicate selects every record.
type Predicate func(Record) bool

// Ordering compares two records like cmp.Compare. A nil Ordering keeps file
// order.
type Ordering func(a, b Record) int

// Codec converts records to and from delimited lines.
type Codec struct {
	delim     string
	loc       *time.Location
	escaper   *strings.Replacer
	unescaper *strings.Replacer
}

// NewCodec returns a codec for the given single-character delimiter. Times
// are rendered and parsed in loc; nil means UTC.
func NewCodec(delim string, loc *time.Location) (*Codec, error) {
	if delim == "" {
		delim = DefaultDelimiter
	}
	if utf8.RuneCountInString(delim) != 1 {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", delim)
	}
	if delim == quote || delim == "\n" || delim == "\r" {
		return nil, fmt.Errorf("delimiter %q is reserved", delim)
	}
	for _, tok := range []string{escapeDelim, escapeLF, escapeCR} {
		if strings.Contains(tok, delim) {
			return nil, fmt.Errorf("delimiter %q collides with escape token %s", delim, tok)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Codec{
		delim:     delim,
		loc:       loc,
		escaper:   strings.NewReplacer(delim, escapeDelim, "\n", escapeLF, "\r", escapeCR),
		unescaper: strings.NewReplacer(escapeDelim, delim, escapeLF, "\n", escapeCR, "\r"),
	}, nil
}

// Delimiter returns the field delimiter.
func (c *Codec) Delimiter() string {
	return c.delim
}

// EncodeHeader joins column names into a header line.
func (c *Codec) EncodeHeader(names []string) string {
	return strings.Join(names, c.delim)
}

// DecodeHeader splits a header line into column names.
func (c *Codec) DecodeHeader(line string) []string {
	return strings.Split(line, c.delim)
}

// Encode renders rec as one line, fields in cols order.
func (c *Codec) Encode(rec Record, cols []Column) (string, error) {
	for name := range rec {
		if !slices.ContainsFunc(cols, func(col Column) bool { return col.Name == name }) {
			return "", fmt.Errorf("unknown column %q", name)
		}
	}
	var b strings.Builder
	for i, col := range cols {
		if i > 0 {
			b.WriteString(c.delim)
		}
		s, err := c.EncodeValue(col.Type, rec[col.Name])
		if err != nil {
			return "", fmt.Errorf("column %s: %w", col.Name, err)
		}
		b.WriteString(s)
	}
	if b.Len() == 0 {
		return "", errEmptyLine
	}
	return b.String(), nil
}

var errEmptyLine = errors.New("record encodes to an empty line")

// EncodeValue renders a single value for a column of type t. nil renders as
// an empty field.
func (c *Codec) EncodeValue(t ColumnType, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if tm, ok := v.(time.Time); ok {
		if t != TypeDate && t != TypeDateTime && t != TypeAuto {
			return "", fmt.Errorf("cannot store time.Time in a %s column", t)
		}
		// The layouts hold exactly four year digits.
		tm = tm.In(c.loc)
		if y := tm.Year(); y < 0 || y > 9999 {
			return "", fmt.Errorf("year %d out of range [0, 9999]", y)
		}
		if t == TypeDate {
			return tm.Format(dateLayout), nil
		}
		return tm.Format(dateTimeLayout), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive // Everything else is rejected below.
	case reflect.Pointer:
		if rv.IsNil() {
			return "", nil
		}
		return c.EncodeValue(t, rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch t { //nolint:exhaustive
		case TypeInteger, TypeAuto:
			return strconv.FormatInt(rv.Int(), 10), nil
		case TypeFloat:
			return strconv.FormatFloat(float64(rv.Int()), 'f', -1, 64), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > 1<<63-1 {
			return "", fmt.Errorf("value %d overflows int64", rv.Uint())
		}
		switch t { //nolint:exhaustive
		case TypeInteger, TypeAuto:
			return strconv.FormatUint(rv.Uint(), 10), nil
		case TypeFloat:
			return strconv.FormatFloat(float64(rv.Uint()), 'f', -1, 64), nil
		}
	case reflect.Float32, reflect.Float64:
		if t == TypeFloat || t == TypeAuto {
			f := rv.Float()
			if f == 0 {
				// -0 and 0 share one encoding.
				f = 0
			}
			return strconv.FormatFloat(f, 'f', -1, rv.Type().Bits()), nil
		}
	case reflect.Bool:
		if t == TypeBool || t == TypeAuto {
			return strconv.FormatBool(rv.Bool()), nil
		}
	case reflect.String:
		if t == TypeText || t == TypeAuto {
			return quote + c.escaper.Replace(rv.String()) + quote, nil
		}
	}
	return "", fmt.Errorf("cannot store %T in a %s column", v, t)
}

// Decode parses a data line into a record holding every column in cols.
// Missing trailing fields decode as nil.
func (c *Codec) Decode(line string, cols []Column) (Record, error) {
	cells := strings.Split(line, c.delim)
	if len(cells) > len(cols) {
		return nil, fmt.Errorf("line has %d fields, header has %d", len(cells), len(cols))
	}
	rec := make(Record, len(cols))
	for i, col := range cols {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		v, err := c.DecodeValue(col.Type, cell)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		rec[col.Name] = v
	}
	return rec, nil
}

// DecodeValue parses a cell according to the declared column type. An empty
// cell is nil. TypeAuto falls back to InferValue.
func (c *Codec) DecodeValue(t ColumnType, cell string) (any, error) {
	if cell == "" {
		return nil, nil
	}
	switch t {
	case TypeAuto:
		return c.InferValue(cell), nil
	case TypeInteger:
		return strconv.ParseInt(cell, 10, 64)
	case TypeFloat:
		return strconv.ParseFloat(cell, 64)
	case TypeBool:
		return strconv.ParseBool(cell)
	case TypeDateTime:
		return time.ParseInLocation(dateTimeLayout, cell, c.loc)
	case TypeDate:
		return time.ParseInLocation(dateLayout, cell, c.loc)
	case TypeText:
		return c.unescaper.Replace(unquote(cell)), nil
	}
	return nil, fmt.Errorf("unknown column type %q", t)
}

// InferValue guesses a cell's type from its shape. The first match wins:
// timestamp, date, integer, float, bare true/false, then text. Quotes are
// removed before matching, so text that looks like a number or a date comes
// back as that type.
func (c *Codec) InferValue(cell string) any {
	if cell == "" {
		return nil
	}
	s := unquote(cell)
	if tm, err := time.ParseInLocation(dateTimeLayout, s, c.loc); err == nil {
		return tm
	}
	if tm, err := time.ParseInLocation(dateLayout, s, c.loc); err == nil {
		return tm
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch cell {
	case "true":
		return true
	case "false":
		return false
	}
	return c.unescaper.Replace(s)
}

// identityKey returns the identity tuple of an encoded line as a comparable
// string. Encoded cells are canonical, so equal values give equal keys.
func (c *Codec) identityKey(line string, identity []int) string {
	cells := strings.Split(line, c.delim)
	parts := make([]string, len(identity))
	for i, idx := range identity {
		if idx < len(cells) {
			parts[i] = cells[idx]
		}
	}
	return strings.Join(parts, "\x00")
}

// unquote strips one layer of wrapping quotes.
func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) {
		return s[1 : len(s)-1]
	}
	return s
}
