package flatdb

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultLockTimeout bounds the wait for a table lock when Options.LockTimeout
// is zero.
const DefaultLockTimeout = 30 * time.Second

// Options configures a DB. The zero value is usable.
type Options struct {
	// Delimiter is the single-character field separator. Defaults to ";".
	Delimiter string
	// LockTimeout bounds the wait for a table lock. Zero means
	// DefaultLockTimeout, negative means wait until the context is done.
	LockTimeout time.Duration
	// Location is the time zone in which dates are written and read.
	// Defaults to UTC.
	Location *time.Location
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DB is a directory of tables. It is safe for concurrent use.
type DB struct {
	dir         string
	codec       *Codec
	lockTimeout time.Duration
	log         *slog.Logger
}

// New opens the store rooted at dir, creating the directory if needed.
func New(dir string, opts *Options) (*DB, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, newError(CodeConfig, "", "data directory is required")
	}
	if opts == nil {
		opts = &Options{}
	}
	codec, err := NewCodec(opts.Delimiter, opts.Location)
	if err != nil {
		return nil, newError(CodeConfig, "", "invalid codec settings").Wrap(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, newError(CodeConfig, "", "invalid data directory %q", dir).Wrap(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, newError(CodeConfig, "", "cannot create data directory %q", abs).Wrap(err)
	}
	d := &DB{
		dir:         abs,
		codec:       codec,
		lockTimeout: opts.LockTimeout,
		log:         opts.Logger,
	}
	if d.lockTimeout == 0 {
		d.lockTimeout = DefaultLockTimeout
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d, nil
}

// Dir returns the absolute data directory.
func (d *DB) Dir() string {
	return d.dir
}

// Codec returns the codec used for table files.
func (d *DB) Codec() *Codec {
	return d.codec
}

// Create creates the table file with a header line made of the schema's
// column names.
func (d *DB) Create(ctx context.Context, s *Schema) error {
	table := s.Table()
	path, err := d.path(table)
	if err != nil {
		return err
	}
	for _, name := range s.Names() {
		if strings.Contains(name, d.codec.Delimiter()) || strings.ContainsAny(name, quote+"\r\n") {
			return schemaErrorf(table, "column name %q contains a reserved character", name)
		}
	}
	release, err := d.acquire(ctx, table, path, true)
	if err != nil {
		return err
	}
	defer release()
	if err := d.createFile(table, path, d.codec.EncodeHeader(s.Names())); err != nil {
		return err
	}
	d.log.DebugContext(ctx, "Created table", "table", table, "columns", len(s.columns))
	return nil
}

// Header returns the column names stored in the table's header line.
func (d *DB) Header(ctx context.Context, table string) ([]string, error) {
	var header []string
	err := d.withTable(ctx, table, nil, false, func(_ *tableFile, snap *snapshot) error {
		header = snap.header
		return nil
	})
	return header, err
}

// AutoSchema returns a schema built from the table's header with every
// column of type TypeAuto, for tables whose record type is unknown.
func (d *DB) AutoSchema(ctx context.Context, table string) (*Schema, error) {
	header, err := d.Header(ctx, table)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: name, Type: TypeAuto}
	}
	return NewSchema(table, cols...)
}

// Verify checks that every data line has exactly as many fields as the
// header.
func (d *DB) Verify(ctx context.Context, table string) error {
	return d.withTable(ctx, table, nil, false, func(_ *tableFile, snap *snapshot) error {
		var bad []int
		for i, line := range snap.lines {
			if n := strings.Count(line, d.codec.Delimiter()) + 1; n != len(snap.header) {
				bad = append(bad, i+1)
			}
		}
		if len(bad) != 0 {
			return newError(CodeIO, table, "%d records do not match the header's %d fields", len(bad), len(snap.header)).
				WithDetail("records", bad)
		}
		return nil
	})
}

// Query returns the records matching where, sorted by order. A nil where
// matches everything; a nil order keeps file order. Sorting is stable.
func (d *DB) Query(ctx context.Context, s *Schema, where Predicate, order Ordering) ([]Record, error) {
	out := []Record{}
	err := d.withTable(ctx, s.Table(), s, false, func(_ *tableFile, snap *snapshot) error {
		recs, err := d.decodeAll(s, snap)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if where == nil || where(r) {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if order != nil {
		slices.SortStableFunc(out, order)
	}
	return out, nil
}

// Insert appends records to the table. When the schema has identity columns,
// the whole batch is rejected with ErrUniqueness if any identity tuple repeats
// within the batch or already exists in the table.
func (d *DB) Insert(ctx context.Context, s *Schema, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	return d.withTable(ctx, s.Table(), s, true, func(tf *tableFile, snap *snapshot) error {
		lines, err := d.encodeAll(s, recs)
		if err != nil {
			return err
		}
		if err := d.checkUnique(s, snap.lines, lines, recs); err != nil {
			return err
		}
		if err := tf.append(lines, snap.terminated); err != nil {
			return err
		}
		d.log.DebugContext(ctx, "Inserted records", "table", s.Table(), "rows", len(lines))
		return nil
	})
}

// Delete removes the records matching where and returns how many were
// removed. A nil where removes every record. The file is left untouched when
// nothing matches.
func (d *DB) Delete(ctx context.Context, s *Schema, where Predicate) (int, error) {
	return d.replace(ctx, s, matchPredicate(where), nil)
}

// Update replaces the records sharing an identity tuple with one of recs by
// recs. Records with no counterpart are inserted. The schema must declare
// identity columns.
func (d *DB) Update(ctx context.Context, s *Schema, recs ...Record) error {
	if !s.HasIdentity() {
		return schemaErrorf(s.Table(), "update requires identity columns")
	}
	if len(recs) == 0 {
		return nil
	}
	lines, err := d.encodeAll(s, recs)
	if err != nil {
		return err
	}
	keys := make(map[string]bool, len(lines))
	for _, l := range lines {
		keys[d.codec.identityKey(l, s.identity)] = true
	}
	_, err = d.replace(ctx, s, func(_ Record, line string) bool {
		return keys[d.codec.identityKey(line, s.identity)]
	}, recs)
	return err
}

// UpdateWhere removes the records matching where and inserts recs, whether or
// not anything matched. It returns how many records were removed. Identity
// uniqueness still holds for the resulting table.
func (d *DB) UpdateWhere(ctx context.Context, s *Schema, where Predicate, recs ...Record) (int, error) {
	return d.replace(ctx, s, matchPredicate(where), recs)
}

// matcher selects records by decoded value or raw line.
type matcher func(r Record, line string) bool

func matchPredicate(where Predicate) matcher {
	return func(r Record, _ string) bool {
		return where == nil || where(r)
	}
}

// replace removes matching records and appends recs, under one exclusive
// lock. Removal rewrites the file atomically.
func (d *DB) replace(ctx context.Context, s *Schema, match matcher, recs []Record) (int, error) {
	removed := 0
	err := d.withTable(ctx, s.Table(), s, true, func(tf *tableFile, snap *snapshot) error {
		lines, err := d.encodeAll(s, recs)
		if err != nil {
			return err
		}
		existing, err := d.decodeAll(s, snap)
		if err != nil {
			return err
		}
		keep := make([]string, 0, len(existing))
		for i, r := range existing {
			if !match(r, snap.lines[i]) {
				keep = append(keep, snap.lines[i])
			}
		}
		removed = len(existing) - len(keep)
		if err := d.checkUnique(s, keep, lines, recs); err != nil {
			return err
		}
		switch {
		case removed == 0 && len(lines) == 0:
			return nil
		case removed == 0:
			err = tf.append(lines, snap.terminated)
		default:
			err = tf.rewrite(d.codec.EncodeHeader(snap.header), append(keep, lines...))
		}
		if err != nil {
			return err
		}
		d.log.DebugContext(ctx, "Rewrote table", "table", s.Table(), "removed", removed, "rows", len(lines))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// withTable runs fn with the table lock held and the file open and locked.
// When s is not nil, the file header must match it.
func (d *DB) withTable(ctx context.Context, table string, s *Schema, exclusive bool, fn func(*tableFile, *snapshot) error) (err error) {
	path, err := d.path(table)
	if err != nil {
		return err
	}
	release, err := d.acquire(ctx, table, path, exclusive)
	if err != nil {
		return err
	}
	defer release()
	tf, err := openTable(table, path, exclusive)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := tf.Close(); err == nil {
			err = cerr
		}
	}()
	snap, err := tf.read(d.codec)
	if err != nil {
		return err
	}
	if s != nil && !slices.Equal(s.Names(), snap.header) {
		return schemaErrorf(table, "header does not match schema").
			WithDetail("header", snap.header).
			WithDetail("schema", s.Names())
	}
	return fn(tf, snap)
}

func (d *DB) decodeAll(s *Schema, snap *snapshot) ([]Record, error) {
	recs := make([]Record, len(snap.lines))
	for i, line := range snap.lines {
		r, err := d.codec.Decode(line, s.columns)
		if err != nil {
			return nil, newError(CodeIO, s.Table(), "corrupt record %d", i+1).Wrap(err)
		}
		recs[i] = r
	}
	return recs, nil
}

func (d *DB) encodeAll(s *Schema, recs []Record) ([]string, error) {
	lines := make([]string, len(recs))
	for i, r := range recs {
		line, err := d.codec.Encode(r, s.columns)
		if err != nil {
			return nil, schemaErrorf(s.Table(), "record %d", i).Wrap(err)
		}
		lines[i] = line
	}
	return lines, nil
}

// checkUnique fails if an identity tuple of the incoming lines repeats among
// them or matches one of the existing lines. recs are the records the
// incoming lines were encoded from.
func (d *DB) checkUnique(s *Schema, existing, incoming []string, recs []Record) error {
	if !s.HasIdentity() || len(incoming) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(existing))
	for _, l := range existing {
		seen[d.codec.identityKey(l, s.identity)] = true
	}
	batch := make(map[string]int, len(incoming))
	for i, l := range incoming {
		k := d.codec.identityKey(l, s.identity)
		if j, ok := batch[k]; ok {
			return newError(CodeUniqueness, s.Table(), "records %d and %d share an identity", j, i).
				WithDetail("identity", s.identityOf(recs[i]))
		}
		batch[k] = i
		if seen[k] {
			return newError(CodeUniqueness, s.Table(), "record %d duplicates an existing identity", i).
				WithDetail("identity", s.identityOf(recs[i]))
		}
	}
	return nil
}

// identityOf extracts the identity columns of r.
func (s *Schema) identityOf(r Record) map[string]any {
	m := make(map[string]any, len(s.identity))
	for _, idx := range s.identity {
		name := s.columns[idx].Name
		m[name] = r[name]
	}
	return m
}
