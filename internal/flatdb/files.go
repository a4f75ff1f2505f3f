// Maps table names to files and performs the raw file operations.

package flatdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

const tableExt = ".csv"

// path resolves a table name to its file.
func (d *DB) path(table string) (string, error) {
	name := strings.TrimSpace(table)
	if name == "" || strings.ContainsAny(name, `/\`+"\x00") || strings.HasPrefix(name, ".") {
		return "", schemaErrorf(table, "invalid table name")
	}
	return filepath.Join(d.dir, name+tableExt), nil
}

// tableOf maps a file path back to its table name.
func tableOf(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, tableExt) {
		return "", false
	}
	return strings.TrimSuffix(base, tableExt), true
}

// Exists reports whether the table's file exists.
func (d *DB) Exists(table string) (bool, error) {
	path, err := d.path(table)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, ioError(table, "stat", err)
	}
	return true, nil
}

// Tables returns the names of all tables in the data directory, sorted.
func (d *DB) Tables() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, ioError("", "list tables", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := tableOf(e.Name()); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// createFile writes the header to a temporary file and links it into place,
// so the table appears with its header or not at all.
func (d *DB) createFile(table, path, header string) error {
	tmp, err := os.CreateTemp(d.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return ioError(table, "create", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	_, err = tmp.WriteString(header + "\n")
	err = errors.Join(err, tmp.Chmod(0o644), tmp.Sync(), tmp.Close())
	if err != nil {
		return ioError(table, "write header", err)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return newError(CodeAlreadyExists, table, "table already exists")
		}
		return ioError(table, "create", err)
	}
	if err := syncDir(d.dir); err != nil {
		return ioError(table, "create", err)
	}
	return nil
}

// tableFile is an open table file holding an advisory lock.
type tableFile struct {
	table string
	path  string
	f     *os.File
}

// openTable opens and locks the table file. Exclusive opens are writable and
// append-only.
func openTable(table, path string, exclusive bool) (*tableFile, error) {
	flag := os.O_RDONLY
	if exclusive {
		flag = os.O_RDWR | os.O_APPEND
	}
	for {
		f, err := os.OpenFile(path, flag, 0)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, newError(CodeNotFound, table, "table does not exist")
			}
			return nil, ioError(table, "open", err)
		}
		if err := lockFile(f, exclusive); err != nil {
			_ = f.Close()
			return nil, ioError(table, "lock", err)
		}
		// Another process may have renamed a rewritten table over the path
		// while this one waited for the lock; the lock is then on a stale file.
		same, err := sameFile(f, path)
		if err != nil {
			return nil, ioError(table, "stat", errors.Join(err, unlockFile(f), f.Close()))
		}
		if same {
			return &tableFile{table: table, path: path, f: f}, nil
		}
		if err := errors.Join(unlockFile(f), f.Close()); err != nil {
			return nil, ioError(table, "reopen", err)
		}
	}
}

func sameFile(f *os.File, path string) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	pi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(fi, pi), nil
}

// Close releases the advisory lock and closes the file. It is idempotent.
func (tf *tableFile) Close() error {
	if tf.f == nil {
		return nil
	}
	err := errors.Join(unlockFile(tf.f), tf.f.Close())
	tf.f = nil
	if err != nil {
		return ioError(tf.table, "close", err)
	}
	return nil
}

// snapshot is the content of a table file at one point in time.
type snapshot struct {
	header []string
	// Non-blank data lines in file order.
	lines []string
	// Whether the content ends with a line terminator.
	terminated bool
}

func (tf *tableFile) read(c *Codec) (*snapshot, error) {
	data, err := io.ReadAll(io.NewSectionReader(tf.f, 0, 1<<62))
	if err != nil {
		return nil, ioError(tf.table, "read", err)
	}
	content := string(data)
	if content == "" {
		return nil, newError(CodeIO, tf.table, "table file has no header")
	}
	lines := strings.Split(content, "\n")
	s := &snapshot{
		header:     c.DecodeHeader(strings.TrimSuffix(lines[0], "\r")),
		terminated: strings.HasSuffix(content, "\n"),
	}
	for _, l := range lines[1:] {
		if l = strings.TrimSuffix(l, "\r"); l != "" {
			s.lines = append(s.lines, l)
		}
	}
	return s, nil
}

// append writes lines at the end of the file in a single write.
func (tf *tableFile) append(lines []string, terminated bool) error {
	var b strings.Builder
	if !terminated {
		b.WriteByte('\n')
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := tf.f.WriteString(b.String()); err != nil {
		return ioError(tf.table, "append", err)
	}
	return nil
}

// rewrite replaces the file content with header and lines. The new content is
// written to a temporary file in the same directory and renamed over the
// table, so readers see either the old or the new table.
func (tf *tableFile) rewrite(header string, lines []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(tf.path), "."+filepath.Base(tf.path)+".*.tmp")
	if err != nil {
		return ioError(tf.table, "rewrite", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if fi, err := tf.f.Stat(); err == nil {
		_ = tmp.Chmod(fi.Mode().Perm())
	}
	w := bufio.NewWriter(tmp)
	_, _ = w.WriteString(header)
	_ = w.WriteByte('\n')
	for _, l := range lines {
		_, _ = w.WriteString(l)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return ioError(tf.table, "rewrite", err)
	}
	if err := tmp.Sync(); err != nil {
		return ioError(tf.table, "rewrite", err)
	}
	if err := tmp.Close(); err != nil {
		return ioError(tf.table, "rewrite", err)
	}
	if !renameWhileLocked {
		if err := tf.Close(); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp.Name(), tf.path); err != nil {
		return ioError(tf.table, "rewrite", fmt.Errorf("rename: %w", err))
	}
	if err := syncDir(filepath.Dir(tf.path)); err != nil {
		return ioError(tf.table, "rewrite", err)
	}
	return nil
}

// syncDir flushes the directory entries of dir, making a completed rename or
// link durable.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		// Directory handles cannot be flushed; NTFS journals the rename.
		return nil
	}
	d, err := os.Open(dir) //nolint:gosec // dir is the store's data directory
	if err != nil {
		return err
	}
	return errors.Join(d.Sync(), d.Close())
}
