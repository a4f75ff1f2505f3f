// Reports table files modified by any process.

package flatdb

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Change is a modification of a table file.
type Change struct {
	Table string
	Op    fsnotify.Op
}

// Watch calls fn for every change to a table file in the data directory until
// ctx is done. Changes made by this process are reported too. fn is called
// from a single goroutine. A rewrite shows up as a Create (the rename) for the
// table.
func (d *DB) Watch(ctx context.Context, fn func(Change)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ioError("", "watch", err)
	}
	if err := w.Add(d.dir); err != nil {
		_ = w.Close()
		return ioError("", "watch", err)
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				table, ok := tableOf(event.Name)
				if !ok {
					continue
				}
				fn(Change{Table: table, Op: event.Op})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.log.WarnContext(ctx, "Error watching tables", "dir", d.dir, "err", err)
			}
		}
	}()
	return nil
}
