package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maruel/flatdb/internal/flatdb"
	"github.com/maruel/flatdb/internal/models"
)

// typedSchemas lists the tables whose column types are known.
var typedSchemas = map[string]func() (*flatdb.Schema, error){
	(*models.Person)(nil).TableName(): flatdb.SchemaFor[models.Person],
}

// schemaOf returns the typed schema of table when known, else one inferred
// from its header.
func schemaOf(ctx context.Context, db *flatdb.DB, table string) (*flatdb.Schema, error) {
	if fn, ok := typedSchemas[table]; ok {
		return fn()
	}
	return db.AutoSchema(ctx, table)
}

func run(ctx context.Context, db *flatdb.DB, args []string, w io.Writer) error {
	cmd, args := args[0], args[1:]
	needTable := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("%s: expected one table name, got %d arguments", cmd, len(args))
		}
		return args[0], nil
	}
	switch cmd {
	case "tables":
		if len(args) != 0 {
			return fmt.Errorf("tables: unexpected arguments: %v", args)
		}
		return cmdTables(db, w)
	case "schema":
		table, err := needTable()
		if err != nil {
			return err
		}
		return cmdSchema(ctx, db, table, w)
	case "dump":
		table, err := needTable()
		if err != nil {
			return err
		}
		return cmdDump(ctx, db, table, w)
	case "verify":
		table, err := needTable()
		if err != nil {
			return err
		}
		return cmdVerify(ctx, db, table, w)
	case "watch":
		if len(args) != 0 {
			return fmt.Errorf("watch: unexpected arguments: %v", args)
		}
		return cmdWatch(ctx, db, w)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func cmdTables(db *flatdb.DB, w io.Writer) error {
	names, err := db.Tables()
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

func cmdSchema(ctx context.Context, db *flatdb.DB, table string, w io.Writer) error {
	if _, err := db.Header(ctx, table); err != nil {
		return err
	}
	s, err := schemaOf(ctx, db, table)
	if err != nil {
		return err
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(s.JSONSchema())
}

func cmdDump(ctx context.Context, db *flatdb.DB, table string, w io.Writer) error {
	s, err := schemaOf(ctx, db, table)
	if err != nil {
		return err
	}
	recs, err := db.Query(ctx, s, nil, nil)
	if err != nil {
		return err
	}
	e := json.NewEncoder(w)
	for _, r := range recs {
		if err := e.Encode(r); err != nil {
			return err
		}
	}
	slog.DebugContext(ctx, "Dumped table", "table", table, "rows", len(recs))
	return nil
}

func cmdVerify(ctx context.Context, db *flatdb.DB, table string, w io.Writer) error {
	if err := db.Verify(ctx, table); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s: ok\n", table)
	return err
}

func cmdWatch(ctx context.Context, db *flatdb.DB, w io.Writer) error {
	err := db.Watch(ctx, func(c flatdb.Change) {
		_, _ = fmt.Fprintf(w, "%s %s %s\n", time.Now().Format(time.TimeOnly), c.Table, c.Op)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Watching tables", "dir", db.Dir())
	<-ctx.Done()
	return ctx.Err()
}
