package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maruel/flatdb/internal/flatdb"
	"github.com/maruel/flatdb/internal/models"
	"github.com/maruel/flatdb/internal/storage"
)

func newTestDB(t *testing.T) *flatdb.DB {
	t.Helper()
	db, err := flatdb.New(t.TempDir(), &flatdb.Options{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatal(err)
	}
	service, err := storage.NewPersonService(t.Context(), db)
	if err != nil {
		t.Fatal(err)
	}
	if err := service.CreatePerson(t.Context(),
		&models.Person{ID: 1, Name: "Ann", Active: true},
		&models.Person{ID: 2, Name: "Bo"},
	); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(db.Dir(), "notes.csv"), []byte("k;v\n\"a\";1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRun(t *testing.T) {
	db := newTestDB(t)

	t.Run("tables", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(t.Context(), db, []string{"tables"}, &out); err != nil {
			t.Fatalf("run error: %v", err)
		}
		if got := out.String(); got != "TEST\nnotes\n" {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("schema typed", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(t.Context(), db, []string{"schema", "TEST"}, &out); err != nil {
			t.Fatalf("run error: %v", err)
		}
		var js struct {
			Title      string                       `json:"title"`
			Required   []string                     `json:"required"`
			Properties map[string]map[string]string `json:"properties"`
		}
		if err := json.Unmarshal(out.Bytes(), &js); err != nil {
			t.Fatalf("invalid JSON %q: %v", out.String(), err)
		}
		if js.Title != "TEST" || len(js.Required) != 1 || js.Required[0] != "ID" {
			t.Errorf("schema = %+v", js)
		}
		if js.Properties["NAISSANCE"]["format"] != "date-time" || js.Properties["ACTIVE"]["type"] != "boolean" {
			t.Errorf("properties = %v", js.Properties)
		}
	})

	t.Run("schema untyped", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(t.Context(), db, []string{"schema", "notes"}, &out); err != nil {
			t.Fatalf("run error: %v", err)
		}
		if !strings.Contains(out.String(), `"k"`) {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("dump", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(t.Context(), db, []string{"dump", "notes"}, &out); err != nil {
			t.Fatalf("run error: %v", err)
		}
		if got := out.String(); got != "{\"k\":\"a\",\"v\":1}\n" {
			t.Errorf("output = %q", got)
		}
		out.Reset()
		if err := run(t.Context(), db, []string{"dump", "TEST"}, &out); err != nil {
			t.Fatalf("run error: %v", err)
		}
		if n := strings.Count(out.String(), "\n"); n != 2 {
			t.Errorf("dump TEST printed %d lines, want 2", n)
		}
	})

	t.Run("verify", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(t.Context(), db, []string{"verify", "TEST"}, &out); err != nil {
			t.Fatalf("run error: %v", err)
		}
		if got := out.String(); got != "TEST: ok\n" {
			t.Errorf("output = %q", got)
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
		}{
			{"unknown command", []string{"frobnicate"}},
			{"missing table", []string{"dump"}},
			{"extra arguments", []string{"tables", "x"}},
			{"unknown table", []string{"verify", "nope"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := run(t.Context(), db, tt.args, &bytes.Buffer{}); err == nil {
					t.Error("run expected error, got nil")
				}
			})
		}
		err := run(t.Context(), db, []string{"schema", "nope"}, &bytes.Buffer{})
		if !errors.Is(err, flatdb.ErrNotFound) {
			t.Errorf("schema nope error = %v, want ErrNotFound", err)
		}
	})
}

func TestDropEmpty(t *testing.T) {
	tests := []struct {
		attr slog.Attr
		drop bool
	}{
		{slog.String("k", ""), true},
		{slog.String("k", "v"), false},
		{slog.Bool("k", false), true},
		{slog.Int("k", 0), true},
		{slog.Int("k", 3), false},
		{slog.Any("k", nil), true},
	}
	for _, tt := range tests {
		got := dropEmpty(nil, tt.attr)
		if (got.Key == "") != tt.drop {
			t.Errorf("dropEmpty(%v) = %v, drop %v", tt.attr, got, tt.drop)
		}
	}
}
