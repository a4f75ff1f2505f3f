package flatdb

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestError(t *testing.T) {
	t.Run("message", func(t *testing.T) {
		tests := []struct {
			name string
			err  *Error
			want string
		}{
			{"code only", &Error{code: CodeIO}, "IO"},
			{"message", newError(CodeNotFound, "", "gone"), "gone"},
			{"table", newError(CodeNotFound, "people", "gone"), "table people: gone"},
			{"wrapped", ioError("people", "open", fs.ErrPermission), "table people: open: permission denied"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.Error(); got != tt.want {
					t.Errorf("Error() = %q, want %q", got, tt.want)
				}
			})
		}
	})

	t.Run("matching", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", ioError("people", "open", fs.ErrPermission))
		if !errors.Is(err, ErrIO) {
			t.Error("errors.Is(err, ErrIO) = false")
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("errors.Is(err, ErrNotFound) = true")
		}
		if !errors.Is(err, fs.ErrPermission) {
			t.Error("wrapped cause not reachable")
		}
		var e *Error
		if !errors.As(err, &e) || e.Code() != CodeIO || e.Table() != "people" {
			t.Errorf("errors.As = %#v", e)
		}
	})

	t.Run("details are copied", func(t *testing.T) {
		e := newError(CodeUniqueness, "t", "dup").WithDetail("id", 1)
		e.Details()["id"] = 2
		if e.Details()["id"] != 1 {
			t.Error("Details() exposed internal state")
		}
	})
}
