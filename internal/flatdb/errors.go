package flatdb

import (
	"fmt"
	"maps"
)

// ErrorCode classifies errors returned by the store.
type ErrorCode string

const (
	// CodeConfig is returned when the store is misconfigured, e.g. no data directory.
	CodeConfig ErrorCode = "CONFIG"
	// CodeNotFound is returned when the target table does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeAlreadyExists is returned when creating a table that exists.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// CodeSchema is returned for malformed or insufficient schemas and for
	// values that do not fit their column.
	CodeSchema ErrorCode = "SCHEMA"
	// CodeUniqueness is returned when an insert would duplicate an identity tuple.
	CodeUniqueness ErrorCode = "UNIQUENESS_VIOLATION"
	// CodeIO is returned when reading, writing or locking a table file fails,
	// or when its content is corrupt.
	CodeIO ErrorCode = "IO"
	// CodeLockTimeout is returned when the table lock could not be acquired in time.
	CodeLockTimeout ErrorCode = "LOCK_TIMEOUT"
)

// Sentinels for use with errors.Is. They match any *Error with the same code.
var (
	ErrConfig        = &Error{code: CodeConfig}
	ErrNotFound      = &Error{code: CodeNotFound}
	ErrAlreadyExists = &Error{code: CodeAlreadyExists}
	ErrSchema        = &Error{code: CodeSchema}
	ErrUniqueness    = &Error{code: CodeUniqueness}
	ErrIO            = &Error{code: CodeIO}
	ErrLockTimeout   = &Error{code: CodeLockTimeout}
)

// Error is the concrete error type returned by the store.
type Error struct {
	code       ErrorCode
	table      string
	message    string
	details    map[string]any
	wrappedErr error
}

func newError(code ErrorCode, table, format string, args ...any) *Error {
	return &Error{code: code, table: table, message: fmt.Sprintf(format, args...)}
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.message
	if msg == "" {
		msg = string(e.code)
	}
	if e.table != "" {
		msg = fmt.Sprintf("table %s: %s", e.table, msg)
	}
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", msg, e.wrappedErr)
	}
	return msg
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Table returns the name of the table involved, if any.
func (e *Error) Table() string {
	return e.table
}

// Details returns a copy of the additional error details.
func (e *Error) Details() map[string]any {
	return maps.Clone(e.details)
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

func schemaErrorf(table, format string, args ...any) *Error {
	return newError(CodeSchema, table, format, args...)
}

func ioError(table, what string, err error) *Error {
	return newError(CodeIO, table, "%s", what).Wrap(err)
}
