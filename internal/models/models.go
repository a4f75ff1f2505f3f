// Package models defines the records persisted by the application.
package models

import (
	"fmt"
	"regexp"
	"time"
)

// ErrorCode identifies why a record failed validation.
type ErrorCode string

const (
	// ErrorCodeMissingField is returned when a required field is empty.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when a field has an invalid format.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
)

// ValidationError reports a single invalid field.
type ValidationError struct {
	Code  ErrorCode
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	if e.Code == ErrorCodeMissingField {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s: invalid format %q", e.Field, e.Value)
}

// Empty values are accepted by both patterns.
var (
	mailRE  = regexp.MustCompile(`^$|^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,6}$`)
	phoneRE = regexp.MustCompile(`^$|^\+?[0-9. ()-]{7,25}$`)
)

// Person is a contact stored in the TEST table.
type Person struct {
	ID     int       `db:"ID,id" json:"id" jsonschema:"description=Unique identifier"`
	Born   time.Time `db:"NAISSANCE" json:"born" jsonschema:"description=Date and time of birth"`
	Name   string    `db:"NOM" json:"name" jsonschema:"description=Display name"`
	Email  string    `db:"EMAIL" json:"email,omitempty" jsonschema:"description=Mail address"`
	Phone  string    `db:"PHONE" json:"phone,omitempty" jsonschema:"description=Phone number"`
	Active bool      `db:"ACTIVE" json:"active" jsonschema:"description=Whether the contact is active"`
}

// TableName implements flatdb.TableNamer.
func (*Person) TableName() string {
	return "TEST"
}

// Validate checks the mail and phone formats.
func (p *Person) Validate() error {
	if p.Name == "" {
		return &ValidationError{Code: ErrorCodeMissingField, Field: "name"}
	}
	if !mailRE.MatchString(p.Email) {
		return &ValidationError{Code: ErrorCodeInvalidFormat, Field: "email", Value: p.Email}
	}
	if !phoneRE.MatchString(p.Phone) {
		return &ValidationError{Code: ErrorCodeInvalidFormat, Field: "phone", Value: p.Phone}
	}
	return nil
}
