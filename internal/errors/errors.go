// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEntryNotFound is returned when a queue entry id is unknown.
type ErrEntryNotFound struct {
	ID string
}

func (e *ErrEntryNotFound) Error() string {
	return fmt.Sprintf("queue entry %s not found", e.ID)
}

func NewEntryNotFound(id string) error {
	return &ErrEntryNotFound{ID: id}
}

// IsNotFound reports whether err is an unknown-entry error.
func IsNotFound(err error) bool {
	var nf *ErrEntryNotFound
	return errors.As(err, &nf)
}

var (
	ErrNotCancellable  = errors.New("only scheduled entries can be cancelled")
	ErrContactNotFound = errors.New("contact not found")
)

// FieldError is one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

// Add appends a field error and returns the receiver for chaining.
func (e *ValidationError) Add(field, reason string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
	return e
}

// OrNil returns nil when no field was rejected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigError means a required setting is missing; the worker refuses to start.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

func NewConfigError(setting, reason string) error {
	return &ConfigError{Setting: setting, Reason: reason}
}
