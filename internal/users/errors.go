package users

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned when a lookup finds no matching account.
var ErrNotFound = errors.New("user not found")

// ErrDelivery wraps failures to send the verification email.
var ErrDelivery = errors.New("verification email delivery failed")

// NonFieldErrors is the key for errors that are not tied to one field.
const NonFieldErrors = "non_field_errors"

// Field error codes.
const (
	CodeRequired         = "required"
	CodeMinLength        = "min_length"
	CodeMaxLength        = "max_length"
	CodeInvalid          = "invalid"
	CodeUnique           = "unique"
	CodeInvalidImage     = "invalid_image"
	CodeImageTooLarge    = "image_too_large"
	CodePasswordMismatch = "password_mismatch"
)

// FieldError is one validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldErrors is the result of one validation pass.
type FieldErrors []FieldError

// Fields groups messages by field name.
func (fe FieldErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(fe))
	for _, e := range fe {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// Has reports whether any error is attached to field.
func (fe FieldErrors) Has(field string) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}

// onlyCode reports whether every error carries code.
func (fe FieldErrors) onlyCode(code string) bool {
	for _, e := range fe {
		if e.Code != code {
			return false
		}
	}
	return len(fe) > 0
}

// ValidationError carries every field and cross-field failure found in
// one validation pass.
type ValidationError struct {
	Errors FieldErrors
}

func (e *ValidationError) Error() string {
	fields := e.Errors.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(fields[name], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports a username or email that is already registered.
type ConflictError struct {
	Fields []string
}

func (e *ConflictError) Error() string {
	return "already registered: " + strings.Join(e.Fields, ", ")
}

// StorageError is an unexpected persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }
