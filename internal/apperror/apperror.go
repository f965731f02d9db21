// Package apperror defines the domain error taxonomy shared by the catalog
// client, the directory entities, and the HTTP handlers.
//
// Every error kind is a sentinel that can be tested with errors.Is, wrapped
// in an AppError carrying the human-readable message and, where relevant,
// the offending field or name. Intermediate layers never swallow these;
// they propagate to the handlers, which translate them into HTTP responses.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrTransport    = errors.New("catalog transport error")
	ErrForbidden    = errors.New("forbidden")
	ErrURLConflict  = errors.New("url conflict")
	ErrNameExists   = errors.New("name already exists")
	ErrInconsistent = errors.New("catalog inconsistency")
	ErrUserCreate   = errors.New("user creation rejected")
)

// ErrUserNotFound is a subtype of ErrNotFound: errors.Is matches both.
var ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

// AppError is the concrete error value carried up the stack.
type AppError struct {
	Err     error  // sentinel identifying the kind
	Message string // human-readable description
	Field   string // optional: field that caused a validation failure
	Name    string // optional: identifier involved in a conflict
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that the requested entity does not exist in the catalog.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// UserNotFound reports a missing user. Matches both ErrUserNotFound and
// ErrNotFound under errors.Is.
func UserNotFound(id string) *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: fmt.Sprintf("user not found: %s", id),
	}
}

// ValidationFailed reports that the catalog rejected a field value.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Transport reports a failed or malformed catalog call.
func Transport(action string, err error) *AppError {
	return &AppError{
		Err:     ErrTransport,
		Message: fmt.Sprintf("catalog action %s: %v", action, err),
	}
}

// Forbidden reports an unmet precondition, such as missing organization
// membership.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// URLConflict reports that the collision retries were exhausted while
// trying to create a record under the given name.
func URLConflict(name string) *AppError {
	return &AppError{
		Err:     ErrURLConflict,
		Message: fmt.Sprintf("could not find a free url for %q", name),
		Name:    name,
	}
}

// NameExists reports an organization name collision on creation.
func NameExists(name string) *AppError {
	return &AppError{
		Err:     ErrNameExists,
		Message: fmt.Sprintf("organization name already taken: %s", name),
		Name:    name,
	}
}

// Inconsistent reports a detected multi-record integrity violation, for
// example two portfolios claiming the same author. It is surfaced, never
// auto-healed.
func Inconsistent(message string) *AppError {
	return &AppError{
		Err:     ErrInconsistent,
		Message: message,
	}
}

// UserCreate reports that the catalog rejected user creation, typically a
// duplicate login.
func UserCreate(message string) *AppError {
	return &AppError{
		Err:     ErrUserCreate,
		Message: message,
	}
}
