package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation error")
)

// Error is the failure value every engine operation returns. Kind is one of
// the sentinels above so callers can match with errors.Is.
type Error struct {
	Kind   error
	Op     string
	Detail string
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Kind != nil {
		parts = append(parts, e.Kind.Error())
	}
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		parts = append(parts, detail)
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// ErrorKind classifies the error for transport status mapping.
func (e *Error) ErrorKind() string {
	switch e.Kind {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrValidation:
		return "validation"
	default:
		return "internal"
	}
}

func newError(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

func notFound(op, format string, args ...any) error {
	return newError(ErrNotFound, op, format, args...)
}

func invalidTransition(op, format string, args ...any) error {
	return newError(ErrInvalidTransition, op, format, args...)
}

func unauthorized(op, format string, args ...any) error {
	return newError(ErrUnauthorized, op, format, args...)
}

func validation(op, format string, args ...any) error {
	return newError(ErrValidation, op, format, args...)
}

// Kind returns the classification of err, or "internal" when err did not
// originate in the engine.
func Kind(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.ErrorKind()
	}
	return "internal"
}
