package errors

import (
	sterrors "errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrConfigRequired    = sterrors.New("reportflow: configuration is required")
	ErrLoggerRequired    = sterrors.New("reportflow: logger is required")
	ErrPublisherRequired = sterrors.New("reportflow: publisher is required")
	ErrTopicRequired     = sterrors.New("reportflow: topic is required")
	ErrEmitterRequired   = sterrors.New("reportflow: emitter is required")
	ErrOperationRequired = sterrors.New("reportflow: operation is required")
	ErrPublisherClosed   = sterrors.New("reportflow: publisher is closed")
	ErrEmitterClosed     = sterrors.New("reportflow: emitter is closed")
	ErrQueueFull         = sterrors.New("reportflow: emitter queue is full")
	ErrPublishTimeout    = sterrors.New("reportflow: publish timed out")
	ErrPublishRejected   = sterrors.New("reportflow: broker rejected record")

	// ErrMalformedInput is matched by every MalformedInputError.
	ErrMalformedInput = sterrors.New("malformed input")
	// ErrInvalidState is matched by every InvalidStateError.
	ErrInvalidState = sterrors.New("invalid operation state")
)

// Class is the outcome bucket an operation failure falls into.
type Class string

const (
	ClassValidation     Class = "ValidationFailure"
	ClassMalformedInput Class = "MalformedInput"
	ClassInvalidState   Class = "InvalidOperationState"
	ClassUnclassified   Class = "Unclassified"
)

// StatusCode returns the nominal HTTP status for the class.
func (c Class) StatusCode() int {
	switch c {
	case ClassValidation, ClassMalformedInput:
		return http.StatusBadRequest
	case ClassInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the caller-facing summary for the class.
func (c Class) Message() string {
	switch c {
	case ClassValidation, ClassMalformedInput:
		return "Invalid request parameters"
	case ClassInvalidState:
		return "Operation cannot be completed"
	default:
		return "Internal server error"
	}
}

// MalformedInputError reports input the operation cannot act on.
type MalformedInputError struct {
	Field string
	Msg   string
	Err   error
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	b.WriteString("malformed input")
	if e.Field != "" {
		b.WriteString(" (" + e.Field + ")")
	}
	if e.Msg != "" {
		b.WriteString(": " + e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

// InvalidStateError reports an operation that cannot complete in the current state.
type InvalidStateError struct {
	Msg string
	Err error
}

func (e *InvalidStateError) Error() string {
	if e.Err != nil {
		return "invalid operation state: " + e.Msg + ": " + e.Err.Error()
	}
	return "invalid operation state: " + e.Msg
}

func (e *InvalidStateError) Unwrap() error { return e.Err }

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// MalformedInput builds a MalformedInputError for field.
func MalformedInput(field, format string, args ...any) error {
	return &MalformedInputError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// InvalidState builds an InvalidStateError, optionally wrapping cause.
func InvalidState(cause error, format string, args ...any) error {
	return &InvalidStateError{Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Classify maps err onto its outcome class. Nil is unclassified.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnclassified
	case sterrors.Is(err, ErrMalformedInput):
		return ClassMalformedInput
	case sterrors.Is(err, ErrInvalidState):
		return ClassInvalidState
	default:
		return ClassUnclassified
	}
}

// Trace renders the unwrap chain of err, one layer per line, with the
// concrete type of each layer. Joined errors are expanded depth-first.
func Trace(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	writeTrace(&b, err, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeTrace(b *strings.Builder, err error, depth int) {
	for err != nil {
		fmt.Fprintf(b, "%s%T: %s\n", strings.Repeat("  ", depth), err, err.Error())
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				writeTrace(b, inner, depth+1)
			}
			return
		case interface{ Unwrap() error }:
			err = u.Unwrap()
			depth++
		default:
			return
		}
	}
}
