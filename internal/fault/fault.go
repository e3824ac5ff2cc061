package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies where in the capture → transcribe pipeline an error arose.
type Kind string

const (
	Capture       Kind = "capture"
	Validation    Kind = "validation"
	Transport     Kind = "transport"
	Ingest        Kind = "ingest"
	Transcode     Kind = "transcode"
	Transcription Kind = "transcription"
	Generation    Kind = "generation"
	Extraction    Kind = "extraction"
	Cleanup       Kind = "cleanup"
	Timeout       Kind = "timeout"
)

// Error is the structured error carried back to callers. StatusCode and Details
// mirror what an upstream service reported, when it reported anything.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Details    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a fault without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and message to err. A context deadline turns into a
// Timeout fault regardless of the requested kind.
func Wrap(kind Kind, message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: Timeout, Message: fmt.Sprintf("%s timed out", kind), Err: err}
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// As extracts a *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf reports the fault kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return ""
}

// HTTPStatus maps a fault kind onto the status the ingest API responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Ingest, Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
