// Package apperr defines the error taxonomy shared by all services so the
// HTTP layer can map failures to responses without string matching
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindInternal is the fallback for anything unexpected
	KindInternal Kind = iota
	// KindNotFound covers invalid, expired or unknown keys and missing files
	KindNotFound
	// KindConflict is a name collision under the Reject strategy
	KindConflict
	// KindValidation covers malformed keys and bad request fields
	KindValidation
	// KindResourceExhausted covers conversion and lease timeouts
	KindResourceExhausted
	// KindExternalFailure covers converter subprocess, automation and
	// remote storage failures
	KindExternalFailure
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain. Plain errors
// report KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns the user-facing message of an error chain. Internal
// errors are masked so raw details never reach a client.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Msg
	}
	return "Internal server error"
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
