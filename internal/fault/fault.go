// Package fault defines the error kinds surfaced by the media ingestion
// pipeline.
//
// Every failure that aborts a playlist assembly carries exactly one kind.
// Callers classify with errors.Is against the sentinel values; the wrapped
// cause stays reachable through the same chain.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrIO marks local file read/write failures.
	ErrIO = errors.New("io error")
	// ErrConversion marks rasterization failures, including zero-page output.
	ErrConversion = errors.New("conversion error")
	// ErrRemoteStore marks any remote store provider failure.
	ErrRemoteStore = errors.New("remote store error")
	// ErrUpload marks a failed upload batch.
	ErrUpload = errors.New("upload error")
	// ErrInvalidInput marks unsupported or malformed playlist items.
	ErrInvalidInput = errors.New("invalid input")
)

// Error pairs a kind with the operation that failed and its cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns err tagged with kind. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New returns an error of kind with a formatted cause.
func New(kind error, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrInvalidInput, ErrConversion, ErrUpload, ErrRemoteStore, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
