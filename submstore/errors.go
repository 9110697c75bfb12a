package submstore

import (
	"errors"
	"fmt"
)

// Init failure reasons.
var (
	ErrMissingCredential = errors.New("missing or malformed credential")
	ErrUnreachable       = errors.New("backend unreachable")
	ErrAuthRejected      = errors.New("authentication rejected")
)

// Write and read failure reasons.
var (
	ErrTransient = errors.New("transient storage failure")
	ErrRejected  = errors.New("write rejected by backend")
)

// InitError is returned by the Open constructors. Reason is one of
// ErrMissingCredential, ErrUnreachable or ErrAuthRejected.
type InitError struct {
	Backend Kind
	Reason  error
	Err     error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("init %s: %v", e.Backend, e.Reason)
	}
	return fmt.Sprintf("init %s: %v: %v", e.Backend, e.Reason, e.Err)
}

func (e *InitError) Unwrap() []error {
	return []error{e.Reason, e.Err}
}

func missingCredential(k Kind, format string, args ...any) *InitError {
	return &InitError{Backend: k, Reason: ErrMissingCredential, Err: fmt.Errorf(format, args...)}
}

func unreachable(k Kind, err error) *InitError {
	return &InitError{Backend: k, Reason: ErrUnreachable, Err: err}
}

func authRejected(k Kind, err error) *InitError {
	return &InitError{Backend: k, Reason: ErrAuthRejected, Err: err}
}

// WriteError is returned by Create. Reason is ErrTransient or ErrRejected.
// A partially acknowledged write is reported as transient.
type WriteError struct {
	Backend Kind
	Reason  error
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v: %v", e.Backend, e.Reason, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{e.Reason, e.Err}
}

func writeTransient(k Kind, err error) *WriteError {
	return &WriteError{Backend: k, Reason: ErrTransient, Err: err}
}

func writeRejected(k Kind, err error) *WriteError {
	return &WriteError{Backend: k, Reason: ErrRejected, Err: err}
}

// ReadError is returned by Count and List. Reads only fail transiently.
type ReadError struct {
	Backend Kind
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v: %v", e.Backend, ErrTransient, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

func readTransient(k Kind, err error) *ReadError {
	return &ReadError{Backend: k, Err: err}
}

// InitReason extracts the failure reason of an Open error for logging.
// Errors that are not InitErrors yield ErrUnreachable.
func InitReason(err error) error {
	var ie *InitError
	if errors.As(err, &ie) && ie.Reason != nil {
		return ie.Reason
	}
	return ErrUnreachable
}
