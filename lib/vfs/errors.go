package vfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/kvfs/lib/bridge"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// Code classifies a vfs error.
type Code uint8

const (
	CodeAcquire  Code = iota + 1 // The transaction or its lock could not be acquired.
	CodeStore                    // The underlying store reported a failure.
	CodeBridge                   // The blocking bridge could not complete the work.
	CodeNotFound                 // The named file or vfs does not exist.
	CodeExists                   // The named file or vfs already exists.
	CodeReadOnly                 // Write through a read-only handle.
	CodeInvalid                  // Invalid argument (name, offset, options).
	CodeBusy                     // The file lock is held by someone else.
	CodeClosed                   // The handle or vfs was closed.
)

func (c Code) String() string {
	switch c {
	case CodeAcquire:
		return "Acquire"
	case CodeStore:
		return "Store"
	case CodeBridge:
		return "Bridge"
	case CodeNotFound:
		return "NotFound"
	case CodeExists:
		return "Exists"
	case CodeReadOnly:
		return "ReadOnly"
	case CodeInvalid:
		return "Invalid"
	case CodeBusy:
		return "Busy"
	case CodeClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the single error type returned by this package.
// Err holds the cause (a *store.Error, bridge.ErrPanicked, context.Canceled, ...), it may be nil.
type Error struct {
	Code Code
	Op   string // operation, e.g. "read", "write", "open"
	Name string // file or vfs name, may be empty
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("vfs %s", e.Op)
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	msg += fmt.Sprintf(" (code %s)", e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, &vfs.Error{Code: vfs.CodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	errEnded    = errors.New("transaction ended")
	errPoisoned = errors.New("transaction poisoned")
)

// IsCode reports whether err is (or wraps) a vfs error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func newError(code Code, op, name string, err error) *Error {
	return &Error{Code: code, Op: op, Name: name, Err: err}
}

// fromBridge classifies an error returned by bridge.Run.
// Errors that are already *Error pass through, bridge and context failures
// become CodeBridge, everything else came from the store.
func fromBridge(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, bridge.ErrClosed) || errors.Is(err, bridge.ErrPanicked) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeBridge, op, name, err)
	}
	return newError(CodeStore, op, name, err)
}
