package lockmgr

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the error that caused it.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("LockError (code %s)", e.Code)
	}
	return fmt.Sprintf("LockError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code. This makes the
// sentinel values below usable with errors.Is, no matter the message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Unwrap returns the error that caused this error (may be nil)
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// wrapError creates a new Error with the given code, message and cause.
func wrapError(code RetCode, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: cause,
	}
}

// CodeOf returns the RetCode of err. Errors that are not an *Error map to
// RetCInternalError, nil maps to RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// ErrorFromWire rebuilds an error from its code and its Error() string, as
// sent by the RPC server. It returns nil for an empty message and RetCSuccess.
func ErrorFromWire(code RetCode, msg string) error {
	if msg == "" && code == RetCSuccess {
		return nil
	}
	if code == RetCSuccess {
		code = RetCInternalError
	}
	msg = strings.TrimPrefix(msg, fmt.Sprintf("LockError (code %s)", code))
	msg = strings.TrimPrefix(msg, ": ")
	return NewError(code, msg)
}

// --------------------------------------------------------------------------
// Sentinel Errors (compare with errors.Is)
// --------------------------------------------------------------------------

var (
	// ErrDeadlock is returned if waiting for a lock would close a cycle in the
	// wait-for graph. Nothing was changed, the caller should roll back.
	ErrDeadlock = NewError(RetCDeadlock, "")
	// ErrLockReleased is returned to a waiter whose wait was torn down by a
	// forced release (e.g. its transaction ended while it was queued).
	ErrLockReleased = NewError(RetCLockReleased, "")
	// ErrInterrupted is returned if the context of a waiting caller was
	// cancelled. This is never expected in normal operation.
	ErrInterrupted = NewError(RetCInterrupted, "")
	// ErrInvalidOperation is returned for requests the lock manager refuses.
	ErrInvalidOperation = NewError(RetCInvalidOperation, "")
	// ErrUnknownTx is returned by containers for unknown transaction ids.
	ErrUnknownTx = NewError(RetCUnknownTx, "")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint8

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Operation failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation.
	RetCDeadlock                        // 3: Waiting would deadlock.
	RetCLockReleased                    // 4: The lock was released while waiting.
	RetCInterrupted                     // 5: The wait was interrupted.
	RetCUnknownTx                       // 6: The transaction does not exist.
)

// String returns the string representation of a RetCode.
func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCDeadlock:
		return "Deadlock"
	case RetCLockReleased:
		return "LockReleased"
	case RetCInterrupted:
		return "Interrupted"
	case RetCUnknownTx:
		return "UnknownTx"
	default:
		return "Unknown"
	}
}
