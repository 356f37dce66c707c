package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine and the bridge report.
type ErrorKind int

// Error kinds.
const (
	// KindValidation covers bad arguments rejected at the call site,
	// before anything is queued.
	KindValidation ErrorKind = iota + 1
	// KindConnection covers native open, close and version pragma failures.
	KindConnection
	// KindStatement covers native execution failures and failing user
	// callbacks inside a transaction.
	KindStatement
	// KindReadOnly is a write statement issued in a read-only transaction.
	KindReadOnly
	// KindVersionMismatch is a database version that differs from the
	// one the caller expected.
	KindVersionMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindStatement:
		return "statement"
	case KindReadOnly:
		return "read-only"
	case KindVersionMismatch:
		return "version-mismatch"
	default:
		return "unknown"
	}
}

// Error carries a kind, a message, the optional native error code and the
// wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error of the given kind around err.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds an *Error of the given kind with a formatted message. A %w
// verb in format is preserved for errors.Is.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the native code of the first *Error in err's chain, or 0.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Validation errors, returned synchronously at the call site.
var (
	ErrEmptyName           = errors.New("database name can't be null or empty")
	ErrInvalidVersion      = errors.New("database version should be a number or its string representation")
	ErrNilCallback         = errors.New("transaction callback expected")
	ErrEmptySQL            = errors.New("sql query can't be null or empty")
	ErrReadOnlyViolation   = errors.New("read-only transaction can't include write operations")
	ErrTransactionFinished = errors.New("transaction is no longer accepting statements")
)

// Runtime errors, reported through error continuations.
var (
	ErrVersionMismatch  = errors.New("version mismatch")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrCallbackPanic    = errors.New("callback panicked")
	ErrSkipped          = errors.New("skipped after an earlier failure in the parent transaction")
)

// Bridge lifecycle errors.
var (
	ErrAlreadyAttached = errors.New("bridge already attached")
	ErrBridgeDetached  = errors.New("bridge is detached")
)
