// ============================================================================
// tempo-go - Go client for Tempo simulation services
// ============================================================================
//
// Package:     errors
// Description: Closed error taxonomy shared by the connection and streaming layers
// License:     MIT
// ============================================================================

// Package errors defines the three failure categories surfaced by the client
// runtime: Connection, RPC and Runtime. Every error returned across the
// public API of package tempo is an *Error carrying one of these kinds and
// the underlying cause.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the category of a failure
type Kind int

const (
	// KindConnection is a failure to establish or reuse the network handle
	KindConnection Kind = iota + 1
	// KindRPC is a non-OK terminal status returned by the remote side
	KindRPC
	// KindRuntime is a failure to construct or use a local driver for a blocking call
	KindRuntime
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindRPC:
		return "rpc"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Code represents a structured error code for categorizing errors
type Code string

const (
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	CodeRemoteStatus     Code = "REMOTE_STATUS"
	CodeRuntimeFailure   Code = "RUNTIME_FAILURE"
)

// String returns the string representation of the error code
func (c Code) String() string {
	return string(c)
}

// Sentinels for errors.Is comparisons against a kind.
var (
	ErrConnection = &Error{kind: KindConnection, message: "connection error"}
	ErrRPC        = &Error{kind: KindRPC, message: "rpc error"}
	ErrRuntime    = &Error{kind: KindRuntime, message: "runtime error"}
)

// Error is a typed failure with a kind, the operation that failed and its cause
type Error struct {
	kind    Kind
	op      string
	message string
	cause   error
}

// New creates an error of the given kind without a cause
func New(kind Kind, op, message string) *Error {
	return &Error{kind: kind, op: op, message: message}
}

// Wrap wraps cause as an error of the given kind. A nil cause yields nil.
func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, op: op, message: kind.String() + " error", cause: cause}
}

// Connection wraps cause as a Connection error
func Connection(op string, cause error) *Error {
	return Wrap(KindConnection, op, cause)
}

// RPC wraps cause as an RPC error
func RPC(op string, cause error) *Error {
	return Wrap(KindRPC, op, cause)
}

// Runtime wraps cause as a Runtime error
func Runtime(op string, cause error) *Error {
	return Wrap(KindRuntime, op, cause)
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.message
	if e.op != "" {
		prefix = fmt.Sprintf("%s: %s", e.op, e.message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", prefix, e.cause.Error())
	}
	return prefix
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same kind. This makes the
// package sentinels usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.kind == e.kind
}

// Kind returns the failure category
func (e *Error) Kind() Kind {
	return e.kind
}

// Op returns the operation that failed
func (e *Error) Op() string {
	return e.op
}

// Code returns the structured code for the error kind
func (e *Error) Code() Code {
	switch e.kind {
	case KindConnection:
		return CodeConnectionFailed
	case KindRPC:
		return CodeRemoteStatus
	default:
		return CodeRuntimeFailure
	}
}

// GRPCStatus exposes the remote status of an RPC error so status.FromError
// and status.Code see through the wrapper.
func (e *Error) GRPCStatus() *status.Status {
	if e.kind != KindRPC || e.cause == nil {
		return nil
	}
	if s, ok := status.FromError(e.cause); ok {
		return s
	}
	return nil
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.kind
	}
	return 0
}

// IsConnection reports whether err is a Connection error
func IsConnection(err error) bool {
	return KindOf(err) == KindConnection
}

// IsRPC reports whether err is an RPC error
func IsRPC(err error) bool {
	return KindOf(err) == KindRPC
}

// IsRuntime reports whether err is a Runtime error
func IsRuntime(err error) bool {
	return KindOf(err) == KindRuntime
}

// StatusCode returns the gRPC status code carried by err. Errors that carry
// no status map to codes.Unknown, nil maps to codes.OK.
func StatusCode(err error) codes.Code {
	return status.Code(err)
}
