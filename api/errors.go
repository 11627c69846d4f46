// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-proxy.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the proxy core.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeWouldBlock
	ErrCodeIO
	ErrCodeRegister
	ErrCodeNoListenerFound
	ErrCodeListenerActivation
	ErrCodeListenerExists
	ErrCodeListenerActive
	ErrCodeTooManySessions
	ErrCodeBufferCapacityReached
	ErrCodeTokensExhausted
	ErrCodeNotSupported
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                    "ok",
	ErrCodeWouldBlock:            "would block",
	ErrCodeIO:                    "io error",
	ErrCodeRegister:              "register error",
	ErrCodeNoListenerFound:       "no listener found",
	ErrCodeListenerActivation:    "listener activation",
	ErrCodeListenerExists:        "listener exists",
	ErrCodeListenerActive:        "listener already active",
	ErrCodeTooManySessions:       "too many sessions",
	ErrCodeBufferCapacityReached: "buffer capacity reached",
	ErrCodeTokensExhausted:       "tokens exhausted",
	ErrCodeNotSupported:          "not supported",
}

func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Sentinels, one per code. Match them with errors.Is.
var (
	ErrWouldBlock            = NewError(ErrCodeWouldBlock, "operation would block")
	ErrIO                    = NewError(ErrCodeIO, "io error")
	ErrRegister              = NewError(ErrCodeRegister, "reactor registration failed")
	ErrNoListenerFound       = NewError(ErrCodeNoListenerFound, "no listener found")
	ErrListenerActivation    = NewError(ErrCodeListenerActivation, "listener activation failed")
	ErrListenerExists        = NewError(ErrCodeListenerExists, "listener already exists")
	ErrListenerActive        = NewError(ErrCodeListenerActive, "listener already active")
	ErrTooManySessions       = NewError(ErrCodeTooManySessions, "too many sessions")
	ErrBufferCapacityReached = NewError(ErrCodeBufferCapacityReached, "buffer capacity reached")
	ErrTokensExhausted       = NewError(ErrCodeTokensExhausted, "token space exhausted")
	ErrNotSupported          = NewError(ErrCodeNotSupported, "operation not supported")
)

// Error represents a structured error with code, context and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause, usually an OS error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a structured error around cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or ErrCodeOK for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeIO
}
