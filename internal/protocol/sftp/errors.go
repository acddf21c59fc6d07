package sftp

import (
	"errors"
	"fmt"
)

// StatusError is an error that maps to a definite wire status code. Handlers
// return it when the failure is part of the protocol contract (permission
// denied, no such file) rather than an internal fault.
type StatusError struct {
	// Code is the wire status code.
	Code uint32

	// Msg is the client-visible message; empty uses the code's default.
	Msg string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("sftp status %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("sftp status %d: %s", e.Code, StatusMessage(e.Code))
}

// ErrPermissionDenied is the plain permission-denied status error.
var ErrPermissionDenied = &StatusError{Code: StatusPermissionDenied}

// ErrNoSuchFile is the plain not-found status error.
var ErrNoSuchFile = &StatusError{Code: StatusNoSuchFile}

// ErrEOF is the end-of-data status; READ and READDIR return it when
// exhausted.
var ErrEOF = &StatusError{Code: StatusEOF}

// StatusFromError resolves the wire status code for a handler error. A
// StatusError anywhere in the chain decides the code; everything else is a
// generic FAILURE. nil maps to OK.
func StatusFromError(err error) (code uint32, msg string) {
	if err == nil {
		return StatusOK, ""
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, se.Msg
	}
	return StatusFailure, ""
}

// Denied builds a permission-denied error with a client-visible message.
func Denied(msg string) *StatusError {
	return &StatusError{Code: StatusPermissionDenied, Msg: msg}
}

// Failure builds a generic failure with a client-visible message.
func Failure(msg string) *StatusError {
	return &StatusError{Code: StatusFailure, Msg: msg}
}
