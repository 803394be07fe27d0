// Package domain defines the core domain models for tcpctl.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format TC-{AREA}-{NNNN}.
type DomainError struct {
	Code    string // Error code (e.g., "TC-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error, usually an OS errno
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates no session owns the requested handle.
	ErrSessionNotFound = NewDomainError("TC-SESS-4040", "handle not found in session table")

	// ErrProtected indicates a managed session was closed without force.
	ErrProtected = NewDomainError("TC-SESS-4030", "session is managed by another protocol, use force to close")

	// ErrNotOpen indicates a close on a session whose handle is already unset.
	ErrNotOpen = NewDomainError("TC-SESS-4090", "session is not open")
)

// ============================================================================
// Network Errors (NET)
// ============================================================================

var (
	// ErrResolution indicates the destination name could not be resolved.
	ErrResolution = NewDomainError("TC-NET-4041", "host resolution failure")

	// ErrSocketCreate indicates the OS refused to create a socket.
	ErrSocketCreate = NewDomainError("TC-NET-5001", "socket creation failed")

	// ErrConnect indicates every candidate address failed.
	ErrConnect = NewDomainError("TC-NET-5002", "connection failed")

	// ErrClose indicates the OS close call failed.
	ErrClose = NewDomainError("TC-NET-5003", "connection close failed")

	// ErrIO indicates a read or write on an open handle failed.
	ErrIO = NewDomainError("TC-NET-5004", "socket i/o failed")
)

// ============================================================================
// Argument and System Errors (ARG, SYS)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("TC-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("TC-ARG-1002", "missing required argument")

	// ErrInternal indicates an unexpected internal failure.
	ErrInternal = NewDomainError("TC-SYS-5000", "internal error")
)
