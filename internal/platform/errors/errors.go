// Package errors defines the domain error type shared by the simulation
// packages. Codes are the wire codes from package protocol.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"stellarforge.ai/internal/protocol"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     string            // protocol error code
	Message  string            // human readable message
	Metadata map[string]string // additional context (e.g. missing resources)
	Cause    error             // wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation   = &Error{Code: protocol.ErrValidation}
	ErrPrecondition = &Error{Code: protocol.ErrPrecondition}
	ErrNoResource   = &Error{Code: protocol.ErrNoResource}
	ErrNotFound     = &Error{Code: protocol.ErrNotFound}
	ErrConflict     = &Error{Code: protocol.ErrConflict}
	ErrBadRequest   = &Error{Code: protocol.ErrBadRequest}
)

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func WithMetadata(code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

func Validation(format string, args ...any) *Error {
	return New(protocol.ErrValidation, fmt.Sprintf(format, args...))
}

func Precondition(format string, args ...any) *Error {
	return New(protocol.ErrPrecondition, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(protocol.ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(protocol.ErrConflict, fmt.Sprintf(format, args...))
}

func BadRequest(format string, args ...any) *Error {
	return New(protocol.ErrBadRequest, fmt.Sprintf(format, args...))
}

// Shortage reports the resources whose balance is below the requested cost.
func Shortage(missing []string) *Error {
	m := append([]string(nil), missing...)
	sort.Strings(m)
	list := strings.Join(m, ",")
	return WithMetadata(protocol.ErrNoResource, "not enough resources: "+strings.Join(m, ", "), map[string]string{"missing": list})
}

// CodeOf returns the protocol code carried by err, or E_INTERNAL.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return protocol.ErrInternal
}

// HTTPStatus maps a protocol code onto an HTTP status for admin endpoints.
func HTTPStatus(code string) int {
	switch code {
	case "", protocol.ResultOK:
		return http.StatusOK
	case protocol.ErrBadRequest, protocol.ErrValidation, protocol.ErrProtoBadRequest, protocol.ErrNoResource:
		return http.StatusBadRequest
	case protocol.ErrNoPermission:
		return http.StatusForbidden
	case protocol.ErrNotFound, protocol.ErrGameNotFound:
		return http.StatusNotFound
	case protocol.ErrPrecondition, protocol.ErrConflict:
		return http.StatusConflict
	case protocol.ErrGameBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
