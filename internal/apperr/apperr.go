// Package apperr defines the application error taxonomy. Every externally
// visible failure carries a stable machine-readable code, an HTTP status
// class and a human message; internal stack details never leak.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes.
const (
	CodeInvalidPayload      = "invalid_payload"
	CodeInvalidProfile      = "invalid_profile"
	CodeLocationNotFound    = "location_not_found"
	CodeRouteNotFound       = "ors_not_found"
	CodeUpstreamTimeout     = "ors_timeout"
	CodeUpstreamConnection  = "ors_connection_error"
	CodeInvalidUpstreamJSON = "ors_invalid_json"
	CodeUpstreamBadRequest  = "ors_invalid_request"
	CodeUpstreamBadKey      = "ors_invalid_key"
	CodeUpstreamForbidden   = "ors_forbidden"
	CodeUpstreamRateLimited = "ors_rate_limited"
	CodeUpstreamUnavailable = "ors_unavailable"
	CodeUpstreamUnexpected  = "ors_unexpected_status"
	CodeUnsupportedGeometry = "unsupported_geometry"
	CodeMissingSummary      = "missing_summary"
	CodeConfig              = "configuration_error"
)

// Error is a classified application error.
type Error struct {
	Code    string         // stable machine-readable code
	Status  int            // caller-visible HTTP status class
	Message string         // human message, safe to expose
	Detail  map[string]any // optional structured detail (allow-lists, upstream status, attempts)
	Err     error          // wrapped cause, not exposed to callers
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so sentinel-style comparisons work across instances.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New builds an Error with the given code, status and formatted message.
func New(code string, status int, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a structured detail entry and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Wrap attaches a cause and returns the error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// From extracts an *Error from err, or wraps err as an opaque internal error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{
		Code:    "internal_error",
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}
