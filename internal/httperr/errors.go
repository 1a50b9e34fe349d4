// Package httperr is the status-coded error catalog returned by resource
// services. Every error leaving a service is one of these.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error is a status-coded error with optional structured detail.
type Error struct {
	Name      string
	Message   string
	Code      int
	ClassName string
	Data      any
	Errors    map[string]any
	// Cause is the underlying store or runtime error, if any.
	Cause error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"name":      e.Name,
		"message":   e.Message,
		"code":      e.Code,
		"className": e.ClassName,
	}
	if e.Data != nil {
		out["data"] = e.Data
	}
	if len(e.Errors) > 0 {
		out["errors"] = e.Errors
	}
	return json.Marshal(out)
}

type Option func(*Error)

func WithData(data any) Option {
	return func(e *Error) { e.Data = data }
}

func WithErrors(fields map[string]any) Option {
	return func(e *Error) { e.Errors = fields }
}

func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

type kind struct {
	name      string
	className string
}

var catalog = map[int]kind{
	http.StatusBadRequest:          {"BadRequest", "bad-request"},
	http.StatusUnauthorized:        {"NotAuthenticated", "not-authenticated"},
	http.StatusPaymentRequired:     {"PaymentError", "payment-error"},
	http.StatusForbidden:           {"Forbidden", "forbidden"},
	http.StatusNotFound:            {"NotFound", "not-found"},
	http.StatusMethodNotAllowed:    {"MethodNotAllowed", "method-not-allowed"},
	http.StatusNotAcceptable:       {"NotAcceptable", "not-acceptable"},
	http.StatusRequestTimeout:      {"Timeout", "timeout"},
	http.StatusConflict:            {"Conflict", "conflict"},
	http.StatusGone:                {"Gone", "gone"},
	http.StatusLengthRequired:      {"LengthRequired", "length-required"},
	http.StatusUnprocessableEntity: {"Unprocessable", "unprocessable"},
	http.StatusTooManyRequests:     {"TooManyRequests", "too-many-requests"},
	http.StatusInternalServerError: {"GeneralError", "general-error"},
	http.StatusNotImplemented:      {"NotImplemented", "not-implemented"},
	http.StatusBadGateway:          {"BadGateway", "bad-gateway"},
	http.StatusServiceUnavailable:  {"Unavailable", "unavailable"},
}

// New builds the catalog error for code. Codes outside the catalog become
// GeneralError.
func New(code int, message string, opts ...Option) *Error {
	k, ok := catalog[code]
	if !ok {
		code = http.StatusInternalServerError
		k = catalog[code]
	}
	if message == "" {
		message = k.name
	}
	e := &Error{Name: k.name, Message: message, Code: code, ClassName: k.className}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func BadRequest(msg string, opts ...Option) *Error {
	return New(http.StatusBadRequest, msg, opts...)
}

func NotAuthenticated(msg string, opts ...Option) *Error {
	return New(http.StatusUnauthorized, msg, opts...)
}

func PaymentError(msg string, opts ...Option) *Error {
	return New(http.StatusPaymentRequired, msg, opts...)
}

func Forbidden(msg string, opts ...Option) *Error {
	return New(http.StatusForbidden, msg, opts...)
}

func NotFound(msg string, opts ...Option) *Error {
	return New(http.StatusNotFound, msg, opts...)
}

func MethodNotAllowed(msg string, opts ...Option) *Error {
	return New(http.StatusMethodNotAllowed, msg, opts...)
}

func NotAcceptable(msg string, opts ...Option) *Error {
	return New(http.StatusNotAcceptable, msg, opts...)
}

func Timeout(msg string, opts ...Option) *Error {
	return New(http.StatusRequestTimeout, msg, opts...)
}

func Conflict(msg string, opts ...Option) *Error {
	return New(http.StatusConflict, msg, opts...)
}

func Gone(msg string, opts ...Option) *Error {
	return New(http.StatusGone, msg, opts...)
}

func LengthRequired(msg string, opts ...Option) *Error {
	return New(http.StatusLengthRequired, msg, opts...)
}

func Unprocessable(msg string, opts ...Option) *Error {
	return New(http.StatusUnprocessableEntity, msg, opts...)
}

func TooManyRequests(msg string, opts ...Option) *Error {
	return New(http.StatusTooManyRequests, msg, opts...)
}

func GeneralError(msg string, opts ...Option) *Error {
	return New(http.StatusInternalServerError, msg, opts...)
}

func NotImplemented(msg string, opts ...Option) *Error {
	return New(http.StatusNotImplemented, msg, opts...)
}

func BadGateway(msg string, opts ...Option) *Error {
	return New(http.StatusBadGateway, msg, opts...)
}

func Unavailable(msg string, opts ...Option) *Error {
	return New(http.StatusServiceUnavailable, msg, opts...)
}

// StatusOf returns the status code carried by err, or 500 when err is not a
// catalog error.
func StatusOf(err error) int {
	var he *Error
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Is reports whether err is a catalog error with the given status code.
func Is(err error, code int) bool {
	var he *Error
	return errors.As(err, &he) && he.Code == code
}
