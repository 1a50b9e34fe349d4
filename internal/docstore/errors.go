package docstore

import (
	"fmt"
	"sort"
	"strings"
)

// Names of store-native errors. They mirror the error names a MongoDB ODM
// raises so every backend reports failures in one vocabulary.
const (
	ValidationError     = "ValidationError"
	ValidatorError      = "ValidatorError"
	CastError           = "CastError"
	VersionError        = "VersionError"
	StrictPopulateError = "StrictPopulateError"
	OverwriteModelError = "OverwriteModelError"
	MissingSchemaError  = "MissingSchemaError"
	DivergentArrayError = "DivergentArrayError"
	MongoError          = "MongoError"
)

// Duplicate key codes reported by MongoDB.
const (
	CodeDuplicateKey       = 11000
	CodeDuplicateKeyLegacy = 11001
)

// Error is a store-native failure.
type Error struct {
	Name    string
	Code    int
	Message string
	Path    string
	Value   any
	// Errors holds per-path failures of a ValidationError.
	Errors map[string]*Error
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Name, e.Message, e.Cause)
	}
	return e.Name + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

type ErrorOption func(*Error)

func WithPath(path string) ErrorOption {
	return func(e *Error) { e.Path = path }
}

func WithValue(v any) ErrorOption {
	return func(e *Error) { e.Value = v }
}

func WithCode(code int) ErrorOption {
	return func(e *Error) { e.Code = code }
}

func WithCause(err error) ErrorOption {
	return func(e *Error) { e.Cause = err }
}

func NewError(name, message string, opts ...ErrorOption) *Error {
	e := &Error{Name: name, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DuplicateKey builds the MongoDB-formatted duplicate key error so that
// callers can parse field and value out of the message.
func DuplicateKey(collection, field string, value any) *Error {
	msg := fmt.Sprintf("E11000 duplicate key error collection: %s index: %s_1 dup key: { : %s }",
		collection, field, dupKeyLiteral(value))
	return NewError(MongoError, msg, WithCode(CodeDuplicateKey), WithPath(field), WithValue(value))
}

func dupKeyLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", t)
	default:
		return fmt.Sprint(t)
	}
}

// Validation aggregates per-path validator failures into one ValidationError.
func Validation(model string, failures map[string]*Error) *Error {
	paths := make([]string, 0, len(failures))
	for path := range failures {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		parts = append(parts, fmt.Sprintf("%s: %s", path, failures[path].Message))
	}
	msg := model + " validation failed: " + strings.Join(parts, ", ")
	return &Error{Name: ValidationError, Message: msg, Errors: failures}
}
