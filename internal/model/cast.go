package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"DocrestAPI/internal/docstore"
)

// Field types accepted in definitions.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeInt    = "int"
	TypeBool   = "bool"
	TypeDate   = "date"
	TypeID     = "id"
	TypeObject = "object"
	TypeArray  = "array"
	TypeMixed  = "mixed"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func (m *Model) castError(path, typ string, v any, cause error) *docstore.Error {
	msg := fmt.Sprintf("Cast to %s failed for value %s (type %T) at path \"%s\" for model \"%s\"",
		typeLabel(typ), quoteValue(v), v, path, m.Name)
	opts := []docstore.ErrorOption{docstore.WithPath(path), docstore.WithValue(v)}
	if cause != nil {
		opts = append(opts, docstore.WithCause(cause))
	}
	return docstore.NewError(docstore.CastError, msg, opts...)
}

func typeLabel(typ string) string {
	switch typ {
	case TypeNumber, TypeInt:
		return "Number"
	case TypeBool:
		return "Boolean"
	case TypeDate:
		return "Date"
	case TypeID:
		return "ObjectId"
	case TypeObject:
		return "Embedded"
	case TypeArray:
		return "Array"
	}
	return "string"
}

func quoteValue(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// castValue converts v to the field's type.
func (m *Model) castValue(path string, f *Field, v any) (any, error) {
	if f == nil || v == nil {
		return v, nil
	}
	if f.Type == TypeArray {
		list, ok := docstore.AsList(v)
		if !ok {
			list = []any{v}
		}
		out := make([]any, len(list))
		for i, item := range list {
			cv, err := m.castScalar(path, f.Of, item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	}
	return m.castScalar(path, f.Type, v)
}

// castElement casts a query operand. Array fields compare against their
// element type.
func (m *Model) castElement(path string, f *Field, v any) (any, error) {
	if f == nil || v == nil {
		return v, nil
	}
	if f.Type == TypeArray {
		if _, isList := docstore.AsList(v); isList {
			return m.castValue(path, f, v)
		}
		return m.castScalar(path, f.Of, v)
	}
	return m.castScalar(path, f.Type, v)
}

func (m *Model) castScalar(path, typ string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case TypeString:
		switch t := v.(type) {
		case string:
			return t, nil
		case bool, json.Number:
			return fmt.Sprint(t), nil
		}
		if n, ok := docstore.ToFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		}
		return nil, m.castError(path, typ, v, nil)
	case TypeNumber:
		if s, ok := v.(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, m.castError(path, typ, v, err)
			}
			return n, nil
		}
		if b, ok := v.(bool); ok {
			if b {
				return float64(1), nil
			}
			return float64(0), nil
		}
		if n, ok := docstore.ToFloat(v); ok {
			return n, nil
		}
		return nil, m.castError(path, typ, v, nil)
	case TypeInt:
		var n float64
		if s, ok := v.(string); ok {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, m.castError(path, typ, v, err)
			}
			n = parsed
		} else if f, ok := docstore.ToFloat(v); ok {
			n = f
		} else {
			return nil, m.castError(path, typ, v, nil)
		}
		if n != math.Trunc(n) {
			return nil, m.castError(path, typ, v, nil)
		}
		return int64(n), nil
	case TypeBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1", "yes":
				return true, nil
			case "false", "0", "no":
				return false, nil
			}
		}
		if n, ok := docstore.ToFloat(v); ok && (n == 0 || n == 1) {
			return n == 1, nil
		}
		return nil, m.castError(path, typ, v, nil)
	case TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			for _, layout := range dateLayouts {
				if ts, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
					return ts.UTC(), nil
				}
			}
			if ms, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return time.UnixMilli(ms).UTC(), nil
			}
		}
		if n, ok := docstore.ToFloat(v); ok {
			return time.UnixMilli(int64(n)).UTC(), nil
		}
		return nil, m.castError(path, typ, v, nil)
	case TypeID:
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t), nil
		case fmt.Stringer:
			return v, nil
		}
		if n, ok := docstore.ToFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), nil
		}
		return nil, m.castError(path, typ, v, nil)
	case TypeObject:
		doc, ok := docstore.PlainDocument(v)
		if !ok {
			return nil, m.castError(path, typ, v, nil)
		}
		return doc, nil
	}
	return docstore.Plain(v), nil
}

// castCriteria casts the operands of known schema paths in filter.
func (m *Model) castCriteria(filter docstore.Document) (docstore.Document, error) {
	out := make(docstore.Document, len(filter))
	for key, cond := range filter {
		switch key {
		case "$and", "$or", "$nor":
			list, ok := docstore.AsList(cond)
			if !ok {
				out[key] = cond
				continue
			}
			clauses := make([]any, len(list))
			for i, item := range list {
				sub, isDoc := docstore.PlainDocument(item)
				if !isDoc {
					clauses[i] = item
					continue
				}
				cs, err := m.castCriteria(sub)
				if err != nil {
					return nil, err
				}
				clauses[i] = cs
			}
			out[key] = clauses
			continue
		}
		f := m.field(key)
		if f == nil || docstore.IsOperatorKey(key) {
			out[key] = cond
			continue
		}
		if ops, ok := docstore.IsOperatorMap(cond); ok {
			cast, err := m.castOperators(key, f, ops)
			if err != nil {
				return nil, err
			}
			out[key] = cast
			continue
		}
		cv, err := m.castElement(key, f, cond)
		if err != nil {
			return nil, err
		}
		out[key] = cv
	}
	return out, nil
}

func (m *Model) castOperators(path string, f *Field, ops map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(ops))
	for op, arg := range ops {
		switch op {
		case "$in", "$nin":
			list, ok := docstore.AsList(arg)
			if !ok {
				list = []any{arg}
			}
			cast := make([]any, len(list))
			for i, item := range list {
				cv, err := m.castElement(path, f, item)
				if err != nil {
					return nil, err
				}
				cast[i] = cv
			}
			out[op] = cast
		case "$eq", "$ne", "$lt", "$lte", "$gt", "$gte":
			cv, err := m.castElement(path, f, arg)
			if err != nil {
				return nil, err
			}
			out[op] = cv
		case "$exists":
			b, err := m.castScalar(path, TypeBool, arg)
			if err != nil {
				return nil, err
			}
			out[op] = b
		case "$not":
			sub, ok := docstore.IsOperatorMap(arg)
			if !ok {
				out[op] = arg
				continue
			}
			cast, err := m.castOperators(path, f, sub)
			if err != nil {
				return nil, err
			}
			out[op] = cast
		default:
			out[op] = arg
		}
	}
	return out, nil
}
