package docstore

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Clone deep-copies maps and slices. Scalars are shared.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	case []Document:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return v
	}
}

// CloneDocument deep-copies a document.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return Clone(doc).(map[string]any)
}

// Plain unwraps Objecter values and converts typed maps and slices into
// map[string]any and []any recursively.
func Plain(v any) any {
	if o, ok := v.(Objecter); ok {
		return Plain(o.ToObject())
	}
	switch t := v.(type) {
	case nil, string, bool, float64, int, int64, int32, float32, json.Number, time.Time, []byte:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Plain(val)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Plain(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Plain(rv.Index(i).Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Plain(rv.Elem().Interface())
	}
	return v
}

// PlainDocument converts v into a Document, reporting false when v is not
// document-shaped.
func PlainDocument(v any) (Document, bool) {
	doc, ok := Plain(v).(map[string]any)
	return doc, ok
}

// Lookup returns the value at a dotted path without descending into arrays.
func Lookup(doc Document, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if arr, isArr := cur.([]any); isArr {
				idx, err := strconv.Atoi(part)
				if err != nil || idx < 0 || idx >= len(arr) {
					return nil, false
				}
				cur = arr[idx]
				continue
			}
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath assigns v at a dotted path, creating intermediate documents.
func SetPath(doc Document, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// UnsetPath removes the value at a dotted path.
func UnsetPath(doc Document, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

// ToFloat reports the numeric value of v.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// IsOperatorKey reports whether k is a $-prefixed operator.
func IsOperatorKey(k string) bool {
	return strings.HasPrefix(k, "$")
}

// IsOperatorMap reports whether v is a mapping whose keys are all operators.
func IsOperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !IsOperatorKey(k) {
			return nil, false
		}
	}
	return m, true
}

// AsList converts any slice value into []any.
func AsList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []Document:
		out := make([]any, len(t))
		for i, d := range t {
			out[i] = d
		}
		return out, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
