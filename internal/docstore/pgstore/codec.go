package pgstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"DocrestAPI/internal/docstore"
)

// dateKey wraps timestamps the way MongoDB extended JSON does, so dates
// survive the jsonb round trip.
const dateKey = "$date"

func encodeDoc(doc docstore.Document) (string, error) {
	data, err := json.Marshal(toJSON(doc))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(data), nil
}

func toJSON(v any) any {
	switch t := v.(type) {
	case time.Time:
		return map[string]any{dateKey: t.UTC().Format(time.RFC3339Nano)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSON(val)
		}
		return out
	}
	return v
}

func decodeDoc(raw []byte) (docstore.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fromJSON(doc).(map[string]any), nil
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		if len(t) == 1 {
			if s, ok := t[dateKey].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
		}
		for k, val := range t {
			t[k] = fromJSON(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = fromJSON(val)
		}
		return t
	}
	return v
}
