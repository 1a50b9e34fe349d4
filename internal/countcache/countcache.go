// Package countcache caches collection totals for estimated-count pagination.
package countcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Cache stores totals keyed by collection and criteria.
type Cache interface {
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, total int64)
	// Invalidate drops every entry of a collection.
	Invalidate(ctx context.Context, collection string) error
}

const keyPrefix = "count:"

// Key derives a stable cache key from a collection, the model reading it and
// the criteria.
func Key(collection, model string, criteria map[string]any) (string, error) {
	data, err := canonicalJSON(map[string]any{"model": model, "criteria": criteria})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return collectionPrefix(collection) + hex.EncodeToString(sum[:]), nil
}

func collectionPrefix(collection string) string {
	return keyPrefix + collection + ":"
}

func canonicalJSON(value any) ([]byte, error) {
	var b strings.Builder
	if err := encodeCanonical(&b, value); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func encodeCanonical(b *strings.Builder, value any) error {
	switch v := value.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string, float64, float32, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		enc, _ := json.Marshal(v)
		b.Write(enc)
	case json.Number:
		b.WriteString(v.String())
	case time.Time:
		enc, _ := json.Marshal(v.UTC())
		b.Write(enc)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encKey, _ := json.Marshal(k)
			b.Write(encKey)
			b.WriteByte(':')
			if err := encodeCanonical(b, v[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(enc)
	}
	return nil
}
