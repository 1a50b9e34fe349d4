// Package query splits a client resource query into meta filters and store
// criteria, checking every operator against an allowlist.
package query

import (
	"fmt"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/httperr"
)

// FilterFunc turns the raw value of a registered filter key into its
// resolved form.
type FilterFunc func(value any) (any, error)

// Passthrough returns the value unchanged.
func Passthrough(value any) (any, error) { return value, nil }

// Paginate is the pagination config. A nil value or a zero Default
// disables pagination.
type Paginate struct {
	Default int64 `yaml:"default" json:"default"`
	Max     int64 `yaml:"max" json:"max"`
}

func (p *Paginate) Enabled() bool { return p != nil && p.Default > 0 }

// Operators always allowed in criteria.
var BaseOperators = []string{"$in", "$nin", "$lt", "$lte", "$gt", "$gte", "$ne", "$or"}

const (
	KeySelect   = "$select"
	KeySort     = "$sort"
	KeyLimit    = "$limit"
	KeySkip     = "$skip"
	KeyPopulate = "$populate"
)

type Options struct {
	// Operators extends BaseOperators.
	Operators []string
	Filters   map[string]FilterFunc
	Paginate  *Paginate
}

// Result is the classified query.
type Result struct {
	Filters  Filters
	Criteria docstore.Document
	Paginate *Paginate
}

// Translate classifies q. It never mutates q.
func Translate(q map[string]any, opts Options) (*Result, error) {
	plain, _ := docstore.PlainDocument(q)
	if plain == nil {
		plain = docstore.Document{}
	}

	allowed := make(map[string]bool, len(BaseOperators)+len(opts.Operators))
	for _, op := range BaseOperators {
		allowed[op] = true
	}
	for _, op := range opts.Operators {
		allowed[op] = true
	}

	res := &Result{Criteria: docstore.Document{}, Paginate: opts.Paginate}
	f := &res.Filters
	for key, val := range plain {
		var err error
		switch key {
		case KeySelect:
			f.Select, err = checkSelect(val)
		case KeySort:
			f.Sort, err = ParseSort(val)
		case KeyLimit:
			var n int64
			if n, err = parseCount(key, val); err == nil {
				f.Limit = &n
			}
		case KeySkip:
			f.Skip, err = parseCount(key, val)
		default:
			fn, isFilter := opts.Filters[key]
			if isFilter && fn != nil {
				var resolved any
				if resolved, err = fn(val); err == nil {
					if f.Extra == nil {
						f.Extra = map[string]any{}
					}
					f.Extra[key] = resolved
				}
				break
			}
			if docstore.IsOperatorKey(key) && !allowed[key] {
				return nil, invalidParam(key, q)
			}
			res.Criteria[key], err = clean(val, allowed, q)
		}
		if err != nil {
			return nil, err
		}
	}
	f.Limit = limitFor(f.Limit, opts.Paginate)
	return res, nil
}

func limitFor(limit *int64, p *Paginate) *int64 {
	if !p.Enabled() {
		return limit
	}
	n := p.Default
	if limit != nil {
		n = *limit
	}
	if p.Max > 0 && n > p.Max {
		n = p.Max
	}
	return &n
}

func clean(v any, allowed map[string]bool, q map[string]any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if docstore.IsOperatorKey(k) && !allowed[k] {
				return nil, invalidParam(k, q)
			}
			cleaned, err := clean(val, allowed, q)
			if err != nil {
				return nil, err
			}
			out[k] = cleaned
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			cleaned, err := clean(val, allowed, q)
			if err != nil {
				return nil, err
			}
			out[i] = cleaned
		}
		return out, nil
	}
	return v, nil
}

func invalidParam(key string, q map[string]any) error {
	return httperr.BadRequest(fmt.Sprintf("Invalid query parameter %s", key), httperr.WithData(q))
}
