package query

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/httperr"
)

// Filters holds the resolved meta operators of a query.
type Filters struct {
	// Select is the raw $select: a field list, a "a b -c" string or a
	// projection mapping.
	Select any
	Sort   []docstore.SortField
	Limit  *int64
	Skip   int64
	// Extra holds the output of registered filter handlers.
	Extra map[string]any
}

// Populate returns the resolved $populate directive, if any.
func (f Filters) Populate() any {
	return f.Extra[KeyPopulate]
}

// Fields returns the $select field list when $select was given as a list.
func (f Filters) Fields() ([]string, bool) {
	list, ok := docstore.AsList(f.Select)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, isStr := v.(string); isStr {
			out = append(out, s)
		}
	}
	return out, true
}

// Projection converts $select into a native projection. extra fields are
// added to inclusion projections.
func (f Filters) Projection(extra ...string) docstore.Document {
	switch sel := f.Select.(type) {
	case nil:
		return nil
	case string:
		proj := docstore.Document{}
		for _, field := range strings.Fields(sel) {
			if strings.HasPrefix(field, "-") {
				proj[field[1:]] = 0
			} else {
				proj[strings.TrimPrefix(field, "+")] = 1
			}
		}
		return withExtra(proj, extra)
	case map[string]any:
		return withExtra(docstore.CloneDocument(sel), extra)
	}
	fields, ok := f.Fields()
	if !ok || len(fields) == 0 {
		return nil
	}
	proj := make(docstore.Document, len(fields)+len(extra))
	for _, field := range fields {
		proj[field] = 1
	}
	return withExtra(proj, extra)
}

func withExtra(proj docstore.Document, extra []string) docstore.Document {
	if len(extra) == 0 || len(proj) == 0 {
		return proj
	}
	for k, v := range proj {
		if k == docstore.IDField {
			continue
		}
		if n, ok := docstore.ToFloat(v); ok && n == 0 {
			return proj
		}
		if b, ok := v.(bool); ok && !b {
			return proj
		}
	}
	for _, field := range extra {
		proj[field] = 1
	}
	return proj
}

func checkSelect(v any) (any, error) {
	switch v.(type) {
	case nil, string, map[string]any, []any:
		return v, nil
	}
	return nil, httperr.BadRequest(fmt.Sprintf("Invalid %s value", KeySelect), httperr.WithData(v))
}

// ParseSort normalises a $sort value into an ordered field list. Mapping
// input is ordered by key.
func ParseSort(v any) ([]docstore.SortField, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []docstore.SortField
		for _, field := range strings.Fields(t) {
			if strings.HasPrefix(field, "-") {
				out = append(out, docstore.SortField{Field: field[1:], Desc: true})
			} else {
				out = append(out, docstore.SortField{Field: strings.TrimPrefix(field, "+")})
			}
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]docstore.SortField, 0, len(keys))
		for _, k := range keys {
			desc, err := sortDirection(k, t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, docstore.SortField{Field: k, Desc: desc})
		}
		return out, nil
	case []any:
		var out []docstore.SortField
		for _, item := range t {
			part, err := ParseSort(item)
			if err != nil {
				return nil, err
			}
			out = append(out, part...)
		}
		return out, nil
	}
	return nil, httperr.BadRequest(fmt.Sprintf("Invalid %s value", KeySort), httperr.WithData(v))
}

func sortDirection(field string, v any) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "asc", "ascending":
			return false, nil
		case "desc", "descending":
			return true, nil
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			v = n
		}
	}
	if n, ok := docstore.ToFloat(v); ok {
		switch n {
		case 1:
			return false, nil
		case -1:
			return true, nil
		}
	}
	return false, httperr.BadRequest(fmt.Sprintf("Invalid sort direction for %s", field),
		httperr.WithErrors(map[string]any{field: v}))
}

// parseCount reads a non-negative count. Negative input is taken by
// absolute value.
func parseCount(key string, v any) (int64, error) {
	var f float64
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, httperr.BadRequest(fmt.Sprintf("Invalid %s value", key), httperr.WithData(v))
		}
		f = float64(n)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, httperr.BadRequest(fmt.Sprintf("Invalid %s value", key), httperr.WithData(v))
		}
		f = float64(n)
	default:
		n, ok := docstore.ToFloat(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, httperr.BadRequest(fmt.Sprintf("Invalid %s value", key), httperr.WithData(v))
		}
		f = math.Trunc(n)
	}
	return int64(math.Abs(f)), nil
}
