package pgstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"DocrestAPI/internal/docstore"

	sq "github.com/Masterminds/squirrel"
)

// compile pushes the part of a criteria document that jsonb can evaluate into
// SQL. The predicate always selects a superset of the matching rows; exact
// reports that it selects precisely them. A nil predicate restricts nothing.
func compile(filter docstore.Document, fold bool) (sq.Sqlizer, bool, error) {
	var (
		parts []sq.Sqlizer
		exact = true
	)
	for _, key := range sortedKeys(filter) {
		pred, ok, err := compileKey(key, filter[key], fold)
		if err != nil {
			return nil, false, err
		}
		exact = exact && ok
		if pred != nil {
			parts = append(parts, pred)
		}
	}
	switch len(parts) {
	case 0:
		return nil, exact, nil
	case 1:
		return parts[0], exact, nil
	}
	return sq.And(parts), exact, nil
}

func compileKey(key string, cond any, fold bool) (sq.Sqlizer, bool, error) {
	switch key {
	case "$and":
		return compileClauses(cond, fold, false)
	case "$or":
		return compileClauses(cond, fold, true)
	}
	if docstore.IsOperatorKey(key) || strings.Contains(key, ".") {
		return nil, false, nil
	}
	ops, isOps := docstore.IsOperatorMap(cond)
	if !isOps {
		return eqTerm(key, cond, fold)
	}

	var (
		parts []sq.Sqlizer
		exact = true
	)
	for _, op := range sortedKeys(ops) {
		arg := ops[op]
		var (
			pred sq.Sqlizer
			ok   bool
			err  error
		)
		switch op {
		case "$eq":
			pred, ok, err = eqTerm(key, arg, fold)
		case "$in":
			pred, ok, err = inTerm(key, arg, fold)
		case "$exists":
			pred, ok = existsTerm(key, arg), true
		case "$gt", "$gte", "$lt", "$lte":
			pred = rangeTerm(key, op, arg)
		}
		if err != nil {
			return nil, false, err
		}
		exact = exact && ok
		if pred != nil {
			parts = append(parts, pred)
		}
	}
	switch len(parts) {
	case 0:
		return nil, false, nil
	case 1:
		return parts[0], exact, nil
	}
	return sq.And(parts), exact, nil
}

// compileClauses handles $and and $or. A disjunction is only pushed down when
// every branch is.
func compileClauses(cond any, fold, or bool) (sq.Sqlizer, bool, error) {
	list, ok := docstore.AsList(cond)
	if !ok {
		return nil, false, nil
	}
	var (
		parts []sq.Sqlizer
		exact = true
	)
	for _, item := range list {
		sub, ok := docstore.PlainDocument(item)
		if !ok {
			return nil, false, nil
		}
		pred, subExact, err := compile(sub, fold)
		if err != nil {
			return nil, false, err
		}
		if pred == nil {
			if or {
				return nil, false, nil
			}
			exact = exact && subExact
			continue
		}
		exact = exact && subExact
		parts = append(parts, pred)
	}
	if len(parts) == 0 {
		if or {
			return sq.Expr("FALSE"), true, nil
		}
		return nil, exact, nil
	}
	if or {
		return sq.Or(parts), exact, nil
	}
	return sq.And(parts), exact, nil
}

// eqTerm matches a scalar either as the field value or as an element of an
// array field.
func eqTerm(field string, v any, fold bool) (sq.Sqlizer, bool, error) {
	switch t := v.(type) {
	case string:
		if fold {
			return nil, false, nil
		}
	case bool, time.Time, json.Number:
	case nil, map[string]any, []any:
		return nil, false, nil
	default:
		if _, ok := docstore.ToFloat(t); !ok {
			return nil, false, nil
		}
	}
	scalar, err := json.Marshal(map[string]any{field: toJSON(v)})
	if err != nil {
		return nil, false, err
	}
	inArray, err := json.Marshal(map[string]any{field: []any{toJSON(v)}})
	if err != nil {
		return nil, false, err
	}
	return sq.Or{
		sq.Expr("doc @> ?::jsonb", string(scalar)),
		sq.Expr("doc @> ?::jsonb", string(inArray)),
	}, true, nil
}

func inTerm(field string, arg any, fold bool) (sq.Sqlizer, bool, error) {
	list, ok := docstore.AsList(arg)
	if !ok {
		return nil, false, nil
	}
	if len(list) == 0 {
		return sq.Expr("FALSE"), true, nil
	}
	parts := make(sq.Or, 0, len(list))
	for _, v := range list {
		pred, _, err := eqTerm(field, v, fold)
		if err != nil || pred == nil {
			return nil, false, err
		}
		parts = append(parts, pred)
	}
	return parts, true, nil
}

func existsTerm(field string, arg any) sq.Sqlizer {
	want := true
	if b, ok := arg.(bool); ok {
		want = b
	} else if f, ok := docstore.ToFloat(arg); ok {
		want = f != 0
	}
	if want {
		return sq.Expr("jsonb_exists(doc, ?::text)", field)
	}
	return sq.Expr("NOT jsonb_exists(doc, ?::text)", field)
}

var rangeOps = map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}

// rangeTerm narrows numeric comparisons. Array fields are kept for the
// in-process matcher.
func rangeTerm(field, op string, arg any) sq.Sqlizer {
	n, ok := docstore.ToFloat(arg)
	if !ok {
		return nil
	}
	return sq.Expr(
		"CASE jsonb_typeof(doc->?::text) WHEN 'number' THEN (doc->>?::text)::numeric "+rangeOps[op]+" ?::numeric WHEN 'array' THEN TRUE ELSE FALSE END",
		field, field, n,
	)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
