package docstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Matcher evaluates MongoDB-style criteria against in-memory documents.
type Matcher struct {
	fold bool
}

// NewMatcher returns a matcher honouring a collation. Strength 1 and 2
// compare strings case-insensitively.
func NewMatcher(collation Document) Matcher {
	return Matcher{fold: CaseInsensitive(collation)}
}

// CaseInsensitive reports whether a collation ignores case.
func CaseInsensitive(collation Document) bool {
	if collation == nil {
		return false
	}
	s, ok := ToFloat(collation["strength"])
	return ok && s > 0 && s <= 2
}

// Match evaluates filter against doc with binary string comparison.
func Match(doc, filter Document) (bool, error) {
	return Matcher{}.Match(doc, filter)
}

func (m Matcher) Match(doc, filter Document) (bool, error) {
	for key, cond := range filter {
		ok, err := m.matchKey(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m Matcher) matchKey(doc Document, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		clauses, err := clauseList(key, cond)
		if err != nil {
			return false, err
		}
		for _, clause := range clauses {
			ok, err := m.Match(doc, clause)
			if err != nil {
				return false, err
			}
			switch {
			case key == "$and" && !ok:
				return false, nil
			case key == "$or" && ok:
				return true, nil
			case key == "$nor" && ok:
				return false, nil
			}
		}
		return key != "$or", nil
	}
	if IsOperatorKey(key) {
		return false, NewError(CastError, "unknown top level operator: "+key, WithPath(key))
	}

	values := candidates(doc, strings.Split(key, "."))
	if ops, ok := IsOperatorMap(cond); ok {
		return m.matchOps(values, key, ops)
	}
	return m.anyEqual(values, cond), nil
}

func clauseList(op string, cond any) ([]Document, error) {
	list, ok := AsList(cond)
	if !ok || len(list) == 0 {
		return nil, NewError(CastError, op+" must be a nonempty array", WithPath(op), WithValue(cond))
	}
	out := make([]Document, 0, len(list))
	for _, item := range list {
		clause, ok := PlainDocument(item)
		if !ok {
			return nil, NewError(CastError, op+" entries must be objects", WithPath(op), WithValue(item))
		}
		out = append(out, clause)
	}
	return out, nil
}

func (m Matcher) matchOps(values []any, path string, ops map[string]any) (bool, error) {
	for op, arg := range ops {
		var (
			ok  bool
			err error
		)
		switch op {
		case "$eq":
			ok = m.anyEqual(values, arg)
		case "$ne":
			ok = !m.anyEqual(values, arg)
		case "$in", "$nin":
			list, isList := AsList(arg)
			if !isList {
				return false, NewError(CastError, op+" needs an array", WithPath(path), WithValue(arg))
			}
			for _, want := range list {
				if m.anyEqual(values, want) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$lt", "$lte", "$gt", "$gte":
			ok = m.anyCompare(values, op, arg)
		case "$exists":
			ok = (len(values) > 0) == truthy(arg)
		case "$regex":
			ok, err = m.matchRegex(values, path, arg, ops["$options"])
		case "$options":
			if _, has := ops["$regex"]; !has {
				return false, NewError(CastError, "$options needs a $regex", WithPath(path))
			}
			ok = true
		case "$not":
			sub, isOps := IsOperatorMap(arg)
			if !isOps {
				return false, NewError(CastError, "$not needs an operator object", WithPath(path), WithValue(arg))
			}
			ok, err = m.matchOps(values, path, sub)
			ok = !ok
		default:
			return false, NewError(CastError, "unknown operator: "+op, WithPath(path))
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// candidates collects every value reachable through path, expanding arrays
// the way MongoDB does for dotted paths. A trailing array contributes both
// itself and its elements.
func candidates(v any, parts []string) []any {
	if len(parts) == 0 {
		if arr, ok := v.([]any); ok {
			return append([]any{arr}, arr...)
		}
		return []any{v}
	}
	switch t := v.(type) {
	case map[string]any:
		child, ok := t[parts[0]]
		if !ok {
			return nil
		}
		return candidates(child, parts[1:])
	case []any:
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			if idx < 0 || idx >= len(t) {
				return nil
			}
			return candidates(t[idx], parts[1:])
		}
		var out []any
		for _, el := range t {
			if _, isDoc := el.(map[string]any); isDoc {
				out = append(out, candidates(el, parts)...)
			}
		}
		return out
	}
	return nil
}

func (m Matcher) anyEqual(values []any, want any) bool {
	want = Plain(want)
	if want == nil && len(values) == 0 {
		return true
	}
	for _, v := range values {
		if Equal(m.foldValue(v), m.foldValue(want)) {
			return true
		}
	}
	return false
}

func (m Matcher) anyCompare(values []any, op string, arg any) bool {
	arg = m.foldValue(arg)
	for _, v := range values {
		if _, isArr := v.([]any); isArr {
			continue
		}
		v = m.foldValue(v)
		if typeRank(v) != typeRank(arg) {
			continue
		}
		c := Compare(v, arg)
		switch op {
		case "$lt":
			if c < 0 {
				return true
			}
		case "$lte":
			if c <= 0 {
				return true
			}
		case "$gt":
			if c > 0 {
				return true
			}
		case "$gte":
			if c >= 0 {
				return true
			}
		}
	}
	return false
}

func (m Matcher) matchRegex(values []any, path string, pattern, options any) (bool, error) {
	re, err := CompileRegex(pattern, options)
	if err != nil {
		return false, NewError(CastError, err.Error(), WithPath(path), WithValue(pattern), WithCause(err))
	}
	for _, v := range values {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

// CompileRegex compiles a $regex pattern with its $options flags. Flags
// without an RE2 equivalent are ignored.
func CompileRegex(pattern, options any) (*regexp.Regexp, error) {
	if re, ok := pattern.(*regexp.Regexp); ok {
		return re, nil
	}
	src, ok := pattern.(string)
	if !ok {
		return nil, fmt.Errorf("$regex has to be a string")
	}
	flags := RegexFlags(options)
	if flags != "" {
		src = "(?" + flags + ")" + src
	}
	return regexp.Compile(src)
}

// RegexFlags keeps the $options letters RE2 understands.
func RegexFlags(options any) string {
	opts, _ := options.(string)
	var b strings.Builder
	for _, r := range opts {
		switch r {
		case 'i', 'm', 's':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (m Matcher) foldValue(v any) any {
	if !m.fold {
		return v
	}
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return v
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	return true
}
