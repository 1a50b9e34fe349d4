package docstore

import "sort"

// ApplyUpdate returns a copy of doc with update applied. Plain top-level
// fields are treated as $set. The native id is never changed.
func ApplyUpdate(doc, update Document) (Document, error) {
	out := CloneDocument(doc)
	if out == nil {
		out = Document{}
	}
	id, hasID := out[IDField]

	for _, key := range sortedKeys(update) {
		arg := update[key]
		if !IsOperatorKey(key) {
			if key != IDField {
				SetPath(out, key, Clone(Plain(arg)))
			}
			continue
		}
		fields, ok := PlainDocument(arg)
		if !ok {
			return nil, NewError(CastError, "Modifiers operate on fields but we found another type instead", WithPath(key), WithValue(arg))
		}
		for _, path := range sortedKeys(fields) {
			if path == IDField {
				continue
			}
			val := fields[path]
			switch key {
			case "$set":
				SetPath(out, path, Clone(val))
			case "$unset":
				UnsetPath(out, path)
			case "$inc":
				delta, isNum := ToFloat(val)
				if !isNum {
					return nil, NewError(CastError, "Cannot increment with non-numeric argument", WithPath(path), WithValue(val))
				}
				cur, exists := Lookup(out, path)
				if !exists || cur == nil {
					SetPath(out, path, val)
					continue
				}
				base, curNum := ToFloat(cur)
				if !curNum {
					return nil, NewError(CastError, "Cannot apply $inc to a value of non-numeric type", WithPath(path), WithValue(cur))
				}
				SetPath(out, path, incResult(cur, val, base+delta))
			default:
				return nil, NewError(CastError, "Unknown modifier: "+key, WithPath(key))
			}
		}
	}
	if hasID {
		out[IDField] = id
	}
	return out, nil
}

// incResult keeps integer fields integral when both operands are integers.
func incResult(cur, delta any, sum float64) any {
	if isInt(cur) && isInt(delta) {
		return int64(sum)
	}
	return sum
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int64, int32, int16, int8, uint, uint64, uint32:
		return true
	case float64:
		f := v.(float64)
		return f == float64(int64(f))
	}
	return false
}

// Replace builds the replacement of doc by repl, keeping doc's native id.
func Replace(doc, repl Document) Document {
	out := CloneDocument(repl)
	if out == nil {
		out = Document{}
	}
	delete(out, IDField)
	if id, ok := doc[IDField]; ok {
		out[IDField] = id
	}
	return out
}

// HasOperators reports whether any top-level key of update is an operator.
func HasOperators(update Document) bool {
	for k := range update {
		if IsOperatorKey(k) {
			return true
		}
	}
	return false
}

// UpsertSeed builds the document inserted by an upsert: the equality
// conditions of filter with update applied on top.
func UpsertSeed(filter, update Document, overwrite bool) (Document, error) {
	seed := Document{}
	collectEqualities(seed, filter)
	if overwrite {
		out := CloneDocument(update)
		if out == nil {
			out = Document{}
		}
		if id, ok := seed[IDField]; ok {
			out[IDField] = id
		}
		return out, nil
	}
	return ApplyUpdate(seed, update)
}

func collectEqualities(seed, filter Document) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := filter[k]
		if k == "$and" {
			if list, ok := AsList(v); ok {
				for _, item := range list {
					if sub, ok := PlainDocument(item); ok {
						collectEqualities(seed, sub)
					}
				}
			}
			continue
		}
		if IsOperatorKey(k) {
			continue
		}
		if ops, ok := IsOperatorMap(v); ok {
			if eq, has := ops["$eq"]; has {
				SetPath(seed, k, Clone(eq))
			}
			continue
		}
		SetPath(seed, k, Clone(v))
	}
}
