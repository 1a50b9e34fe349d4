package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"DocrestAPI/internal/docstore"
)

// prepare casts and validates a document about to be inserted or replaced.
func (m *Model) prepare(doc docstore.Document, withDefaults bool) (docstore.Document, error) {
	out := make(docstore.Document, len(doc))
	failures := map[string]*docstore.Error{}
	key := m.Key()

	for k, v := range doc {
		if k == docstore.IDField || k == key {
			out[k] = v
			continue
		}
		f := m.field(k)
		if f == nil {
			if !m.IsStrict() {
				out[k] = docstore.Plain(v)
			}
			continue
		}
		cv, err := m.castValue(k, f, v)
		if err != nil {
			failures[k] = asStoreError(err)
			continue
		}
		out[k] = cv
	}
	if withDefaults {
		for name, f := range m.Fields {
			if _, present := out[name]; present || f.Default == nil {
				continue
			}
			if _, failed := failures[name]; failed {
				continue
			}
			cv, err := m.castValue(name, f, f.Default)
			if err != nil {
				failures[name] = asStoreError(err)
				continue
			}
			out[name] = docstore.Clone(cv)
		}
	}
	for _, name := range m.fieldNames() {
		if _, failed := failures[name]; failed {
			continue
		}
		v, present := out[name]
		if err := m.validateField(name, m.Fields[name], v, present); err != nil {
			failures[name] = err
		}
	}
	if m.base != nil {
		out[key] = m.Name
	}
	if len(failures) > 0 {
		return nil, docstore.Validation(m.Name, failures)
	}
	return out, nil
}

// castUpdate casts an update document. Plain top-level fields are folded
// into $set.
func (m *Model) castUpdate(update docstore.Document, runValidators bool) (docstore.Document, error) {
	set := docstore.Document{}
	out := docstore.Document{}
	for k, v := range update {
		if docstore.IsOperatorKey(k) {
			fields, ok := docstore.PlainDocument(v)
			if !ok {
				return nil, docstore.NewError(docstore.CastError, "Modifiers operate on fields", docstore.WithPath(k), docstore.WithValue(v))
			}
			if k == "$set" {
				for p, val := range fields {
					set[p] = val
				}
				continue
			}
			out[k] = fields
			continue
		}
		set[k] = v
	}

	failures := map[string]*docstore.Error{}
	key := m.Key()
	if len(set) > 0 {
		cast := docstore.Document{}
		for p, v := range set {
			if p == docstore.IDField || p == key {
				continue
			}
			top := strings.SplitN(p, ".", 2)[0]
			f := m.field(top)
			if f == nil {
				if !m.IsStrict() {
					cast[p] = docstore.Plain(v)
				}
				continue
			}
			if top != p {
				cast[p] = docstore.Plain(v)
				continue
			}
			cv, err := m.castValue(p, f, v)
			if err != nil {
				failures[p] = asStoreError(err)
				continue
			}
			if runValidators {
				if err := m.validateField(p, f, cv, true); err != nil {
					failures[p] = err
					continue
				}
			}
			cast[p] = cv
		}
		if len(cast) > 0 {
			out["$set"] = cast
		}
	}
	if unset, ok := out["$unset"].(map[string]any); ok {
		delete(unset, key)
		delete(unset, docstore.IDField)
		if runValidators {
			for p := range unset {
				if f := m.field(p); f != nil && f.Required {
					failures[p] = requiredError(p)
				}
			}
		}
	}
	if inc, ok := out["$inc"].(map[string]any); ok {
		for p, v := range inc {
			n, err := m.castScalar(p, TypeNumber, v)
			if err != nil {
				failures[p] = asStoreError(err)
				continue
			}
			inc[p] = n
		}
	}
	if len(failures) > 0 {
		return nil, docstore.Validation(m.Name, failures)
	}
	return out, nil
}

func (m *Model) validateField(path string, f *Field, v any, present bool) *docstore.Error {
	if f.Required && (!present || v == nil || v == "") {
		return requiredError(path)
	}
	if !present || v == nil {
		return nil
	}
	if len(f.Enum) > 0 {
		found := false
		for _, allowed := range f.Enum {
			cv, err := m.castScalar(path, f.Type, allowed)
			if err == nil && docstore.Equal(cv, v) {
				found = true
				break
			}
		}
		if !found {
			return validatorError(path, v, fmt.Sprintf("`%v` is not a valid enum value for path `%s`.", v, path))
		}
	}
	if f.Match != "" {
		if s, ok := v.(string); ok {
			re, err := regexp.Compile(f.Match)
			if err != nil || !re.MatchString(s) {
				return validatorError(path, v, fmt.Sprintf("Path `%s` is invalid (%s).", path, s))
			}
		}
	}
	if n, ok := docstore.ToFloat(v); ok {
		if f.Min != nil && n < *f.Min {
			return validatorError(path, v, fmt.Sprintf("Path `%s` (%v) is less than minimum allowed value (%v).", path, v, *f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return validatorError(path, v, fmt.Sprintf("Path `%s` (%v) is more than maximum allowed value (%v).", path, v, *f.Max))
		}
	}
	return nil
}

func requiredError(path string) *docstore.Error {
	return validatorError(path, nil, fmt.Sprintf("Path `%s` is required.", path))
}

func validatorError(path string, v any, msg string) *docstore.Error {
	return docstore.NewError(docstore.ValidatorError, msg, docstore.WithPath(path), docstore.WithValue(v))
}

func asStoreError(err error) *docstore.Error {
	if de, ok := err.(*docstore.Error); ok {
		return de
	}
	return docstore.NewError(docstore.CastError, err.Error(), docstore.WithCause(err))
}

func (m *Model) fieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hydrate casts stored values back to their schema types and adds the
// string id virtual.
func (m *Model) Hydrate(doc docstore.Document) docstore.Document {
	if doc == nil {
		return nil
	}
	out := docstore.CloneDocument(doc)
	for name, f := range m.Fields {
		v, ok := out[name]
		if !ok {
			continue
		}
		if cv, err := m.castValue(name, f, v); err == nil {
			out[name] = cv
		}
	}
	if id, ok := out[docstore.IDField]; ok {
		if _, taken := out["id"]; !taken {
			out["id"] = fmt.Sprint(id)
		}
	}
	return out
}
