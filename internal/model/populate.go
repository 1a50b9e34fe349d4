package model

import (
	"context"
	"fmt"
	"strings"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/query"
)

// PopulateOption expands one ref path.
type PopulateOption struct {
	Path   string
	Select any
	Match  docstore.Document
	// Model overrides the ref declared on the field.
	Model string
}

// ParsePopulate reads "a b", ["a", {path: "b"}] and {path, select, match}.
func ParsePopulate(spec any) ([]PopulateOption, error) {
	switch t := docstore.Plain(spec).(type) {
	case nil:
		return nil, nil
	case string:
		var out []PopulateOption
		for _, p := range strings.Fields(strings.ReplaceAll(t, ",", " ")) {
			out = append(out, PopulateOption{Path: p})
		}
		return out, nil
	case []any:
		var out []PopulateOption
		for _, item := range t {
			opts, err := ParsePopulate(item)
			if err != nil {
				return nil, err
			}
			out = append(out, opts...)
		}
		return out, nil
	case map[string]any:
		path, _ := t["path"].(string)
		if path == "" {
			return nil, docstore.NewError(docstore.StrictPopulateError, "populate option needs a path", docstore.WithValue(spec))
		}
		opt := PopulateOption{Path: path, Select: t["select"]}
		if match, ok := t["match"].(map[string]any); ok {
			opt.Match = match
		}
		if name, ok := t["model"].(string); ok {
			opt.Model = name
		}
		var out []PopulateOption
		for _, p := range strings.Fields(path) {
			o := opt
			o.Path = p
			out = append(out, o)
		}
		return out, nil
	}
	return nil, docstore.NewError(docstore.StrictPopulateError,
		fmt.Sprintf("invalid populate value of type %T", spec), docstore.WithValue(spec))
}

// Populate replaces ref ids in docs by the referenced documents. Missing
// targets become nil in single refs and are dropped from ref lists.
func (m *Model) Populate(ctx context.Context, docs []docstore.Document, spec any, session docstore.Session) error {
	opts, err := ParsePopulate(spec)
	if err != nil {
		return err
	}
	for _, opt := range opts {
		if err := m.populatePath(ctx, docs, opt, session); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) populatePath(ctx context.Context, docs []docstore.Document, opt PopulateOption, session docstore.Session) error {
	f := m.field(opt.Path)
	ref := opt.Model
	if ref == "" && f != nil {
		ref = f.Ref
	}
	if ref == "" {
		return docstore.NewError(docstore.StrictPopulateError,
			fmt.Sprintf("Cannot populate path `%s` because it is not in your schema. Set the `strictPopulate` option to false to override.", opt.Path),
			docstore.WithPath(opt.Path))
	}
	if m.registry == nil {
		return docstore.NewError(docstore.MissingSchemaError, fmt.Sprintf("Model \"%s\" is not registered.", m.Name))
	}
	target, err := m.registry.Get(ref)
	if err != nil {
		return err
	}

	var ids []any
	seen := map[string]bool{}
	for _, doc := range docs {
		for _, id := range refIDs(doc[opt.Path]) {
			k := idKey(id)
			if !seen[k] {
				seen[k] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	filter := docstore.Document{docstore.IDField: map[string]any{"$in": ids}}
	if len(opt.Match) > 0 {
		filter = docstore.Document{"$and": []any{filter, opt.Match}}
	}
	found, err := target.Find(ctx, filter, docstore.FindOptions{
		Projection: query.Filters{Select: opt.Select}.Projection(),
		Session:    session,
	})
	if err != nil {
		return err
	}
	byID := make(map[string]docstore.Document, len(found))
	for _, doc := range found {
		byID[idKey(doc[docstore.IDField])] = doc
	}

	for _, doc := range docs {
		raw, ok := doc[opt.Path]
		if !ok || raw == nil {
			continue
		}
		if list, isList := docstore.AsList(raw); isList {
			expanded := make([]any, 0, len(list))
			for _, id := range list {
				if hit, ok := byID[idKey(id)]; ok {
					expanded = append(expanded, docstore.CloneDocument(hit))
				}
			}
			doc[opt.Path] = expanded
			continue
		}
		if hit, ok := byID[idKey(raw)]; ok {
			doc[opt.Path] = docstore.CloneDocument(hit)
		} else {
			doc[opt.Path] = nil
		}
	}
	return nil
}

func refIDs(v any) []any {
	if v == nil {
		return nil
	}
	if list, ok := docstore.AsList(v); ok {
		out := make([]any, 0, len(list))
		for _, item := range list {
			if item != nil {
				out = append(out, item)
			}
		}
		return out
	}
	return []any{v}
}

func idKey(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
