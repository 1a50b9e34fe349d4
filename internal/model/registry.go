package model

import (
	"context"
	"fmt"
	"sort"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/logger"
)

// Registry holds every loaded model. It is read-only after Link.
type Registry struct {
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: map[string]*Model{}}
}

// InitRegistry loads and links every model definition in dir.
func InitRegistry(dir string) (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadModelsFromDir(dir); err != nil {
		return nil, fmt.Errorf("load error: %w", err)
	}
	if err := r.Link(); err != nil {
		return nil, fmt.Errorf("link error: %w", err)
	}
	return r, nil
}

// Register adds m. Registering a name twice fails with OverwriteModelError.
func (r *Registry) Register(m *Model) error {
	if m.Name == "" {
		return docstore.NewError(docstore.MissingSchemaError, "model name is required")
	}
	if _, exists := r.models[m.Name]; exists {
		return docstore.NewError(docstore.OverwriteModelError,
			fmt.Sprintf("Cannot overwrite `%s` model once compiled.", m.Name))
	}
	m.registry = r
	r.models[m.Name] = m
	return nil
}

// Get returns the named model or a MissingSchemaError.
func (r *Registry) Get(name string) (*Model, error) {
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	return nil, docstore.NewError(docstore.MissingSchemaError,
		fmt.Sprintf("Schema hasn't been registered for model \"%s\".", name))
}

// Models returns every registered model ordered by name.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Link registers discriminators and checks every ref.
func (r *Registry) Link() error {
	for _, m := range r.Models() {
		if m.base != nil {
			continue
		}
		if m.Collection == "" {
			return fmt.Errorf("model %s: collection is required", m.Name)
		}
		tags := make([]string, 0, len(m.Discriminators))
		for tag := range m.Discriminators {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			d := m.Discriminators[tag]
			if d.Name == "" {
				d.Name = tag
			}
			d.base = m
			d.Collection = m.Collection
			d.Service = m.Service
			if d.Strict == nil {
				d.Strict = m.Strict
			}
			merged := make(map[string]*Field, len(m.Fields)+len(d.Fields))
			for k, f := range m.Fields {
				merged[k] = f
			}
			for k, f := range d.Fields {
				merged[k] = f
			}
			d.Fields = merged
			if err := r.Register(d); err != nil {
				return err
			}
		}
	}
	for _, m := range r.Models() {
		for path, f := range m.Fields {
			if f.Ref == "" {
				continue
			}
			if _, err := r.Get(f.Ref); err != nil {
				return fmt.Errorf("invalid ref: model '%s' not found in '%s.%s': %w", f.Ref, m.Name, path, err)
			}
		}
	}
	return nil
}

// Bind attaches every model to its collection in store and declares unique
// indexes.
func (r *Registry) Bind(ctx context.Context, store docstore.Store) error {
	for _, m := range r.Models() {
		m.Bind(store.Collection(m.Collection))
	}
	for _, m := range r.Models() {
		paths := make([]string, 0)
		for path, f := range m.Fields {
			if f.Unique {
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)
		for _, path := range paths {
			if err := m.coll.EnsureUnique(ctx, path); err != nil {
				return fmt.Errorf("unique index %s.%s: %w", m.Collection, path, err)
			}
			logger.Debug("unique_index_ready", map[string]any{"collection": m.Collection, "field": path})
		}
	}
	return nil
}
