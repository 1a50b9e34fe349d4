package model

import (
	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/query"
)

// DefaultDiscriminatorKey is the document field carrying the sub-model tag.
const DefaultDiscriminatorKey = "__t"

// Model describes one resource: its collection, schema and service options.
type Model struct {
	Name             string            `yaml:"-"`
	Collection       string            `yaml:"collection"`
	Fields           map[string]*Field `yaml:"fields"`
	Strict           *bool             `yaml:"strict"`
	DiscriminatorKey string            `yaml:"discriminator_key"`
	// Discriminators are sub-models sharing this collection, keyed by tag.
	Discriminators map[string]*Model `yaml:"discriminators"`
	Service        ServiceConfig     `yaml:"service"`

	// runtime
	base     *Model
	registry *Registry
	coll     docstore.Collection
}

// Field is one schema path.
type Field struct {
	Type     string   `yaml:"type"`
	Of       string   `yaml:"of"`
	Required bool     `yaml:"required"`
	Unique   bool     `yaml:"unique"`
	Default  any      `yaml:"default"`
	Enum     []any    `yaml:"enum"`
	Ref      string   `yaml:"ref"`
	Match    string   `yaml:"match"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// ServiceConfig carries the per-resource service options.
type ServiceConfig struct {
	ID             string          `yaml:"id"`
	Whitelist      []string        `yaml:"whitelist"`
	Paginate       *query.Paginate `yaml:"paginate"`
	Lean           *bool           `yaml:"lean"`
	Overwrite      bool            `yaml:"overwrite"`
	EstimatedCount bool            `yaml:"estimated_count"`
	// Route is the plural path segment; defaults to the lower-cased name plus "s".
	Route string `yaml:"route"`
}

// Base returns the model a discriminator belongs to, or nil for base models.
func (m *Model) Base() *Model { return m.base }

// IsStrict reports whether unknown paths are dropped on write.
func (m *Model) IsStrict() bool { return m.Strict == nil || *m.Strict }

// Key returns the discriminator key of the model family.
func (m *Model) Key() string {
	root := m
	if m.base != nil {
		root = m.base
	}
	if root.DiscriminatorKey == "" {
		return DefaultDiscriminatorKey
	}
	return root.DiscriminatorKey
}

// Sub returns the discriminator registered under tag.
func (m *Model) Sub(tag string) (*Model, bool) {
	d, ok := m.Discriminators[tag]
	return d, ok
}

// Bind attaches the model to a collection.
func (m *Model) Bind(c docstore.Collection) { m.coll = c }

func (m *Model) field(path string) *Field {
	if f, ok := m.Fields[path]; ok {
		return f
	}
	return nil
}
