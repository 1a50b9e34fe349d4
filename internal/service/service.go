// Package service runs find, get, create, update, patch and remove against a
// polymorphic model and reports failures through the httperr catalog.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"DocrestAPI/internal/countcache"
	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/httperr"
	"DocrestAPI/internal/logger"
	"DocrestAPI/internal/model"
	"DocrestAPI/internal/query"
)

// DefaultWhitelist is the operator allowlist used when none is configured.
var DefaultWhitelist = []string{"$regex", "$and"}

// Options configures a Service. Zero values take the documented defaults.
type Options struct {
	// ID is the identity field, "_id" by default.
	ID string
	// Whitelist replaces DefaultWhitelist when non-nil.
	Whitelist []string
	// Filters replaces the default filter set ($populate passthrough) when
	// non-nil.
	Filters  map[string]query.FilterFunc
	Paginate *query.Paginate
	// Lean returns plain documents. Defaults to true.
	Lean                      *bool
	Overwrite                 bool
	UseEstimatedDocumentCount bool
	// Discriminators are the sub-models selectable through the model's
	// discriminator key. Nil registers every sub-model of the model.
	Discriminators []*model.Model
	CountCache     countcache.Cache
}

// Service is safe for concurrent use.
type Service struct {
	model          *model.Model
	opts           Options
	lean           bool
	discriminators map[string]*model.Model
}

func New(m *model.Model, opts Options) (*Service, error) {
	if m == nil {
		return nil, fmt.Errorf("service: model is required")
	}
	if opts.ID == "" {
		opts.ID = docstore.IDField
	}
	if opts.Whitelist == nil {
		opts.Whitelist = DefaultWhitelist
	}
	if opts.Filters == nil {
		opts.Filters = map[string]query.FilterFunc{query.KeyPopulate: query.Passthrough}
	}
	s := &Service{
		model:          m,
		opts:           opts,
		lean:           opts.Lean == nil || *opts.Lean,
		discriminators: map[string]*model.Model{},
	}
	subs := opts.Discriminators
	if subs == nil {
		for _, d := range m.Discriminators {
			subs = append(subs, d)
		}
	}
	for _, d := range subs {
		if d != nil && d.Name != "" {
			s.discriminators[d.Name] = d
		}
	}
	return s, nil
}

// FromModel builds a service from the options carried by a model definition.
func FromModel(m *model.Model, cache countcache.Cache) (*Service, error) {
	cfg := m.Service
	return New(m, Options{
		ID:                        cfg.ID,
		Whitelist:                 cfg.Whitelist,
		Paginate:                  cfg.Paginate,
		Lean:                      cfg.Lean,
		Overwrite:                 cfg.Overwrite,
		UseEstimatedDocumentCount: cfg.EstimatedCount,
		CountCache:                cache,
	})
}

func (s *Service) Model() *model.Model { return s.model }

// IDField returns the identity field.
func (s *Service) IDField() string { return s.opts.ID }

// ID is the identity argument of an operation. The zero value is absent:
// a single record chosen by the query alone.
type ID struct {
	value any
	set   bool
	multi bool
}

// Multi selects the whole matching set.
var Multi = ID{multi: true}

// IDOf wraps a concrete identity.
func IDOf(v any) ID { return ID{value: v, set: true} }

func (id ID) IsMulti() bool { return id.multi }

// IsSet reports whether a concrete identity was given.
func (id ID) IsSet() bool { return id.set }

func (id ID) Value() any { return id.value }

func (id ID) String() string {
	switch {
	case id.multi:
		return "null"
	case !id.set:
		return "undefined"
	}
	return fmt.Sprint(id.value)
}

// Params is the inbound call contract of every operation.
type Params struct {
	ID    ID
	Query map[string]any
	Body  any
	// Paginate overrides the service config. A non-nil value with a zero
	// Default disables pagination.
	Paginate  *query.Paginate
	Collation docstore.Document
	Session   docstore.Session
	Upsert    bool
}

// Page is the paginated find envelope.
type Page struct {
	Total int64               `json:"total"`
	Limit *int64              `json:"limit"`
	Skip  int64               `json:"skip"`
	Data  []docstore.Document `json:"data"`
}

// Result carries exactly one of a page, a record list or a single record.
type Result struct {
	Page *Page
	Many []docstore.Document
	One  docstore.Document
}

func (r *Result) Value() any {
	switch {
	case r == nil:
		return nil
	case r.Page != nil:
		return r.Page
	case r.Many != nil:
		return r.Many
	}
	return r.One
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

func one(doc docstore.Document) *Result { return &Result{One: doc} }

func many(docs []docstore.Document) *Result {
	if docs == nil {
		docs = []docstore.Document{}
	}
	return &Result{Many: docs}
}

// resolveModel picks the discriminator named by the criteria, or the base
// model.
func (s *Service) resolveModel(criteria map[string]any) *model.Model {
	if tag, ok := criteria[s.model.Key()].(string); ok {
		if d, found := s.discriminators[tag]; found {
			return d
		}
	}
	return s.model
}

func (s *Service) filterQuery(p Params) (*query.Result, error) {
	paginate := s.opts.Paginate
	if p.Paginate != nil {
		paginate = p.Paginate
	}
	return query.Translate(p.Query, query.Options{
		Operators: s.opts.Whitelist,
		Filters:   s.opts.Filters,
		Paginate:  paginate,
	})
}

// withIdentity appends the identity constraint to $and. A caller $and that
// is not a list is rejected rather than replaced.
func (s *Service) withIdentity(criteria docstore.Document, id ID) error {
	if !id.IsSet() {
		return nil
	}
	var and []any
	if raw, present := criteria["$and"]; present && raw != nil {
		existing, ok := docstore.AsList(raw)
		if !ok {
			return httperr.BadRequest("$and must be an array", httperr.WithData(map[string]any{"$and": raw}))
		}
		and = append(and, existing...)
	}
	criteria["$and"] = append(and, map[string]any{s.opts.ID: id.Value()})
	return nil
}

// shape converts store documents into the service's output form.
func (s *Service) shape(m *model.Model, docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		if s.lean {
			plain, _ := docstore.PlainDocument(doc)
			out[i] = plain
		} else {
			out[i] = m.Hydrate(doc)
		}
	}
	return out
}

// selectFields pares documents to a list-form $select plus the identity
// field.
func (s *Service) selectFields(q map[string]any) func(docstore.Document) docstore.Document {
	fields, ok := query.Filters{Select: q[query.KeySelect]}.Fields()
	if !ok {
		return func(doc docstore.Document) docstore.Document { return doc }
	}
	fields = append(fields, s.opts.ID)
	return func(doc docstore.Document) docstore.Document {
		return docstore.Pick(doc, fields...)
	}
}

func (s *Service) selectResult(q map[string]any, r *Result) *Result {
	pick := s.selectFields(q)
	switch {
	case r.Page != nil:
		for i, doc := range r.Page.Data {
			r.Page.Data[i] = pick(doc)
		}
	case r.Many != nil:
		for i, doc := range r.Many {
			r.Many[i] = pick(doc)
		}
	case r.One != nil:
		r.One = pick(r.One)
	}
	return r
}

// normalizeBody unwraps live values and copies the body into a plain
// document.
func normalizeBody(body any) (docstore.Document, error) {
	doc, ok := docstore.PlainDocument(body)
	if !ok || doc == nil {
		return nil, httperr.BadRequest(fmt.Sprintf("Invalid record of type %T", body))
	}
	return doc, nil
}

func (s *Service) invalidateCount(ctx context.Context, m *model.Model) {
	if !s.opts.UseEstimatedDocumentCount || s.opts.CountCache == nil {
		return
	}
	if err := s.opts.CountCache.Invalidate(ctx, m.CollectionName()); err != nil {
		logger.Warn("count_cache_invalidate_failed", map[string]any{
			"collection": m.CollectionName(),
			"error":      err.Error(),
		})
	}
}
