package service

import (
	"context"
	"fmt"
	"strings"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/httperr"
	"DocrestAPI/internal/model"
	"DocrestAPI/internal/query"
)

// Create inserts one record or a list of records. The result mirrors the
// multiplicity of the body.
func (s *Service) Create(ctx context.Context, p Params) (*Result, error) {
	res, err := s.create(ctx, p)
	if err != nil {
		return nil, s.fail("create", err)
	}
	return res, nil
}

// Update replaces the record identified by p.ID.
func (s *Service) Update(ctx context.Context, p Params) (docstore.Document, error) {
	doc, err := s.update(ctx, p)
	if err != nil {
		return nil, s.fail("update", err)
	}
	return doc, nil
}

// Patch partially updates one record, or every match when p.ID is Multi,
// and returns the records as they are after the write.
func (s *Service) Patch(ctx context.Context, p Params) (*Result, error) {
	res, err := s.patch(ctx, p)
	if err != nil {
		return nil, s.fail("patch", err)
	}
	return res, nil
}

// Remove deletes one record, or every match when p.ID is Multi, and returns
// what was deleted.
func (s *Service) Remove(ctx context.Context, p Params) (*Result, error) {
	res, err := s.remove(ctx, p)
	if err != nil {
		return nil, s.fail("remove", err)
	}
	return res, nil
}

func (s *Service) create(ctx context.Context, p Params) (*Result, error) {
	m := s.resolveModel(p.Query)
	list, isMulti := docstore.AsList(docstore.Plain(p.Body))
	if !isMulti {
		list = []any{p.Body}
	}
	docs := make([]docstore.Document, len(list))
	for i, item := range list {
		doc, err := normalizeBody(item)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}

	created, err := m.Create(ctx, docs, docstore.InsertOptions{Session: p.Session})
	if err != nil {
		return nil, err
	}
	if pop, ok := p.Query[query.KeyPopulate]; ok && pop != nil {
		if err := m.Populate(ctx, created, pop, p.Session); err != nil {
			return nil, err
		}
	}
	created = s.shape(m, created)
	s.invalidateCount(ctx, m)

	res := many(created)
	if !isMulti {
		res = one(created[0])
	}
	return s.selectResult(p.Query, res), nil
}

func (s *Service) update(ctx context.Context, p Params) (docstore.Document, error) {
	if p.ID.IsMulti() {
		return nil, httperr.BadRequest("Not replacing multiple records. Did you mean `patch`?")
	}
	data, err := normalizeBody(p.Body)
	if err != nil {
		return nil, err
	}
	res, err := s.filterQuery(p)
	if err != nil {
		return nil, err
	}
	if err := s.withIdentity(res.Criteria, p.ID); err != nil {
		return nil, err
	}
	s.pinIdentity(data, p.ID)

	m := s.resolveModel(res.Criteria)
	doc, err := m.FindOneAndUpdate(ctx, res.Criteria, data, docstore.ReplaceOptions{
		ReturnNew:           true,
		Overwrite:           s.opts.Overwrite,
		Upsert:              p.Upsert,
		RunValidators:       true,
		SetDefaultsOnInsert: true,
		Session:             p.Session,
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, httperr.NotFound(fmt.Sprintf("No record found for id '%s'", p.ID))
	}
	if pop := res.Filters.Populate(); pop != nil {
		if err := m.Populate(ctx, []docstore.Document{doc}, pop, p.Session); err != nil {
			return nil, err
		}
	}
	if p.Upsert {
		s.invalidateCount(ctx, m)
	}
	doc = s.shape(m, []docstore.Document{doc})[0]
	return s.selectFields(p.Query)(doc), nil
}

// pinIdentity keeps writes from changing a record's identity. The identity
// path is stripped from the body and from every operator document; an
// alternate id is then forced to the path id.
func (s *Service) pinIdentity(data docstore.Document, id ID) {
	for k, v := range data {
		if !docstore.IsOperatorKey(k) {
			continue
		}
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for p := range fields {
			if p == s.opts.ID || strings.HasPrefix(p, s.opts.ID+".") {
				delete(fields, p)
			}
		}
		if len(fields) == 0 {
			delete(data, k)
		}
	}
	for p := range data {
		if p == s.opts.ID || strings.HasPrefix(p, s.opts.ID+".") {
			delete(data, p)
		}
	}
	if s.opts.ID != docstore.IDField && id.IsSet() {
		data[s.opts.ID] = id.Value()
	}
}

// patchRun carries the state shared by the patch stages.
type patchRun struct {
	p      Params
	ids    []any
	model  *model.Model
	write  docstore.UpdateResult
	result *Result
}

type patchStage func(context.Context, *patchRun) error

// patch runs pre-image, mutation and post-image strictly in order. The first
// failing stage ends the run.
func (s *Service) patch(ctx context.Context, p Params) (*Result, error) {
	run := &patchRun{p: p}
	for _, stage := range []patchStage{s.patchPreImage, s.patchMutate, s.patchPostImage} {
		if err := stage(ctx, run); err != nil {
			return nil, err
		}
	}
	return s.selectResult(p.Query, run.result), nil
}

// patchPreImage captures the identities the write is going to touch.
func (s *Service) patchPreImage(ctx context.Context, run *patchRun) error {
	pre := run.p
	pre.Query = withoutKeys(run.p.Query, query.KeySelect, query.KeyPopulate)
	pre.Query[query.KeySelect] = []any{s.opts.ID}
	found, err := s.getOrFind(ctx, pre)
	if err != nil {
		return err
	}
	run.ids = s.identities(found)
	return nil
}

func (s *Service) patchMutate(ctx context.Context, run *patchRun) error {
	data, err := normalizeBody(run.p.Body)
	if err != nil {
		return err
	}
	res, err := s.filterQuery(run.p)
	if err != nil {
		return err
	}
	if !run.p.ID.IsMulti() {
		if err := s.withIdentity(res.Criteria, run.p.ID); err != nil {
			return err
		}
	}
	s.pinIdentity(data, run.p.ID)

	run.model = s.resolveModel(res.Criteria)
	run.write, err = run.model.UpdateMany(ctx, res.Criteria, data, docstore.UpdateOptions{
		Multi:         run.p.ID.IsMulti(),
		Upsert:        run.p.Upsert,
		RunValidators: true,
		Session:       run.p.Session,
	})
	return err
}

// patchPostImage re-reads the touched records. Records deleted since the
// pre-image drop out.
func (s *Service) patchPostImage(ctx context.Context, run *patchRun) error {
	post := run.p
	if len(run.write.UpsertedIDs) > 0 {
		post.Query = map[string]any{docstore.IDField: map[string]any{"$in": run.write.UpsertedIDs}}
		s.invalidateCount(ctx, run.model)
	} else {
		post.Query = map[string]any{s.opts.ID: map[string]any{"$in": run.ids}}
	}
	if pop, ok := run.p.Query[query.KeyPopulate]; ok {
		post.Query[query.KeyPopulate] = pop
	}
	if tag, ok := run.p.Query[s.model.Key()]; ok {
		post.Query[s.model.Key()] = tag
	}
	res, err := s.getOrFind(ctx, post)
	if err != nil {
		return err
	}
	run.result = res
	return nil
}

func (s *Service) remove(ctx context.Context, p Params) (*Result, error) {
	res, err := s.filterQuery(p)
	if err != nil {
		return nil, err
	}

	pre := p
	pre.Query = withoutKeys(p.Query, query.KeySelect)
	found, err := s.getOrFind(ctx, pre)
	if err != nil {
		return nil, err
	}

	if !p.ID.IsMulti() {
		if err := s.withIdentity(res.Criteria, p.ID); err != nil {
			return nil, err
		}
	}
	m := s.resolveModel(res.Criteria)
	opts := docstore.DeleteOptions{Collation: p.Collation, Session: p.Session}
	if p.ID.IsMulti() {
		_, err = m.DeleteMany(ctx, res.Criteria, opts)
	} else {
		_, err = m.DeleteOne(ctx, res.Criteria, opts)
	}
	if err != nil {
		return nil, err
	}
	s.invalidateCount(ctx, m)
	return s.selectResult(p.Query, found), nil
}

func (s *Service) identities(r *Result) []any {
	var docs []docstore.Document
	switch {
	case r.Page != nil:
		docs = r.Page.Data
	case r.Many != nil:
		docs = r.Many
	case r.One != nil:
		docs = []docstore.Document{r.One}
	}
	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		if id, ok := doc[s.opts.ID]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// withoutKeys copies q minus the given top-level keys.
func withoutKeys(q map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(q))
	for k, v := range q {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
