package service

import (
	"context"
	"fmt"
	"time"

	"DocrestAPI/internal/countcache"
	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/httperr"
	"DocrestAPI/internal/logger"
	"DocrestAPI/internal/model"
	"DocrestAPI/internal/query"

	"golang.org/x/sync/errgroup"
)

// Find returns a Page when pagination is enabled and a record list
// otherwise.
func (s *Service) Find(ctx context.Context, p Params) (*Result, error) {
	res, err := s.find(ctx, p)
	if err != nil {
		return nil, s.fail("find", err)
	}
	return res, nil
}

// Get returns the single record matching the query and identity.
func (s *Service) Get(ctx context.Context, p Params) (docstore.Document, error) {
	doc, err := s.get(ctx, p)
	if err != nil {
		return nil, s.fail("get", err)
	}
	return doc, nil
}

func (s *Service) find(ctx context.Context, p Params) (*Result, error) {
	started := time.Now()
	res, err := s.filterQuery(p)
	if err != nil {
		return nil, err
	}
	f := res.Filters
	m := s.resolveModel(res.Criteria)
	opts := docstore.FindOptions{
		Projection: f.Projection(),
		Sort:       f.Sort,
		Collation:  p.Collation,
		Limit:      f.Limit,
		Skip:       f.Skip,
		Session:    p.Session,
	}
	countOnly := f.Limit != nil && *f.Limit == 0

	fetch := func(ctx context.Context) ([]docstore.Document, error) {
		if countOnly {
			return []docstore.Document{}, nil
		}
		docs, err := m.Find(ctx, res.Criteria, opts)
		if err != nil {
			return nil, err
		}
		if pop := f.Populate(); pop != nil {
			if err := m.Populate(ctx, docs, pop, p.Session); err != nil {
				return nil, err
			}
		}
		return s.shape(m, docs), nil
	}

	if !res.Paginate.Enabled() {
		docs, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return many(docs), nil
	}

	var (
		total int64
		data  []docstore.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.count(gctx, m, res.Criteria, p)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = fetch(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debug("service_find", map[string]any{
		"model":       m.Name,
		"total":       total,
		"returned":    len(data),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return &Result{Page: &Page{Total: total, Limit: f.Limit, Skip: f.Skip, Data: data}}, nil
}

// count returns the exact total, or the cached estimate when the service
// uses estimated counts.
func (s *Service) count(ctx context.Context, m *model.Model, criteria docstore.Document, p Params) (int64, error) {
	opts := docstore.CountOptions{Collation: p.Collation, Session: p.Session}
	if !s.opts.UseEstimatedDocumentCount {
		return m.Count(ctx, criteria, opts)
	}

	var key string
	if s.opts.CountCache != nil {
		k, err := countcache.Key(m.CollectionName(), m.Name, criteria)
		if err == nil {
			key = k
			if total, ok := s.opts.CountCache.Get(ctx, key); ok {
				return total, nil
			}
		}
	}
	var (
		total int64
		err   error
	)
	if len(criteria) == 0 {
		total, err = m.EstimatedCount(ctx, opts)
	} else {
		total, err = m.Count(ctx, criteria, opts)
	}
	if err != nil {
		return 0, err
	}
	if key != "" {
		s.opts.CountCache.Set(ctx, key, total)
	}
	return total, nil
}

func (s *Service) get(ctx context.Context, p Params) (docstore.Document, error) {
	if p.ID.IsMulti() {
		return nil, httperr.BadRequest("Cannot get multiple records. Did you mean `find`?")
	}
	res, err := s.filterQuery(p)
	if err != nil {
		return nil, err
	}
	if err := s.withIdentity(res.Criteria, p.ID); err != nil {
		return nil, err
	}
	m := s.resolveModel(res.Criteria)

	var proj docstore.Document
	if fields, ok := res.Filters.Fields(); ok {
		if len(fields) > 0 {
			proj = res.Filters.Projection(s.opts.ID)
		}
	} else {
		proj = res.Filters.Projection()
	}
	doc, err := m.FindOne(ctx, res.Criteria, docstore.FindOptions{
		Projection: proj,
		Collation:  p.Collation,
		Session:    p.Session,
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
	return s.shape(m, []docstore.Document{doc})[0], nil
}

// getOrFind reads the whole matching set for Multi and one record
// otherwise. Pagination is always off.
func (s *Service) getOrFind(ctx context.Context, p Params) (*Result, error) {
	p.Paginate = &query.Paginate{}
	if p.ID.IsMulti() {
		return s.find(ctx, p)
	}
	doc, err := s.get(ctx, p)
	if err != nil {
		return nil, err
	}
	return one(doc), nil
}

// fail classifies err once and logs it.
func (s *Service) fail(op string, err error) error {
	out := httperr.Translate(err)
	status := httperr.StatusOf(out)
	fields := map[string]any{
		"model":  s.model.Name,
		"op":     op,
		"status": status,
		"error":  out.Error(),
	}
	if status >= 500 {
		logger.Error("service_failed", fields)
	} else {
		logger.Debug("service_rejected", fields)
	}
	return out
}
