// Package memstore keeps collections in process memory. Data is lost on
// restart. Safe for concurrent use.
package memstore

import (
	"context"
	"sync"

	"DocrestAPI/internal/docstore"

	"github.com/google/uuid"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

func New() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) docstore.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &Collection{name: name, unique: []string{docstore.IDField}}
		s.collections[name] = c
	}
	return c
}

func (s *Store) Close(context.Context) error { return nil }

// Collection stores documents in insertion order.
type Collection struct {
	name   string
	mu     sync.RWMutex
	docs   []docstore.Document
	unique []string
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Find(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	idx, err := c.matchLocked(filter, opts.Collation)
	matched := make([]docstore.Document, len(idx))
	for i, at := range idx {
		matched[i] = docstore.CloneDocument(c.docs[at])
	}
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	docstore.SortDocuments(matched, opts.Sort, opts.Collation)
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			matched = matched[:0]
		} else {
			matched = matched[opts.Skip:]
		}
	}
	if opts.Limit != nil && *opts.Limit > 0 && *opts.Limit < int64(len(matched)) {
		matched = matched[:*opts.Limit]
	}
	out := make([]docstore.Document, len(matched))
	for i, doc := range matched {
		out[i] = docstore.Project(doc, opts.Projection)
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) (docstore.Document, error) {
	one := int64(1)
	opts.Limit = &one
	docs, err := c.Find(ctx, filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *Collection) InsertMany(ctx context.Context, docs []docstore.Document, _ docstore.InsertOptions) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prepared := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		d := docstore.CloneDocument(doc)
		if d == nil {
			d = docstore.Document{}
		}
		if id, ok := d[docstore.IDField]; !ok || id == nil {
			d[docstore.IDField] = uuid.NewString()
		}
		if err := c.checkUniqueLocked(d, prepared[:i]); err != nil {
			return nil, err
		}
		prepared[i] = d
	}
	out := make([]docstore.Document, len(prepared))
	for i, d := range prepared {
		c.docs = append(c.docs, d)
		out[i] = docstore.CloneDocument(d)
	}
	return out, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update docstore.Document, opts docstore.ReplaceOptions) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.matchLocked(filter, nil)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		if !opts.Upsert {
			return nil, nil
		}
		seed, err := docstore.UpsertSeed(filter, update, opts.Overwrite)
		if err != nil {
			return nil, err
		}
		if _, ok := seed[docstore.IDField]; !ok {
			seed[docstore.IDField] = uuid.NewString()
		}
		if err := c.checkUniqueLocked(seed, nil); err != nil {
			return nil, err
		}
		c.docs = append(c.docs, seed)
		if !opts.ReturnNew {
			return nil, nil
		}
		return docstore.CloneDocument(seed), nil
	}

	at := idx[0]
	before := c.docs[at]
	var after docstore.Document
	if opts.Overwrite {
		after = docstore.Replace(before, update)
	} else if after, err = docstore.ApplyUpdate(before, update); err != nil {
		return nil, err
	}
	if err := c.checkUniqueLocked(after, nil, at); err != nil {
		return nil, err
	}
	c.docs[at] = after
	if opts.ReturnNew {
		return docstore.CloneDocument(after), nil
	}
	return docstore.CloneDocument(before), nil
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update docstore.Document, opts docstore.UpdateOptions) (docstore.UpdateResult, error) {
	var res docstore.UpdateResult
	if err := ctx.Err(); err != nil {
		return res, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.matchLocked(filter, nil)
	if err != nil {
		return res, err
	}
	if len(idx) == 0 && opts.Upsert {
		seed, err := docstore.UpsertSeed(filter, update, false)
		if err != nil {
			return res, err
		}
		if _, ok := seed[docstore.IDField]; !ok {
			seed[docstore.IDField] = uuid.NewString()
		}
		if err := c.checkUniqueLocked(seed, nil); err != nil {
			return res, err
		}
		c.docs = append(c.docs, seed)
		res.UpsertedIDs = []any{seed[docstore.IDField]}
		return res, nil
	}
	if !opts.Multi && len(idx) > 1 {
		idx = idx[:1]
	}

	// Apply to copies first so a failure leaves the collection untouched.
	updated := make([]docstore.Document, len(idx))
	for i, at := range idx {
		after, err := docstore.ApplyUpdate(c.docs[at], update)
		if err != nil {
			return res, err
		}
		updated[i] = after
	}
	for i := range idx {
		if err := c.checkUniqueLocked(updated[i], updated[:i], idx...); err != nil {
			return res, err
		}
	}
	for i, at := range idx {
		res.Matched++
		if !docstore.Equal(c.docs[at], updated[i]) {
			res.Modified++
		}
		c.docs[at] = updated[i]
	}
	return res, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions) (int64, error) {
	return c.delete(ctx, filter, opts, false)
}

func (c *Collection) DeleteMany(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions) (int64, error) {
	return c.delete(ctx, filter, opts, true)
}

func (c *Collection) delete(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions, many bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.matchLocked(filter, opts.Collation)
	if err != nil {
		return 0, err
	}
	if !many && len(idx) > 1 {
		idx = idx[:1]
	}
	if len(idx) == 0 {
		return 0, nil
	}
	drop := make(map[int]bool, len(idx))
	for _, at := range idx {
		drop[at] = true
	}
	kept := c.docs[:0]
	for i, doc := range c.docs {
		if !drop[i] {
			kept = append(kept, doc)
		}
	}
	for i := len(kept); i < len(c.docs); i++ {
		c.docs[i] = nil
	}
	c.docs = kept
	return int64(len(idx)), nil
}

func (c *Collection) Count(ctx context.Context, filter docstore.Document, opts docstore.CountOptions) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, err := c.matchLocked(filter, opts.Collation)
	return int64(len(idx)), err
}

func (c *Collection) EstimatedCount(ctx context.Context, _ docstore.CountOptions) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.docs)), nil
}

// EnsureUnique declares a unique index on field. Existing duplicates fail
// the declaration.
func (c *Collection) EnsureUnique(_ context.Context, field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.unique {
		if f == field {
			return nil
		}
	}
	seen := make([]any, 0, len(c.docs))
	for _, doc := range c.docs {
		v, _ := docstore.Lookup(doc, field)
		for _, prev := range seen {
			if docstore.Equal(prev, v) {
				return docstore.DuplicateKey(c.name, field, v)
			}
		}
		seen = append(seen, v)
	}
	c.unique = append(c.unique, field)
	return nil
}

func (c *Collection) matchLocked(filter docstore.Document, collation docstore.Document) ([]int, error) {
	m := docstore.NewMatcher(collation)
	var idx []int
	for i, doc := range c.docs {
		ok, err := m.Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// checkUniqueLocked compares candidate against stored documents (except the
// ones being rewritten) and against pending documents of the same write.
func (c *Collection) checkUniqueLocked(candidate docstore.Document, pending []docstore.Document, skip ...int) error {
	skipped := make(map[int]bool, len(skip))
	for _, at := range skip {
		skipped[at] = true
	}
	for _, field := range c.unique {
		v, _ := docstore.Lookup(candidate, field)
		for i, doc := range c.docs {
			if skipped[i] {
				continue
			}
			if other, _ := docstore.Lookup(doc, field); docstore.Equal(other, v) {
				return docstore.DuplicateKey(c.name, field, v)
			}
		}
		for _, doc := range pending {
			if other, _ := docstore.Lookup(doc, field); docstore.Equal(other, v) {
				return docstore.DuplicateKey(c.name, field, v)
			}
		}
	}
	return nil
}
