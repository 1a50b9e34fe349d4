package model

import (
	"context"
	"fmt"

	"DocrestAPI/internal/docstore"
)

func (m *Model) collection() (docstore.Collection, error) {
	if m.coll == nil {
		return nil, docstore.NewError(docstore.MissingSchemaError,
			fmt.Sprintf("Model \"%s\" is not bound to a store.", m.Name))
	}
	return m.coll, nil
}

// scope restricts filter to the model's discriminator tag and casts it.
func (m *Model) scope(filter docstore.Document) (docstore.Document, error) {
	cast, err := m.castCriteria(filter)
	if err != nil {
		return nil, err
	}
	if m.base != nil {
		if _, tagged := cast[m.Key()]; !tagged {
			cast[m.Key()] = m.Name
		}
	}
	return cast, nil
}

func (m *Model) Find(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) ([]docstore.Document, error) {
	c, err := m.collection()
	if err != nil {
		return nil, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return nil, err
	}
	return c.Find(ctx, f, opts)
}

func (m *Model) FindOne(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) (docstore.Document, error) {
	c, err := m.collection()
	if err != nil {
		return nil, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return nil, err
	}
	return c.FindOne(ctx, f, opts)
}

// Create validates docs and inserts them in one call.
func (m *Model) Create(ctx context.Context, docs []docstore.Document, opts docstore.InsertOptions) ([]docstore.Document, error) {
	c, err := m.collection()
	if err != nil {
		return nil, err
	}
	prepared := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		p, err := m.prepare(doc, true)
		if err != nil {
			return nil, err
		}
		prepared[i] = p
	}
	return c.InsertMany(ctx, prepared, opts)
}

func (m *Model) FindOneAndUpdate(ctx context.Context, filter, update docstore.Document, opts docstore.ReplaceOptions) (docstore.Document, error) {
	c, err := m.collection()
	if err != nil {
		return nil, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return nil, err
	}
	var u docstore.Document
	if opts.Overwrite {
		u, err = m.prepare(update, opts.SetDefaultsOnInsert)
	} else {
		u, err = m.castUpdate(update, opts.RunValidators)
	}
	if err != nil {
		return nil, err
	}
	return c.FindOneAndUpdate(ctx, f, u, opts)
}

func (m *Model) UpdateMany(ctx context.Context, filter, update docstore.Document, opts docstore.UpdateOptions) (docstore.UpdateResult, error) {
	c, err := m.collection()
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	u, err := m.castUpdate(update, opts.RunValidators)
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	return c.UpdateMany(ctx, f, u, opts)
}

func (m *Model) DeleteOne(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions) (int64, error) {
	c, err := m.collection()
	if err != nil {
		return 0, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return 0, err
	}
	return c.DeleteOne(ctx, f, opts)
}

func (m *Model) DeleteMany(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions) (int64, error) {
	c, err := m.collection()
	if err != nil {
		return 0, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return 0, err
	}
	return c.DeleteMany(ctx, f, opts)
}

func (m *Model) Count(ctx context.Context, filter docstore.Document, opts docstore.CountOptions) (int64, error) {
	c, err := m.collection()
	if err != nil {
		return 0, err
	}
	f, err := m.scope(filter)
	if err != nil {
		return 0, err
	}
	return c.Count(ctx, f, opts)
}

// EstimatedCount reports the collection size from store metadata.
// Discriminators fall back to an exact count of their tag.
func (m *Model) EstimatedCount(ctx context.Context, opts docstore.CountOptions) (int64, error) {
	c, err := m.collection()
	if err != nil {
		return 0, err
	}
	if m.base != nil {
		return c.Count(ctx, docstore.Document{m.Key(): m.Name}, opts)
	}
	return c.EstimatedCount(ctx, opts)
}

// CollectionName returns the backing collection name.
func (m *Model) CollectionName() string { return m.Collection }
