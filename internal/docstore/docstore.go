// Package docstore defines the narrow document-store capability set used by
// resource services, together with the store-native error vocabulary and the
// document helpers shared by the backends.
package docstore

import "context"

// Document is a schemaless record.
type Document = map[string]any

// Session is an opaque transaction or session handle passed through to the
// backend unchanged (mongo.Session, pgx.Tx).
type Session any

// Objecter is implemented by live values that can be unwrapped into a plain
// document before being written.
type Objecter interface {
	ToObject() Document
}

// SortField is one key of an ordered sort specification.
type SortField struct {
	Field string
	Desc  bool
}

type FindOptions struct {
	// Projection is a native projection mapping ({"a": 1} or {"a": 0}).
	Projection Document
	Sort       []SortField
	Collation  Document
	// Limit nil or zero means unlimited.
	Limit   *int64
	Skip    int64
	Session Session
}

type InsertOptions struct {
	Session Session
}

type ReplaceOptions struct {
	ReturnNew bool
	// Overwrite replaces the whole document. Otherwise the update is applied
	// as operators with plain fields treated as $set.
	Overwrite           bool
	Upsert              bool
	RunValidators       bool
	SetDefaultsOnInsert bool
	Session             Session
}

type UpdateOptions struct {
	// Multi updates every match. Otherwise only the first match is updated.
	Multi         bool
	Upsert        bool
	RunValidators bool
	Session       Session
}

type DeleteOptions struct {
	Collation Document
	Session   Session
}

type CountOptions struct {
	Collation Document
	Session   Session
}

type UpdateResult struct {
	Matched     int64
	Modified    int64
	UpsertedIDs []any
}

// Collection is the capability set a backend exposes per collection.
// FindOne returns a nil document and a nil error when nothing matches.
type Collection interface {
	Name() string
	Find(ctx context.Context, filter Document, opts FindOptions) ([]Document, error)
	FindOne(ctx context.Context, filter Document, opts FindOptions) (Document, error)
	InsertMany(ctx context.Context, docs []Document, opts InsertOptions) ([]Document, error)
	FindOneAndUpdate(ctx context.Context, filter, update Document, opts ReplaceOptions) (Document, error)
	UpdateMany(ctx context.Context, filter, update Document, opts UpdateOptions) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter Document, opts DeleteOptions) (int64, error)
	DeleteMany(ctx context.Context, filter Document, opts DeleteOptions) (int64, error)
	Count(ctx context.Context, filter Document, opts CountOptions) (int64, error)
	EstimatedCount(ctx context.Context, opts CountOptions) (int64, error)
	EnsureUnique(ctx context.Context, field string) error
}

// Store hands out collections by name.
type Store interface {
	Collection(name string) Collection
	Close(ctx context.Context) error
}

// IDField is the native identity field of every backend.
const IDField = "_id"
