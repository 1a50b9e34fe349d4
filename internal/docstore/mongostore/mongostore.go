// Package mongostore serves collections from MongoDB. Criteria and update
// documents are passed to the server as they are.
package mongostore

import (
	"context"
	"errors"

	"DocrestAPI/internal/docstore"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) Collection(name string) docstore.Collection {
	return &Collection{coll: s.db.Collection(name)}
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type Collection struct {
	coll *mongo.Collection
}

func (c *Collection) Name() string { return c.coll.Name() }

// withSession привязывает операцию к сессии, если она передана.
func withSession(ctx context.Context, session docstore.Session) context.Context {
	switch s := session.(type) {
	case mongo.SessionContext:
		return s
	case mongo.Session:
		return mongo.NewSessionContext(ctx, s)
	}
	return ctx
}

func (c *Collection) Find(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) ([]docstore.Document, error) {
	fo := options.Find()
	if len(opts.Projection) > 0 {
		fo.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(sortSpec(opts.Sort))
	}
	if coll := collation(opts.Collation); coll != nil {
		fo.SetCollation(coll)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit != nil && *opts.Limit > 0 {
		fo.SetLimit(*opts.Limit)
	}
	ctx = withSession(ctx, opts.Session)
	cur, err := c.coll.Find(ctx, toBSON(filter), fo)
	if err != nil {
		return nil, err
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, err
	}
	out := make([]docstore.Document, len(raw))
	for i, doc := range raw {
		out[i] = fromBSON(doc).(map[string]any)
	}
	return out, nil
}

func (c *Collection) FindOne(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) (docstore.Document, error) {
	fo := options.FindOne()
	if len(opts.Projection) > 0 {
		fo.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		fo.SetSort(sortSpec(opts.Sort))
	}
	if coll := collation(opts.Collation); coll != nil {
		fo.SetCollation(coll)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	return decodeOne(c.coll.FindOne(withSession(ctx, opts.Session), toBSON(filter), fo))
}

func (c *Collection) InsertMany(ctx context.Context, docs []docstore.Document, opts docstore.InsertOptions) ([]docstore.Document, error) {
	if len(docs) == 0 {
		return []docstore.Document{}, nil
	}
	batch := make([]any, len(docs))
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		d := docstore.CloneDocument(doc)
		if d == nil {
			d = docstore.Document{}
		}
		if id, ok := d[docstore.IDField]; !ok || id == nil {
			d[docstore.IDField] = primitive.NewObjectID().Hex()
		}
		batch[i] = toBSON(d)
		out[i] = d
	}
	// ordered insert: первая ошибка останавливает пакет
	if _, err := c.coll.InsertMany(withSession(ctx, opts.Session), batch); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update docstore.Document, opts docstore.ReplaceOptions) (docstore.Document, error) {
	ctx = withSession(ctx, opts.Session)
	ret := options.Before
	if opts.ReturnNew {
		ret = options.After
	}
	if opts.Overwrite {
		ro := options.FindOneAndReplace().SetReturnDocument(ret).SetUpsert(opts.Upsert)
		repl := docstore.CloneDocument(update)
		delete(repl, docstore.IDField)
		return decodeOne(c.coll.FindOneAndReplace(ctx, toBSON(filter), toBSON(repl), ro))
	}
	uo := options.FindOneAndUpdate().SetReturnDocument(ret).SetUpsert(opts.Upsert)
	return decodeOne(c.coll.FindOneAndUpdate(ctx, toBSON(filter), toBSON(operators(update)), uo))
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update docstore.Document, opts docstore.UpdateOptions) (docstore.UpdateResult, error) {
	ctx = withSession(ctx, opts.Session)
	uo := options.Update().SetUpsert(opts.Upsert)
	var (
		res *mongo.UpdateResult
		err error
	)
	if opts.Multi {
		res, err = c.coll.UpdateMany(ctx, toBSON(filter), toBSON(operators(update)), uo)
	} else {
		res, err = c.coll.UpdateOne(ctx, toBSON(filter), toBSON(operators(update)), uo)
	}
	if err != nil {
		return docstore.UpdateResult{}, err
	}
	out := docstore.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	if res.UpsertedID != nil {
		out.UpsertedIDs = []any{fromBSON(res.UpsertedID)}
	}
	return out, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions) (int64, error) {
	res, err := c.coll.DeleteOne(withSession(ctx, opts.Session), toBSON(filter), deleteOptions(opts))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter docstore.Document, opts docstore.DeleteOptions) (int64, error) {
	res, err := c.coll.DeleteMany(withSession(ctx, opts.Session), toBSON(filter), deleteOptions(opts))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func deleteOptions(opts docstore.DeleteOptions) *options.DeleteOptions {
	do := options.Delete()
	if coll := collation(opts.Collation); coll != nil {
		do.SetCollation(coll)
	}
	return do
}

func (c *Collection) Count(ctx context.Context, filter docstore.Document, opts docstore.CountOptions) (int64, error) {
	co := options.Count()
	if coll := collation(opts.Collation); coll != nil {
		co.SetCollation(coll)
	}
	return c.coll.CountDocuments(withSession(ctx, opts.Session), toBSON(filter), co)
}

func (c *Collection) EstimatedCount(ctx context.Context, _ docstore.CountOptions) (int64, error) {
	// estimatedDocumentCount не поддерживает сессии
	return c.coll.EstimatedDocumentCount(ctx)
}

func (c *Collection) EnsureUnique(ctx context.Context, field string) error {
	if field == docstore.IDField {
		return nil
	}
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func decodeOne(res *mongo.SingleResult) (docstore.Document, error) {
	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return fromBSON(raw).(map[string]any), nil
}

func sortSpec(fields []docstore.SortField) bson.D {
	spec := make(bson.D, len(fields))
	for i, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		spec[i] = bson.E{Key: f.Field, Value: dir}
	}
	return spec
}

// collation переводит документ collation в опции драйвера.
func collation(doc docstore.Document) *options.Collation {
	if len(doc) == 0 {
		return nil
	}
	c := &options.Collation{Locale: "simple"}
	if v, ok := doc["locale"].(string); ok && v != "" {
		c.Locale = v
	}
	if n, ok := docstore.ToFloat(doc["strength"]); ok {
		c.Strength = int(n)
	}
	if v, ok := doc["caseLevel"].(bool); ok {
		c.CaseLevel = v
	}
	if v, ok := doc["numericOrdering"].(bool); ok {
		c.NumericOrdering = v
	}
	return c
}

// operators folds plain update keys into $set.
func operators(update docstore.Document) docstore.Document {
	out := docstore.Document{}
	set := docstore.Document{}
	for k, v := range update {
		if docstore.IsOperatorKey(k) {
			out[k] = v
			continue
		}
		set[k] = v
	}
	if len(set) > 0 {
		if existing, ok := out["$set"].(map[string]any); ok {
			for k, v := range existing {
				set[k] = v
			}
		}
		out["$set"] = set
	}
	return out
}
