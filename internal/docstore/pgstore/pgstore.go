// Package pgstore keeps collections in PostgreSQL, one jsonb table per
// collection. Criteria are pushed down to SQL where jsonb can evaluate them
// and finished by the in-process matcher.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"DocrestAPI/internal/docstore"
	"DocrestAPI/internal/logger"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	pool        *pgxpool.Pool
	mu          sync.Mutex
	collections map[string]*Collection
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, collections: make(map[string]*Collection)}
}

// Collection returns the named collection. Its table is created on first use.
func (s *Store) Collection(name string) docstore.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &Collection{name: name, table: pgx.Identifier{name}.Sanitize(), pool: s.pool}
		s.collections[name] = c
	}
	return c
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

type Collection struct {
	name  string
	table string
	pool  *pgxpool.Pool

	mu    sync.Mutex
	ready bool
}

type row struct {
	seq int64
	doc docstore.Document
}

func (c *Collection) Name() string { return c.name }

// db returns the session transaction when one is passed, the pool otherwise.
func (c *Collection) db(session docstore.Session) querier {
	if tx, ok := session.(pgx.Tx); ok {
		return tx
	}
	return c.pool
}

func (c *Collection) begin(session docstore.Session) beginner {
	if tx, ok := session.(pgx.Tx); ok {
		return tx
	}
	return c.pool
}

func (c *Collection) ensureTable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (seq bigserial PRIMARY KEY, doc jsonb NOT NULL)`, c.table),
		c.uniqueIndexSQL(docstore.IDField),
	}
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare collection %s: %w", c.name, err)
		}
	}
	c.ready = true
	return nil
}

func (c *Collection) uniqueIndexSQL(field string) string {
	index := pgx.Identifier{c.name + "_" + strings.ReplaceAll(field, ".", "_") + "_1"}.Sanitize()
	return fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s ((%s))`, index, c.table, fieldExpr(field))
}

// fieldExpr renders the text value of a dotted path.
func fieldExpr(field string) string {
	quote := func(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
	if !strings.Contains(field, ".") {
		return "doc->>" + quote(field)
	}
	return "doc#>>" + quote("{"+strings.ReplaceAll(field, ".", ",")+"}")
}

// load reads the rows selected by the pushed-down criteria in insertion
// order and finishes matching in process unless the pushdown was exact.
func (c *Collection) load(ctx context.Context, q querier, filter, collation docstore.Document, page *docstore.FindOptions, forUpdate bool) ([]row, bool, error) {
	pred, exact, err := compile(filter, docstore.CaseInsensitive(collation))
	if err != nil {
		return nil, false, err
	}
	sb := psql.Select("seq", "doc").From(c.table).OrderBy("seq")
	if pred != nil {
		sb = sb.Where(pred)
	}
	paged := page != nil && exact && len(page.Sort) == 0
	if paged {
		if page.Skip > 0 {
			sb = sb.Offset(uint64(page.Skip))
		}
		if page.Limit != nil && *page.Limit > 0 {
			sb = sb.Limit(uint64(*page.Limit))
		}
	}
	if forUpdate {
		sb = sb.Suffix("FOR UPDATE")
	}
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return nil, false, err
	}

	rows, err := q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	m := docstore.NewMatcher(collation)
	var out []row
	for rows.Next() {
		var (
			r   row
			raw []byte
		)
		if err := rows.Scan(&r.seq, &raw); err != nil {
			return nil, false, err
		}
		if r.doc, err = decodeDoc(raw); err != nil {
			return nil, false, err
		}
		if !exact {
			ok, err := m.Match(r.doc, filter)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, paged, nil
}

func (c *Collection) Find(ctx context.Context, filter docstore.Document, opts docstore.FindOptions) ([]docstore.Document, error) {
	if err := c.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, paged, err := c.load(ctx, c.db(opts.Session), filter, opts.Collation, &opts, false)
	if err != nil {
		return nil, err
	}
	docs := make([]docstore.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	if !paged {
		docstore.SortDocuments(docs, opts.Sort, opts.Collation)
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(docs)) {
				docs = docs[:0]
			} else {
				docs = docs[opts.Skip:]
			}
		}
		if opts.Limit != nil && *opts.Limit > 0 && *opts.Limit < int64(len(docs)) {
			docs = docs[:*opts.Limit]
		}
	}
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
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

func (c *Collection) InsertMany(ctx context.Context, docs []docstore.Document, opts docstore.InsertOptions) ([]docstore.Document, error) {
	if err := c.ensureTable(ctx); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []docstore.Document{}, nil
	}
	ib := psql.Insert(c.table).Columns("doc")
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		d := docstore.CloneDocument(doc)
		if d == nil {
			d = docstore.Document{}
		}
		if id, ok := d[docstore.IDField]; !ok || id == nil {
			d[docstore.IDField] = uuid.NewString()
		}
		enc, err := encodeDoc(d)
		if err != nil {
			return nil, err
		}
		ib = ib.Values(sq.Expr("?::jsonb", enc))
		out[i] = d
	}
	sqlStr, args, err := ib.ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := c.db(opts.Session).Exec(ctx, sqlStr, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection) insertOne(ctx context.Context, tx pgx.Tx, doc docstore.Document) error {
	enc, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	sqlStr, args, err := psql.Insert(c.table).Columns("doc").Values(sq.Expr("?::jsonb", enc)).ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sqlStr, args...)
	return err
}

func (c *Collection) rewrite(ctx context.Context, tx pgx.Tx, seq int64, doc docstore.Document) error {
	enc, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	sqlStr, args, err := psql.Update(c.table).
		Set("doc", sq.Expr("?::jsonb", enc)).
		Where(sq.Eq{"seq": seq}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sqlStr, args...)
	return err
}

func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update docstore.Document, opts docstore.ReplaceOptions) (docstore.Document, error) {
	if err := c.ensureTable(ctx); err != nil {
		return nil, err
	}
	var result docstore.Document
	err := pgx.BeginFunc(ctx, c.begin(opts.Session), func(tx pgx.Tx) error {
		rows, _, err := c.load(ctx, tx, filter, nil, nil, true)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			if !opts.Upsert {
				return nil
			}
			seed, err := docstore.UpsertSeed(filter, update, opts.Overwrite)
			if err != nil {
				return err
			}
			if _, ok := seed[docstore.IDField]; !ok {
				seed[docstore.IDField] = uuid.NewString()
			}
			if err := c.insertOne(ctx, tx, seed); err != nil {
				return err
			}
			if opts.ReturnNew {
				result = seed
			}
			return nil
		}

		before := rows[0].doc
		var after docstore.Document
		if opts.Overwrite {
			after = docstore.Replace(before, update)
		} else if after, err = docstore.ApplyUpdate(before, update); err != nil {
			return err
		}
		if err := c.rewrite(ctx, tx, rows[0].seq, after); err != nil {
			return err
		}
		result = before
		if opts.ReturnNew {
			result = after
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update docstore.Document, opts docstore.UpdateOptions) (docstore.UpdateResult, error) {
	var res docstore.UpdateResult
	if err := c.ensureTable(ctx); err != nil {
		return res, err
	}
	err := pgx.BeginFunc(ctx, c.begin(opts.Session), func(tx pgx.Tx) error {
		rows, _, err := c.load(ctx, tx, filter, nil, nil, true)
		if err != nil {
			return err
		}
		if len(rows) == 0 && opts.Upsert {
			seed, err := docstore.UpsertSeed(filter, update, false)
			if err != nil {
				return err
			}
			if _, ok := seed[docstore.IDField]; !ok {
				seed[docstore.IDField] = uuid.NewString()
			}
			if err := c.insertOne(ctx, tx, seed); err != nil {
				return err
			}
			res.UpsertedIDs = []any{seed[docstore.IDField]}
			return nil
		}
		if !opts.Multi && len(rows) > 1 {
			rows = rows[:1]
		}
		for _, r := range rows {
			after, err := docstore.ApplyUpdate(r.doc, update)
			if err != nil {
				return err
			}
			res.Matched++
			if docstore.Equal(r.doc, after) {
				continue
			}
			if err := c.rewrite(ctx, tx, r.seq, after); err != nil {
				return err
			}
			res.Modified++
		}
		return nil
	})
	if err != nil {
		return docstore.UpdateResult{}, err
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
	if err := c.ensureTable(ctx); err != nil {
		return 0, err
	}
	var deleted int64
	err := pgx.BeginFunc(ctx, c.begin(opts.Session), func(tx pgx.Tx) error {
		rows, _, err := c.load(ctx, tx, filter, opts.Collation, nil, true)
		if err != nil {
			return err
		}
		if !many && len(rows) > 1 {
			rows = rows[:1]
		}
		if len(rows) == 0 {
			return nil
		}
		seqs := make([]int64, len(rows))
		for i, r := range rows {
			seqs[i] = r.seq
		}
		sqlStr, args, err := psql.Delete(c.table).Where(sq.Eq{"seq": seqs}).ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, sqlStr, args...)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	return deleted, err
}

func (c *Collection) Count(ctx context.Context, filter docstore.Document, opts docstore.CountOptions) (int64, error) {
	if err := c.ensureTable(ctx); err != nil {
		return 0, err
	}
	pred, exact, err := compile(filter, docstore.CaseInsensitive(opts.Collation))
	if err != nil {
		return 0, err
	}
	if !exact {
		rows, _, err := c.load(ctx, c.db(opts.Session), filter, opts.Collation, nil, false)
		return int64(len(rows)), err
	}
	sb := psql.Select("count(*)").From(c.table)
	if pred != nil {
		sb = sb.Where(pred)
	}
	sqlStr, args, err := sb.ToSql()
	if err != nil {
		return 0, err
	}
	var total int64
	err = c.db(opts.Session).QueryRow(ctx, sqlStr, args...).Scan(&total)
	return total, err
}

// EstimatedCount reads the planner statistics and falls back to an exact
// count for tables that were never analyzed.
func (c *Collection) EstimatedCount(ctx context.Context, opts docstore.CountOptions) (int64, error) {
	if err := c.ensureTable(ctx); err != nil {
		return 0, err
	}
	var estimate int64
	err := c.db(opts.Session).QueryRow(ctx,
		`SELECT reltuples::bigint FROM pg_class WHERE oid = to_regclass($1)`, c.table,
	).Scan(&estimate)
	if err == nil && estimate >= 0 {
		return estimate, nil
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("estimated_count_failed", map[string]any{"collection": c.name, "error": err.Error()})
	}
	return c.Count(ctx, docstore.Document{}, opts)
}

// EnsureUnique creates a unique expression index on field. Existing
// duplicates fail with a unique violation.
func (c *Collection) EnsureUnique(ctx context.Context, field string) error {
	if err := c.ensureTable(ctx); err != nil {
		return err
	}
	_, err := c.pool.Exec(ctx, c.uniqueIndexSQL(field))
	return err
}
