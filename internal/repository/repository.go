// Package repository runs CRUD and relationship reads for one entity on top
// of the query builder and the store.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/store"
)

// ParamsError carries the accumulated filter and sort errors of a request.
type ParamsError struct {
	Errors query.Errors
}

func (e *ParamsError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid query parameter: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("%d invalid query parameters", len(e.Errors))
}

// Params is the parsed read request.
type Params struct {
	Filters  *query.FilterSet
	Sorts    []query.SortParameter
	Includes []string
	Offset   int
	Limit    int
}

// Page is one page of an index read.
type Page struct {
	Rows   []map[string]any
	Total  int64
	Offset int
	Limit  int
}

// Write is the payload of a create or update. ToOne maps relationship
// names to a target id (nil clears it); ToMany replaces the linked ids of
// belongs-to-many relationships.
type Write struct {
	Attributes map[string]any
	ToOne      map[string]any
	ToMany     map[string][]any
}

type Repository struct {
	store  *store.Store
	schema *metadata.Registry
	entity *metadata.Entity
	paging config.PagingConfig
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Repository)

// WithPaging sets the default and maximum page size.
func WithPaging(p config.PagingConfig) Option {
	return func(r *Repository) { r.paging = p }
}

// WithClock replaces time.Now for automatic timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func New(s *store.Store, schema *metadata.Registry, entity string, logger *zap.Logger, opts ...Option) (*Repository, error) {
	e := schema.GetEntity(entity)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", query.ErrUnknownEntity, entity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Repository{
		store:  s,
		schema: schema,
		entity: e,
		paging: config.PagingConfig{DefaultLimit: 20, MaxLimit: 100},
		logger: logger.With(zap.String("entity", e.Name)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Repository) Entity() *metadata.Entity { return r.entity }

func (r *Repository) builder() (*query.Builder, error) {
	return query.NewBuilder(r.schema, r.entity.Name, query.WithQuoter(r.store.Dialect.QuoteIdentifier))
}

// ParseID converts a path id to the primary key's Go type.
func ParseID(e *metadata.Entity, raw string) (any, error) {
	switch e.PrimaryKey.Type {
	case metadata.TypeInt, metadata.TypeBigInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", store.ErrNotFound, raw)
		}
		return n, nil
	case metadata.TypeUUID:
		if _, err := uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("%w: %q", store.ErrNotFound, raw)
		}
	}
	return raw, nil
}

// Index reads one page of rows matching params, plus the total count.
func (r *Repository) Index(ctx context.Context, params Params) (*Page, error) {
	b, err := r.builder()
	if err != nil {
		return nil, err
	}
	errs := ApplyFilters(b, params.Filters)
	errs.Append(ApplySorting(b, params.Sorts))
	if errs.HasErrors() {
		return nil, &ParamsError{Errors: errs}
	}

	countStmt, err := b.CountStatement()
	if err != nil {
		return nil, err
	}
	countRow, err := r.queryRow(ctx, countStmt)
	if err != nil {
		return nil, err
	}

	offset, limit := r.clampPage(params.Offset, params.Limit)
	if !b.HasOrder() {
		b.OrderBy(b.Alias(), r.entity.PrimaryKey.Field, true)
	}
	b.Limit(uint64(limit)).Offset(uint64(offset))

	stmt, err := b.ToStatement()
	if err != nil {
		return nil, err
	}
	rows, err := r.queryRows(ctx, stmt, r.entity.Name)
	if err != nil {
		return nil, err
	}
	if err := r.LoadIncludes(ctx, rows, params.Includes); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return &Page{Rows: rows, Total: toInt64(countRow["total"]), Offset: offset, Limit: limit}, nil
}

func (r *Repository) clampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = r.paging.DefaultLimit
	}
	if r.paging.MaxLimit > 0 && limit > r.paging.MaxLimit {
		limit = r.paging.MaxLimit
	}
	return offset, limit
}

// Count returns the number of rows matching filters.
func (r *Repository) Count(ctx context.Context, filters *query.FilterSet) (int64, error) {
	b, err := r.builder()
	if err != nil {
		return 0, err
	}
	if errs := ApplyFilters(b, filters); errs.HasErrors() {
		return 0, &ParamsError{Errors: errs}
	}
	stmt, err := b.CountStatement()
	if err != nil {
		return 0, err
	}
	row, err := r.queryRow(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return toInt64(row["total"]), nil
}

// Read returns one row by primary key with the requested includes.
func (r *Repository) Read(ctx context.Context, id any, includes []string) (map[string]any, error) {
	b, err := r.builder()
	if err != nil {
		return nil, err
	}
	stmt, err := b.ByID(id).ToStatement()
	if err != nil {
		return nil, err
	}
	rows, err := r.queryRows(ctx, stmt, r.entity.Name)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %v: %w", r.entity.Name, id, store.ErrNotFound)
	}
	if err := r.LoadIncludes(ctx, rows, includes); err != nil {
		return nil, err
	}
	return rows[0], nil
}

// ReadRelationship returns the related rows of one record: a single row (or
// nil) for belongs-to, a list otherwise. Filters and sorts apply to the
// related entity.
func (r *Repository) ReadRelationship(ctx context.Context, id any, name string, params Params) (any, error) {
	if _, err := r.Read(ctx, id, nil); err != nil {
		return nil, err
	}
	b, rel, err := query.NewRelatedBuilder(r.schema, r.entity.Name, name, id,
		query.WithQuoter(r.store.Dialect.QuoteIdentifier))
	if err != nil {
		return nil, err
	}
	errs := ApplyFilters(b, params.Filters)
	errs.Append(ApplySorting(b, params.Sorts))
	if errs.HasErrors() {
		return nil, &ParamsError{Errors: errs}
	}
	if rel.IsToMany() {
		_, limit := r.clampPage(0, params.Limit)
		b.Limit(uint64(limit))
		if params.Offset > 0 {
			b.Offset(uint64(params.Offset))
		}
		if !b.HasOrder() {
			b.OrderBy(b.Alias(), r.schema.PrimaryKey(rel.TargetEntity()), true)
		}
	}

	stmt, err := b.ToStatement()
	if err != nil {
		return nil, err
	}
	rows, err := r.queryRows(ctx, stmt, rel.TargetEntity())
	if err != nil {
		return nil, err
	}
	if !rel.IsToMany() {
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

// Create inserts a record and its belongs-to-many links in one transaction
// and returns the new primary key.
func (r *Repository) Create(ctx context.Context, w Write) (any, error) {
	attrs, err := r.columnValues(w, true)
	if err != nil {
		return nil, err
	}
	pk := r.entity.PrimaryKey
	if pk.Generated && pk.Type == metadata.TypeUUID {
		attrs[pk.Field] = uuid.NewString()
	}

	var id any
	err = r.InTransaction(ctx, func(ctx context.Context) error {
		b, err := r.builder()
		if err != nil {
			return err
		}
		stmt, err := b.CreateModel(attrs)
		if err != nil {
			return err
		}
		row, err := r.queryRow(ctx, stmt)
		if err != nil {
			return err
		}
		id = row[pk.Field]
		return r.replaceLinks(ctx, b, id, w.ToMany, false)
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// Update changes attributes and relationships of an existing record.
// Supplied to-many relationships replace their previous links.
func (r *Repository) Update(ctx context.Context, id any, w Write) error {
	attrs, err := r.columnValues(w, false)
	if err != nil {
		return err
	}
	return r.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.Read(ctx, id, nil); err != nil {
			return err
		}
		b, err := r.builder()
		if err != nil {
			return err
		}
		if len(attrs) > 0 {
			stmt, err := b.UpdateModels([]any{id}, attrs)
			if err != nil {
				return err
			}
			if _, err := r.exec(ctx, stmt); err != nil {
				return err
			}
		}
		return r.replaceLinks(ctx, b, id, w.ToMany, true)
	})
}

// Delete removes a record. Intermediate rows go with it through the
// cascading foreign keys.
func (r *Repository) Delete(ctx context.Context, id any) error {
	b, err := r.builder()
	if err != nil {
		return err
	}
	stmt, err := b.DeleteModels([]any{id})
	if err != nil {
		return err
	}
	n, err := r.exec(ctx, stmt)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", r.entity.Name, id, store.ErrNotFound)
	}
	return nil
}

func (r *Repository) replaceLinks(ctx context.Context, b *query.Builder, id any, toMany map[string][]any, clear bool) error {
	for _, name := range sortedNames(toMany) {
		if clear {
			stmt, err := b.ClearToManyLinks(name, id)
			if err != nil {
				return err
			}
			if _, err := r.exec(ctx, stmt); err != nil {
				return err
			}
		}
		targets := toMany[name]
		if len(targets) == 0 {
			continue
		}
		stmt, err := b.CreateToManyLinks(name, id, targets)
		if err != nil {
			return err
		}
		if _, err := r.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// columnValues merges attributes, belongs-to foreign keys and automatic
// timestamps into one column map.
func (r *Repository) columnValues(w Write, creating bool) (map[string]any, error) {
	attrs := make(map[string]any, len(w.Attributes)+len(w.ToOne)+2)
	for k, v := range w.Attributes {
		attrs[k] = v
	}
	for name, target := range w.ToOne {
		rel, ok := r.schema.Relationship(r.entity.Name, name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", query.ErrUnknownRelationship, r.entity.Name, name)
		}
		bt, ok := rel.(metadata.BelongsTo)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a to-one relationship", query.ErrUnsupported, name)
		}
		attrs[bt.ForeignKey] = target
	}
	for name := range w.ToMany {
		rel, ok := r.schema.Relationship(r.entity.Name, name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", query.ErrUnknownRelationship, r.entity.Name, name)
		}
		if _, ok := rel.(metadata.BelongsToMany); !ok {
			return nil, fmt.Errorf("%w: %s cannot be written from %s", query.ErrUnsupported, name, r.entity.Name)
		}
	}

	now := r.now().UTC()
	for _, f := range r.entity.Fields {
		switch {
		case f.Auto == "create" && creating:
			attrs[f.Name] = now
		case f.Auto == "update" && (creating || len(attrs) > 0 || len(w.ToMany) > 0):
			attrs[f.Name] = now
		}
	}
	return attrs, nil
}

func (r *Repository) queryRows(ctx context.Context, stmt query.Statement, entity string) ([]map[string]any, error) {
	r.logStatement(stmt)
	rows, err := store.QueryRows(ctx, r.querier(ctx), stmt)
	if err != nil {
		r.logger.Error("query failed", zap.String("sql", stmt.SQL), zap.Error(err))
		return nil, store.MapError(r.store.Dialect, err)
	}
	store.NormalizeTypes(rows, r.schema.AttributeTypes(entity))
	return rows, nil
}

func (r *Repository) queryRow(ctx context.Context, stmt query.Statement) (map[string]any, error) {
	r.logStatement(stmt)
	row, err := store.QueryRow(ctx, r.querier(ctx), stmt)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Error("query failed", zap.String("sql", stmt.SQL), zap.Error(err))
		return nil, store.MapError(r.store.Dialect, err)
	}
	return row, err
}

func (r *Repository) exec(ctx context.Context, stmt query.Statement) (int64, error) {
	r.logStatement(stmt)
	n, err := store.Exec(ctx, r.querier(ctx), stmt)
	if err != nil {
		r.logger.Error("exec failed", zap.String("sql", stmt.SQL), zap.Error(err))
		return 0, store.MapError(r.store.Dialect, err)
	}
	return n, nil
}

func (r *Repository) logStatement(stmt query.Statement) {
	if ce := r.logger.Check(zap.DebugLevel, "sql"); ce != nil {
		ce.Write(zap.String("sql", stmt.SQL), zap.Any("params", stmt.Params()))
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
