package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/store"
)

// Checker answers existence questions for database-backed validation rules.
type Checker struct {
	store  *store.Store
	schema *metadata.Registry
	logger *zap.Logger
}

func NewChecker(s *store.Store, schema *metadata.Registry, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{store: s, schema: schema, logger: logger}
}

// Exists reports whether a row of entity has column = value. A non-nil
// exceptID excludes that record, which is how uniqueness is checked on
// update.
func (c *Checker) Exists(ctx context.Context, entity, column string, value, exceptID any) (bool, error) {
	b, err := query.NewBuilder(c.schema, entity, query.WithQuoter(c.store.Dialect.QuoteIdentifier))
	if err != nil {
		return false, err
	}
	if _, ok := c.schema.AttributeTypes(entity)[column]; !ok {
		return false, fmt.Errorf("%w: %s.%s", query.ErrUnknownAttribute, entity, column)
	}
	b.Where(sq.Eq{b.Column(b.Alias(), column): value})
	if exceptID != nil {
		b.Where(sq.NotEq{b.PrimaryKeyColumn(): exceptID})
	}

	stmt, err := b.CountStatement()
	if err != nil {
		return false, err
	}
	c.logger.Debug("sql", zap.String("sql", stmt.SQL), zap.Any("params", stmt.Params()))
	row, err := store.QueryRow(ctx, querierFor(ctx, c.store), stmt)
	if err != nil {
		return false, store.MapError(c.store.Dialect, err)
	}
	return toInt64(row["total"]) > 0, nil
}
