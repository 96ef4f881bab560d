package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Builder assembles one statement for one root entity. It is mutable and
// meant for a single request; do not share it between goroutines.
type Builder struct {
	schema Schema
	entity string
	table  string
	pk     string
	alias  string
	quote  Quoter

	aliasSeq   int
	aliases    map[string][]string
	relAliases map[string]string

	columns  []string
	joins    []string
	where    *Composite
	orderBy  []string
	groupBy  []string
	distinct bool
	limit    *uint64
	offset   *uint64
}

type Option func(*Builder)

// WithQuoter overrides identifier quoting.
func WithQuoter(q Quoter) Option {
	return func(b *Builder) {
		if q != nil {
			b.quote = q
		}
	}
}

// NewBuilder creates a builder whose root table is aliased "<table>1".
func NewBuilder(schema Schema, entity string, opts ...Option) (*Builder, error) {
	table := schema.Table(entity)
	if table == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	b := &Builder{
		schema:     schema,
		entity:     entity,
		table:      table,
		pk:         schema.PrimaryKey(entity),
		quote:      QuoteIdentifier,
		aliases:    make(map[string][]string),
		relAliases: make(map[string]string),
		where:      NewComposite(And),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.alias = b.CreateAlias(table)
	return b, nil
}

func (b *Builder) Entity() string { return b.entity }

func (b *Builder) Table() string { return b.table }

// Alias is the root table alias.
func (b *Builder) Alias() string { return b.alias }

func (b *Builder) Schema() Schema { return b.schema }

// CreateAlias returns a fresh alias for table. Aliases never repeat within
// one builder, even for the same table.
func (b *Builder) CreateAlias(table string) string {
	b.aliasSeq++
	alias := fmt.Sprintf("%s%d", table, b.aliasSeq)
	b.aliases[table] = append(b.aliases[table], alias)
	return alias
}

// Aliases lists the aliases created for table, in creation order.
func (b *Builder) Aliases(table string) []string {
	return append([]string(nil), b.aliases[table]...)
}

// Column renders alias.column with quoting applied.
func (b *Builder) Column(alias, column string) string {
	return b.quote(alias) + "." + b.quote(column)
}

// PrimaryKeyColumn is the root primary key, alias-qualified.
func (b *Builder) PrimaryKeyColumn() string {
	return b.Column(b.alias, b.pk)
}

func (b *Builder) tableRef(table, alias string) string {
	return b.quote(table) + " AS " + b.quote(alias)
}

// InnerJoinOneTable joins targetTable under a fresh alias on
// fromAlias.fromColumn = target.targetColumn and returns the new alias.
func (b *Builder) InnerJoinOneTable(fromAlias, fromColumn, targetTable, targetColumn string) string {
	targetAlias := b.CreateAlias(targetTable)
	b.joins = append(b.joins, fmt.Sprintf("%s ON %s = %s",
		b.tableRef(targetTable, targetAlias),
		b.Column(fromAlias, fromColumn),
		b.Column(targetAlias, targetColumn)))
	return targetAlias
}

// InnerJoinTwoSequentialTables joins an intermediate table and then the
// target table, returning the target alias.
func (b *Builder) InnerJoinTwoSequentialTables(
	fromAlias, fromColumn,
	intermediateTable, intermediateFromColumn, intermediateToColumn,
	targetTable, targetColumn string,
) string {
	midAlias := b.InnerJoinOneTable(fromAlias, fromColumn, intermediateTable, intermediateFromColumn)
	return b.InnerJoinOneTable(midAlias, intermediateToColumn, targetTable, targetColumn)
}

// SelectModelColumns selects every root attribute.
func (b *Builder) SelectModelColumns() *Builder {
	b.columns = b.columns[:0]
	for _, attr := range b.schema.Attributes(b.entity) {
		b.columns = append(b.columns, b.Column(b.alias, attr))
	}
	return b
}

// SelectColumn adds alias.column AS name next to the model columns.
func (b *Builder) SelectColumn(alias, column, name string) *Builder {
	if len(b.columns) == 0 {
		b.SelectModelColumns()
	}
	b.columns = append(b.columns, b.Column(alias, column)+" AS "+b.quote(name))
	return b
}

// Distinct collapses rows multiplied by to-many joins. It is emulated with
// GROUP BY on the root primary key and applies once no matter how often it
// is called.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

func (b *Builder) IsDistinct() bool { return b.distinct }

// Where attaches p to the root AND group. Empty composites are dropped.
func (b *Builder) Where(p sq.Sqlizer) *Builder {
	b.where.Add(p)
	return b
}

// AddFilters applies filters on columns of alias, combined with mode, and
// attaches the group as one predicate.
func (b *Builder) AddFilters(alias string, mode JoinMode, filters []FilterParameter) Errors {
	var errs Errors
	link := NewComposite(mode)
	for _, f := range filters {
		ApplyFilter(link, b.Column(alias, f.Column), f, &errs)
	}
	b.Where(link)
	return errs
}

// OrderBy appends alias.column to the ordering.
func (b *Builder) OrderBy(alias, column string, ascending bool) *Builder {
	dir := "ASC"
	if !ascending {
		dir = "DESC"
	}
	col := b.Column(alias, column)
	b.orderBy = append(b.orderBy, col+" "+dir)
	if alias != b.alias {
		b.groupBy = append(b.groupBy, col)
	}
	return b
}

// AddSorts orders by columns of alias.
func (b *Builder) AddSorts(alias string, sorts []SortParameter) *Builder {
	for _, s := range sorts {
		b.OrderBy(alias, s.Column, s.Ascending)
	}
	return b
}

func (b *Builder) HasOrder() bool { return len(b.orderBy) > 0 }

func (b *Builder) Limit(n uint64) *Builder {
	b.limit = &n
	return b
}

func (b *Builder) Offset(n uint64) *Builder {
	b.offset = &n
	return b
}

// ByID restricts the root to one primary key value.
func (b *Builder) ByID(id any) *Builder {
	return b.Where(sq.Eq{b.PrimaryKeyColumn(): id})
}

// ByIDs restricts the root to a set of primary keys.
func (b *Builder) ByIDs(ids []any) *Builder {
	if len(ids) == 0 {
		return b.Where(sq.Expr("1 = 0"))
	}
	return b.Where(sq.Eq{b.PrimaryKeyColumn(): append([]any(nil), ids...)})
}

func (b *Builder) from() string {
	return b.tableRef(b.table, b.alias)
}

func (b *Builder) applyJoinsAndWhere(q sq.SelectBuilder) sq.SelectBuilder {
	for _, j := range b.joins {
		q = q.InnerJoin(j)
	}
	// top-level groups are ANDed by squirrel without extra parentheses
	for _, p := range b.where.parts {
		q = q.Where(p)
	}
	return q
}

// ToStatement renders the SELECT.
func (b *Builder) ToStatement() (Statement, error) {
	if len(b.columns) == 0 {
		b.SelectModelColumns()
	}
	q := sq.Select(b.columns...).From(b.from())
	q = b.applyJoinsAndWhere(q)
	if b.distinct {
		q = q.GroupBy(append([]string{b.PrimaryKeyColumn()}, b.groupBy...)...)
	}
	if len(b.orderBy) > 0 {
		q = q.OrderBy(b.orderBy...)
	}
	if b.limit != nil {
		q = q.Limit(*b.limit)
	}
	if b.offset != nil {
		q = q.Offset(*b.offset)
	}
	return render(q.PlaceholderFormat(NamedPlaceholders))
}

// CountStatement counts root rows matching the joins and filters. Ordering
// and paging are ignored.
func (b *Builder) CountStatement() (Statement, error) {
	expr := "COUNT(*) AS total"
	if b.distinct {
		expr = "COUNT(DISTINCT " + b.PrimaryKeyColumn() + ") AS total"
	}
	q := b.applyJoinsAndWhere(sq.Select(expr).From(b.from()))
	return render(q.PlaceholderFormat(NamedPlaceholders))
}

func render(s sq.Sqlizer) (Statement, error) {
	sql, args, err := s.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("render statement: %w", err)
	}
	return Statement{SQL: sql, Args: args}, nil
}
