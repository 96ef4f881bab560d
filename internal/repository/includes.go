package repository

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
)

const parentKeyColumn = "_parent_key"

// LoadIncludes fetches related records and attaches them to the rows under
// the relationship name: a row or nil for belongs-to, a list otherwise.
// Dotted paths ("posts.comments") load each level in turn.
func (r *Repository) LoadIncludes(ctx context.Context, rows []map[string]any, includes []string) error {
	return r.loadIncludes(ctx, r.entity.Name, rows, includes)
}

func (r *Repository) loadIncludes(ctx context.Context, entity string, rows []map[string]any, includes []string) error {
	if len(rows) == 0 || len(includes) == 0 {
		return nil
	}

	// group nested paths under their first segment, keeping request order
	var order []string
	nested := make(map[string][]string)
	for _, path := range includes {
		head, rest, _ := strings.Cut(path, ".")
		if _, seen := nested[head]; !seen {
			order = append(order, head)
			nested[head] = nil
		}
		if rest != "" {
			nested[head] = append(nested[head], rest)
		}
	}

	for _, name := range order {
		rel, ok := r.schema.Relationship(entity, name)
		if !ok {
			return fmt.Errorf("include %s: %w", name, query.ErrUnknownRelationship)
		}
		children, err := r.loadRelation(ctx, entity, rel, rows)
		if err != nil {
			return fmt.Errorf("load include %s: %w", name, err)
		}
		if err := r.loadIncludes(ctx, rel.TargetEntity(), children, nested[name]); err != nil {
			return err
		}
	}
	return nil
}

// loadRelation attaches one relationship and returns the distinct loaded
// target rows.
func (r *Repository) loadRelation(ctx context.Context, entity string, rel metadata.Relationship, rows []map[string]any) ([]map[string]any, error) {
	name := rel.RelationshipName()
	target := rel.TargetEntity()
	targetPK := r.schema.PrimaryKey(target)
	b, err := query.NewBuilder(r.schema, target, query.WithQuoter(r.store.Dialect.QuoteIdentifier))
	if err != nil {
		return nil, err
	}

	switch rel := rel.(type) {
	case metadata.BelongsTo:
		fks := collectValues(rows, rel.ForeignKey)
		if len(fks) == 0 {
			for _, row := range rows {
				row[name] = nil
			}
			return nil, nil
		}
		children, err := r.fetch(ctx, b.ByIDs(fks), target)
		if err != nil {
			return nil, err
		}
		byPK := indexBy(children, targetPK)
		for _, row := range rows {
			if child, ok := byPK[key(row[rel.ForeignKey])]; ok {
				row[name] = child
			} else {
				row[name] = nil
			}
		}
		return children, nil

	case metadata.HasMany:
		ids := collectValues(rows, r.schema.PrimaryKey(entity))
		b.SelectColumn(b.Alias(), rel.ReverseForeignKey, parentKeyColumn)
		b.Where(inPredicate(b.Column(b.Alias(), rel.ReverseForeignKey), ids))
		b.OrderBy(b.Alias(), targetPK, true)
		children, err := r.fetch(ctx, b, target)
		if err != nil {
			return nil, err
		}
		r.attachGrouped(rows, r.schema.PrimaryKey(entity), name, children)
		return children, nil

	case metadata.BelongsToMany:
		ids := collectValues(rows, r.schema.PrimaryKey(entity))
		mid := b.InnerJoinOneTable(b.Alias(), targetPK, rel.IntermediateTable, rel.RemoteKey)
		b.SelectColumn(mid, rel.LocalKey, parentKeyColumn)
		b.Where(inPredicate(b.Column(mid, rel.LocalKey), ids))
		b.OrderBy(b.Alias(), targetPK, true)
		children, err := r.fetch(ctx, b, target)
		if err != nil {
			return nil, err
		}
		r.attachGrouped(rows, r.schema.PrimaryKey(entity), name, children)
		// the same target can be linked to several parents
		unique := make([]map[string]any, 0, len(children))
		seen := make(map[string]bool, len(children))
		for _, c := range children {
			if k := key(c[targetPK]); !seen[k] {
				seen[k] = true
				unique = append(unique, c)
			}
		}
		return unique, nil
	}
	return nil, fmt.Errorf("%w: %T", query.ErrUnsupported, rel)
}

func (r *Repository) fetch(ctx context.Context, b *query.Builder, entity string) ([]map[string]any, error) {
	stmt, err := b.ToStatement()
	if err != nil {
		return nil, err
	}
	return r.queryRows(ctx, stmt, entity)
}

// attachGrouped assigns children to parents by the selected parent key and
// strips the helper column.
func (r *Repository) attachGrouped(rows []map[string]any, parentPK, name string, children []map[string]any) {
	grouped := make(map[string][]map[string]any)
	for _, child := range children {
		k := key(child[parentKeyColumn])
		delete(child, parentKeyColumn)
		grouped[k] = append(grouped[k], child)
	}
	for _, row := range rows {
		if list, ok := grouped[key(row[parentPK])]; ok {
			row[name] = list
		} else {
			row[name] = []map[string]any{}
		}
	}
}

func inPredicate(column string, ids []any) sq.Sqlizer {
	if len(ids) == 0 {
		return sq.Expr("1 = 0")
	}
	return sq.Eq{column: ids}
}

func collectValues(rows []map[string]any, field string) []any {
	seen := make(map[string]bool)
	var vals []any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		k := key(v)
		if !seen[k] {
			seen[k] = true
			vals = append(vals, v)
		}
	}
	return vals
}

func indexBy(rows []map[string]any, field string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		out[key(row[field])] = row
	}
	return out
}

func key(v any) string {
	return fmt.Sprintf("%v", v)
}
