package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"jsonapi-backend/internal/metadata"
)

// Storage formats for temporal attributes.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)

// CreateModel renders an INSERT for attrs returning the new primary key.
// Columns are emitted in name order.
func (b *Builder) CreateModel(attrs map[string]any) (Statement, error) {
	cols, vals, err := b.bindAttributes(attrs)
	if err != nil {
		return Statement{}, err
	}
	q := sq.Insert(b.quote(b.table)).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING " + b.quote(b.pk)).
		PlaceholderFormat(NamedPlaceholders)
	return render(q)
}

// UpdateModels renders an UPDATE of attrs for the given primary keys.
func (b *Builder) UpdateModels(ids []any, attrs map[string]any) (Statement, error) {
	cols, vals, err := b.bindAttributes(attrs)
	if err != nil {
		return Statement{}, err
	}
	if len(cols) == 0 {
		return Statement{}, fmt.Errorf("update %s: no attributes", b.entity)
	}
	q := sq.Update(b.quote(b.table))
	for i, col := range cols {
		q = q.Set(col, vals[i])
	}
	q = q.Where(b.keyPredicate(ids)).PlaceholderFormat(NamedPlaceholders)
	return render(q)
}

// DeleteModels renders a DELETE for the given primary keys.
func (b *Builder) DeleteModels(ids []any) (Statement, error) {
	q := sq.Delete(b.quote(b.table)).
		Where(b.keyPredicate(ids)).
		PlaceholderFormat(NamedPlaceholders)
	return render(q)
}

func (b *Builder) keyPredicate(ids []any) sq.Sqlizer {
	pk := b.quote(b.pk)
	switch len(ids) {
	case 0:
		return sq.Expr("1 = 0")
	case 1:
		return sq.Eq{pk: ids[0]}
	}
	return sq.Eq{pk: append([]any(nil), ids...)}
}

// CreateToManyLinks inserts intermediate rows linking id to targetIDs
// through a belongs-to-many relationship.
func (b *Builder) CreateToManyLinks(name string, id any, targetIDs []any) (Statement, error) {
	btm, err := b.belongsToMany(name)
	if err != nil {
		return Statement{}, err
	}
	if len(targetIDs) == 0 {
		return Statement{}, fmt.Errorf("%w: no targets for %s", ErrInvalidArgument, name)
	}
	q := sq.Insert(b.quote(btm.IntermediateTable)).
		Columns(b.quote(btm.LocalKey), b.quote(btm.RemoteKey))
	for _, target := range targetIDs {
		q = q.Values(id, target)
	}
	return render(q.PlaceholderFormat(NamedPlaceholders))
}

// ClearToManyLinks deletes every intermediate row of id for a
// belongs-to-many relationship.
func (b *Builder) ClearToManyLinks(name string, id any) (Statement, error) {
	btm, err := b.belongsToMany(name)
	if err != nil {
		return Statement{}, err
	}
	q := sq.Delete(b.quote(btm.IntermediateTable)).
		Where(sq.Eq{b.quote(btm.LocalKey): id}).
		PlaceholderFormat(NamedPlaceholders)
	return render(q)
}

func (b *Builder) belongsToMany(name string) (metadata.BelongsToMany, error) {
	rel, err := b.relationship(name)
	if err != nil {
		return metadata.BelongsToMany{}, err
	}
	btm, ok := rel.(metadata.BelongsToMany)
	if !ok {
		return metadata.BelongsToMany{}, fmt.Errorf("%w: %s is %T", ErrUnsupported, name, rel)
	}
	return btm, nil
}

func (b *Builder) bindAttributes(attrs map[string]any) ([]string, []any, error) {
	types := b.schema.AttributeTypes(b.entity)
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		if _, ok := types[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, b.entity, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	vals := make([]any, len(names))
	for i, name := range names {
		v, err := coerce(types[name], attrs[name])
		if err != nil {
			return nil, nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		cols[i] = b.quote(name)
		vals[i] = v
	}
	return cols, vals, nil
}

// coerce converts a Go value to the representation stored for typ.
func coerce(typ string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case metadata.TypeTimestamp:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(TimestampLayout), nil
		}
		if t, ok := v.(*time.Time); ok && t != nil {
			return t.UTC().Format(TimestampLayout), nil
		}
	case metadata.TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(DateLayout), nil
		}
	case metadata.TypeJSON:
		switch v.(type) {
		case string, []byte:
			return v, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}
