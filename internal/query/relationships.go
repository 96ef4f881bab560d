package query

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"jsonapi-backend/internal/metadata"
)

func (b *Builder) relationship(name string) (metadata.Relationship, error) {
	rel, ok := b.schema.Relationship(b.entity, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, b.entity, name)
	}
	return rel, nil
}

// CreateRelationshipAlias joins the target of a root relationship and
// returns the alias its columns are reachable at. Every call adds new joins;
// use RelationshipAlias to reuse one.
func (b *Builder) CreateRelationshipAlias(name string) (string, error) {
	rel, err := b.relationship(name)
	if err != nil {
		return "", err
	}
	return b.joinRelationship(b.alias, b.entity, rel), nil
}

func (b *Builder) joinRelationship(fromAlias, fromEntity string, rel metadata.Relationship) string {
	switch r := rel.(type) {
	case metadata.BelongsTo:
		return b.InnerJoinOneTable(fromAlias, r.ForeignKey, b.schema.Table(r.Target), r.TargetPrimaryKey)
	case metadata.HasMany:
		return b.InnerJoinOneTable(fromAlias, b.schema.PrimaryKey(fromEntity), b.schema.Table(r.Target), r.ReverseForeignKey)
	case metadata.BelongsToMany:
		return b.InnerJoinTwoSequentialTables(
			fromAlias, b.schema.PrimaryKey(fromEntity),
			r.IntermediateTable, r.LocalKey, r.RemoteKey,
			b.schema.Table(r.Target), b.schema.PrimaryKey(r.Target))
	}
	panic(fmt.Sprintf("query: unhandled relationship %T", rel))
}

// RelationshipAlias returns the alias for a root relationship, joining it on
// first use. To-many joins switch the builder to distinct mode.
func (b *Builder) RelationshipAlias(name string) (string, error) {
	if alias, ok := b.relAliases[name]; ok {
		return alias, nil
	}
	rel, err := b.relationship(name)
	if err != nil {
		return "", err
	}
	alias := b.joinRelationship(b.alias, b.entity, rel)
	if rel.IsToMany() {
		b.Distinct()
	}
	b.relAliases[name] = alias
	return alias, nil
}

// foreignKeyShortcut reports the local column a belongs-to filter can be
// evaluated on without joining: filters on the relationship itself or on
// the target primary key.
func foreignKeyShortcut(rel metadata.Relationship, column string) (string, bool) {
	bt, ok := rel.(metadata.BelongsTo)
	if !ok {
		return "", false
	}
	if column == "" || column == bt.TargetPrimaryKey {
		return bt.ForeignKey, true
	}
	return "", false
}

// RelationshipFilterColumn resolves the qualified column a relationship
// filter applies to, joining only when the foreign key shortcut does not
// apply.
func (b *Builder) RelationshipFilterColumn(rel metadata.Relationship, name, column string) (string, error) {
	if fk, ok := foreignKeyShortcut(rel, column); ok {
		return b.Column(b.alias, fk), nil
	}
	alias, err := b.RelationshipAlias(name)
	if err != nil {
		return "", err
	}
	if column == "" {
		column = b.schema.PrimaryKey(rel.TargetEntity())
	}
	return b.Column(alias, column), nil
}

// AddRelationshipFiltersAndSorts applies filters and sorts that go through
// one root relationship. Filters are combined with filterMode and the group
// is added to link with link's own mode; a nil link means the root AND group.
// Belongs-to filters on the target key use the local foreign key and do not
// join. Sorts on to-many relationships are rejected.
func (b *Builder) AddRelationshipFiltersAndSorts(
	name string,
	filters []FilterParameter,
	sorts []SortParameter,
	filterMode JoinMode,
	link *Composite,
) Errors {
	var errs Errors
	rel, err := b.relationship(name)
	if err != nil {
		for _, f := range filters {
			errs.Add(f.Field, f.Operator, CodeUnknownRelationship, err)
		}
		for _, s := range sorts {
			errs.Add(s.Field, "", CodeUnknownRelationship, err)
		}
		return errs
	}

	group := NewComposite(filterMode)
	for _, f := range filters {
		column, err := b.RelationshipFilterColumn(rel, name, f.Column)
		if err != nil {
			errs.Add(f.Field, f.Operator, CodeUnknownRelationship, err)
			continue
		}
		ApplyFilter(group, column, f, &errs)
	}
	if link == nil {
		b.Where(group)
	} else {
		link.Add(group)
	}

	for _, s := range sorts {
		if rel.IsToMany() {
			errs.Add(s.Field, "", CodeInvalidSort,
				fmt.Errorf("cannot sort by to-many relationship %q", name))
			continue
		}
		bt := rel.(metadata.BelongsTo)
		if s.Column == "" {
			b.OrderBy(b.alias, bt.ForeignKey, s.Ascending)
			continue
		}
		alias, err := b.RelationshipAlias(name)
		if err != nil {
			errs.Add(s.Field, "", CodeUnknownRelationship, err)
			continue
		}
		b.OrderBy(alias, s.Column, s.Ascending)
	}
	return errs
}

// NewRelatedBuilder returns a builder over the target of relationship name
// of entity, restricted to rows related to the parent record parentID.
func NewRelatedBuilder(schema Schema, entity, name string, parentID any, opts ...Option) (*Builder, metadata.Relationship, error) {
	rel, ok := schema.Relationship(entity, name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, entity, name)
	}
	b, err := NewBuilder(schema, rel.TargetEntity(), opts...)
	if err != nil {
		return nil, nil, err
	}

	switch r := rel.(type) {
	case metadata.BelongsTo:
		parentAlias := b.InnerJoinOneTable(b.alias, r.TargetPrimaryKey, schema.Table(entity), r.ForeignKey)
		b.Where(sq.Eq{b.Column(parentAlias, schema.PrimaryKey(entity)): parentID})
	case metadata.HasMany:
		b.Where(sq.Eq{b.Column(b.alias, r.ReverseForeignKey): parentID})
	case metadata.BelongsToMany:
		midAlias := b.InnerJoinOneTable(b.alias, b.pk, r.IntermediateTable, r.RemoteKey)
		b.Where(sq.Eq{b.Column(midAlias, r.LocalKey): parentID})
	default:
		panic(fmt.Sprintf("query: unhandled relationship %T", rel))
	}
	return b, rel, nil
}
