package repository

import (
	"fmt"
	"sort"

	"jsonapi-backend/internal/query"
)

// ApplyFilters adds a parsed filter collection to b. All top-level filters
// share one group combined with set.Mode. Relationship joins are created on
// first use and reused for later filters on the same relationship; the first
// to-many join makes the query distinct. Belongs-to filters on the related
// key use the local foreign key without a join.
func ApplyFilters(b *query.Builder, set *query.FilterSet) query.Errors {
	if set == nil || len(set.Params) == 0 {
		return nil
	}
	var errs query.Errors
	schema := b.Schema()
	attrs := attributeSet(schema, b.Entity())
	link := query.NewComposite(set.Mode)

	for _, f := range set.Params {
		relName, column := f.Relationship, f.Column
		if relName == "" {
			if attrs[column] {
				query.ApplyFilter(link, b.Column(b.Alias(), column), f, &errs)
				continue
			}
			// a bare relationship name filters on the related key
			relName, column = column, ""
		}

		rel, ok := schema.Relationship(b.Entity(), relName)
		if !ok {
			code := query.CodeUnknownRelationship
			if f.Relationship == "" {
				code = query.CodeUnknownField
			}
			errs.Add(f.Field, f.Operator, code, fmt.Errorf("%w: %s", query.ErrUnknownRelationship, relName))
			continue
		}
		if column != "" && !attributeSet(schema, rel.TargetEntity())[column] {
			errs.Add(f.Field, f.Operator, query.CodeUnknownField, fmt.Errorf("%w: %s", query.ErrUnknownAttribute, f.Field))
			continue
		}
		target, err := b.RelationshipFilterColumn(rel, relName, column)
		if err != nil {
			errs.Add(f.Field, f.Operator, query.CodeUnknownRelationship, err)
			continue
		}
		query.ApplyFilter(link, target, f, &errs)
	}

	b.Where(link)
	return errs
}

// ApplySorting adds sorts to b in order. Relationship sorts are allowed on
// belongs-to relationships only.
func ApplySorting(b *query.Builder, sorts []query.SortParameter) query.Errors {
	var errs query.Errors
	schema := b.Schema()
	attrs := attributeSet(schema, b.Entity())

	for _, s := range sorts {
		relName, column := s.Relationship, s.Column
		if relName == "" {
			if attrs[column] {
				b.OrderBy(b.Alias(), column, s.Ascending)
				continue
			}
			relName, column = column, ""
		}
		rel, ok := schema.Relationship(b.Entity(), relName)
		if !ok {
			errs.Add(s.Field, "", query.CodeInvalidSort, fmt.Errorf("%w: %s", query.ErrUnknownAttribute, s.Field))
			continue
		}
		if column != "" && !attributeSet(schema, rel.TargetEntity())[column] {
			errs.Add(s.Field, "", query.CodeInvalidSort, fmt.Errorf("%w: %s", query.ErrUnknownAttribute, s.Field))
			continue
		}
		sortOn := s
		sortOn.Relationship, sortOn.Column = relName, column
		errs.Append(b.AddRelationshipFiltersAndSorts(relName, nil, []query.SortParameter{sortOn}, query.And, nil))
	}
	return errs
}

func attributeSet(schema query.Schema, entity string) map[string]bool {
	attrs := schema.Attributes(entity)
	set := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		set[a] = true
	}
	return set
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
