package jsonapi

import (
	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/validation"
)

// EntityDataRules derives the document rules of an entity. Has-many
// relationships are written from the other side and are not accepted.
func EntityDataRules(reg *metadata.Registry, e *metadata.Entity, mode validation.Mode) DataRules {
	r := DataRules{
		Type:       e.ResourceType(),
		Attributes: validation.FromEntity(e, mode),
		ToOne:      map[string]RelationshipRule{},
		ToMany:     map[string]RelationshipRule{},
	}
	delete(r.Attributes, e.PrimaryKey.Field)

	switch {
	case mode == validation.ModeUpdate:
		r.ID = KeyRule(e.PrimaryKey.Type)
	case !e.PrimaryKey.Generated:
		r.ID = validation.And(validation.Required(), KeyRule(e.PrimaryKey.Type))
	}

	for name, rel := range reg.Relationships(e.Name) {
		target := reg.GetEntity(rel.TargetEntity())
		if target == nil {
			continue
		}
		rr := RelationshipRule{Type: target.ResourceType(), ID: KeyRule(target.PrimaryKey.Type)}

		switch rel := rel.(type) {
		case metadata.BelongsTo:
			fk := e.GetField(rel.ForeignKey)
			rr.Nullable = fk == nil || fk.Nullable
			rr.Required = mode == validation.ModeCreate && fk != nil && fk.Required
			r.ToOne[name] = rr
		case metadata.BelongsToMany:
			r.ToMany[name] = rr
		}
	}
	return r
}

// KeyRule converts a resource id to the primary key type.
func KeyRule(pkType string) validation.Rule {
	switch pkType {
	case metadata.TypeInt, metadata.TypeBigInt:
		return validation.StringToInt()
	case metadata.TypeUUID:
		return validation.IsUUID()
	}
	return validation.IsString()
}

// EntityQueryRules accepts filters on attributes, on relationships (by
// related id) and on attributes of related entities one level deep.
// Sorting is limited to attributes and belongs-to attributes. Includes may
// reach two relationships deep.
func EntityQueryRules(reg *metadata.Registry, e *metadata.Entity, paging config.PagingConfig) QueryRules {
	r := QueryRules{
		Filters:      map[string]validation.Rule{},
		DefaultLimit: paging.DefaultLimit,
		MaxLimit:     paging.MaxLimit,
	}
	for name, typ := range reg.AttributeTypes(e.Name) {
		r.Filters[name] = validation.ArgumentRule(typ)
		r.Sorts = append(r.Sorts, name)
	}

	for name, rel := range reg.Relationships(e.Name) {
		target := reg.GetEntity(rel.TargetEntity())
		if target == nil {
			continue
		}
		r.Filters[name] = validation.ArgumentRule(target.PrimaryKey.Type)
		r.Includes = append(r.Includes, name)
		for sub := range reg.Relationships(target.Name) {
			r.Includes = append(r.Includes, name+"."+sub)
		}
		_, toOne := rel.(metadata.BelongsTo)
		for attr, typ := range reg.AttributeTypes(target.Name) {
			r.Filters[name+"."+attr] = validation.ArgumentRule(typ)
			if toOne {
				r.Sorts = append(r.Sorts, name+"."+attr)
			}
		}
	}
	return r
}
