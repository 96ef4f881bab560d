// Package query builds parameterised SQL for one root entity: counter-based
// table aliases, relationship joins, filter and sort translation, and
// insert/update/delete statements with typed named parameters.
package query

import "jsonapi-backend/internal/metadata"

// Schema is the metadata the builder needs. *metadata.Registry satisfies it.
type Schema interface {
	Table(entity string) string
	PrimaryKey(entity string) string
	Attributes(entity string) []string
	AttributeTypes(entity string) map[string]string
	Relationship(entity, name string) (metadata.Relationship, bool)
}
