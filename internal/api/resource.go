package api

import (
	"fmt"
	"strings"

	"jsonapi-backend/internal/metadata"
)

// resource renders a row as a resource object. Included relationships are
// nested under "relationships"; fields restricts attributes per type.
func (h *Handler) resource(e *metadata.Entity, row map[string]any, fields map[string][]string) map[string]any {
	pk := e.PrimaryKey.Field
	sparse := fieldSet(fields, e.ResourceType())
	attrs := make(map[string]any, len(row))
	rels := make(map[string]any)

	for k, v := range row {
		if k == pk || strings.HasPrefix(k, "_") {
			continue
		}
		if rel, ok := h.registry.Relationship(e.Name, k); ok {
			rels[k] = map[string]any{"data": h.related(rel.TargetEntity(), v, fields)}
			continue
		}
		if f := e.GetField(k); f != nil && f.Hashed {
			continue
		}
		if sparse != nil && !sparse[k] {
			continue
		}
		attrs[k] = v
	}

	res := map[string]any{
		"type":       e.ResourceType(),
		"id":         fmt.Sprint(row[pk]),
		"attributes": attrs,
	}
	if len(rels) > 0 {
		res["relationships"] = rels
	}
	return res
}

func (h *Handler) related(entity string, v any, fields map[string][]string) any {
	target := h.registry.GetEntity(entity)
	switch v := v.(type) {
	case map[string]any:
		return h.resource(target, v, fields)
	case []map[string]any:
		return h.resources(target, v, fields)
	}
	return nil
}

func (h *Handler) resources(e *metadata.Entity, rows []map[string]any, fields map[string][]string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = h.resource(e, row, fields)
	}
	return out
}

func fieldSet(fields map[string][]string, typ string) map[string]bool {
	names, ok := fields[typ]
	if !ok {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
