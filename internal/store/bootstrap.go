package store

import (
	"context"
	"encoding/json"
	"fmt"

	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
)

// Bootstrap creates the metadata system tables.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}

// SaveEntity writes an entity definition and its relationships to the system
// tables, replacing any previous version.
func (s *Store) SaveEntity(ctx context.Context, q Querier, e *metadata.Entity) error {
	rels := e.Relationships
	def := *e
	def.Relationships = nil
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.Name, err)
	}

	stmts := []query.Statement{
		{SQL: "DELETE FROM _relations WHERE source = :dcValue1", Args: []any{e.Name}},
		{SQL: "DELETE FROM _entities WHERE name = :dcValue1", Args: []any{e.Name}},
		{SQL: "INSERT INTO _entities (name, table_name, definition) VALUES (:dcValue1, :dcValue2, :dcValue3)",
			Args: []any{e.Name, e.Table, string(data)}},
	}
	for _, rel := range rels {
		relData, err := json.Marshal(rel)
		if err != nil {
			return fmt.Errorf("encode relation %s.%s: %w", e.Name, rel.Name, err)
		}
		stmts = append(stmts, query.Statement{
			SQL:  "INSERT INTO _relations (name, source, target, definition) VALUES (:dcValue1, :dcValue2, :dcValue3, :dcValue4)",
			Args: []any{rel.Name, e.Name, rel.Target, string(relData)},
		})
	}

	for _, stmt := range stmts {
		if _, err := Exec(ctx, q, stmt); err != nil {
			return fmt.Errorf("save entity %s: %w", e.Name, s.Dialect.MapError(err))
		}
	}
	return nil
}
