package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SchemaFile is the on-disk layout read by LoadFile.
type SchemaFile struct {
	Entities []*Entity `json:"entities"`
}

// LoadFile reads a JSON schema file and loads it into the registry.
func LoadFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	var file SchemaFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return reg.Load(file.Entities)
}

// LoadAll reads all entities and relationships from the system tables and
// populates the registry.
func LoadAll(ctx context.Context, q sqlx.QueryerContext, reg *Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	entities, err := loadEntities(ctx, q, logger)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}

	if err := loadRelations(ctx, q, entities, logger); err != nil {
		return fmt.Errorf("load relations: %w", err)
	}

	list := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		list = append(list, e)
	}
	if err := reg.Load(list); err != nil {
		return err
	}

	logger.Info("registry loaded", zap.Int("entities", len(list)))
	return nil
}

func loadEntities(ctx context.Context, q sqlx.QueryerContext, logger *zap.Logger) (map[string]*Entity, error) {
	rows, err := q.QueryxContext(ctx, "SELECT name, definition FROM _entities ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make(map[string]*Entity)
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}

		var entity Entity
		if err := json.Unmarshal(defJSON, &entity); err != nil {
			logger.Warn("skipping entity with invalid definition", zap.String("entity", name), zap.Error(err))
			continue
		}
		entity.Name = name
		entities[name] = &entity
	}
	return entities, rows.Err()
}

func loadRelations(ctx context.Context, q sqlx.QueryerContext, entities map[string]*Entity, logger *zap.Logger) error {
	rows, err := q.QueryxContext(ctx, "SELECT source, definition FROM _relations ORDER BY source, name")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var defJSON []byte
		if err := rows.Scan(&source, &defJSON); err != nil {
			return fmt.Errorf("scan relation row: %w", err)
		}

		var def RelationshipDef
		if err := json.Unmarshal(defJSON, &def); err != nil {
			logger.Warn("skipping relation with invalid definition", zap.String("source", source), zap.Error(err))
			continue
		}
		owner := entities[source]
		if owner == nil {
			logger.Warn("skipping relation of unknown entity", zap.String("source", source), zap.String("relation", def.Name))
			continue
		}
		owner.Relationships = append(owner.Relationships, def)
	}
	return rows.Err()
}
