package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jsonapi-backend/internal/metadata"
)

type Migrator struct {
	store  *Store
	logger *zap.Logger
}

func NewMigrator(store *Store, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{store: store, logger: logger}
}

// MigrateAll migrates every entity table, then every belongs-to-many
// intermediate table.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	entities := reg.AllEntities()
	for _, e := range entities {
		if err := m.Migrate(ctx, e); err != nil {
			return err
		}
	}
	for _, e := range entities {
		for _, rel := range reg.Relationships(e.Name) {
			btm, ok := rel.(metadata.BelongsToMany)
			if !ok {
				continue
			}
			if err := m.MigrateJoinTable(ctx, btm, e, reg.GetEntity(btm.Target)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

// MigrateJoinTable creates the intermediate table of a belongs-to-many
// relationship if it doesn't exist. Both sides declare the same table, so
// the second call is a no-op.
func (m *Migrator) MigrateJoinTable(ctx context.Context, rel metadata.BelongsToMany, source, target *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.IntermediateTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}
	if source == nil || target == nil {
		return fmt.Errorf("cannot resolve key types for join table %s", rel.IntermediateTable)
	}

	d := m.store.Dialect
	q := d.QuoteIdentifier
	sql := fmt.Sprintf(
		"CREATE TABLE %s (\n  %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n  %s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,\n  PRIMARY KEY (%s, %s)\n)",
		q(rel.IntermediateTable),
		q(rel.LocalKey), d.ColumnType(source.PrimaryKey.Type, 0), q(source.Table), q(source.PrimaryKey.Field),
		q(rel.RemoteKey), d.ColumnType(target.PrimaryKey.Type, 0), q(target.Table), q(target.PrimaryKey.Field),
		q(rel.LocalKey), q(rel.RemoteKey),
	)

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.IntermediateTable, err)
	}
	m.logger.Info("created join table", zap.String("table", rel.IntermediateTable))
	return nil
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	q := m.store.Dialect.QuoteIdentifier
	var cols []string
	for _, f := range entity.Fields {
		cols = append(cols, m.buildColumnDef(entity, &f))
	}
	if entity.GetField(entity.PrimaryKey.Field) == nil {
		cols = append([]string{q(entity.PrimaryKey.Field) + " " + m.store.Dialect.PrimaryKeyDef(entity.PrimaryKey)}, cols...)
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", q(entity.Table), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	m.logger.Info("created table", zap.String("entity", entity.Name), zap.String("table", entity.Table))

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	d := m.store.Dialect
	existing, err := d.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		// added columns stay nullable so existing rows remain valid
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			d.QuoteIdentifier(entity.Table), d.QuoteIdentifier(f.Name), d.ColumnType(f.Type, f.Precision))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
		m.logger.Info("added column", zap.String("table", entity.Table), zap.String("column", f.Name))
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	d := m.store.Dialect
	if f.Name == entity.PrimaryKey.Field {
		return d.QuoteIdentifier(f.Name) + " " + d.PrimaryKeyDef(entity.PrimaryKey)
	}

	col := d.QuoteIdentifier(f.Name) + " " + d.ColumnType(f.Type, f.Precision)
	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}

	if f.Default != nil {
		switch v := f.Default.(type) {
		case string:
			col += fmt.Sprintf(" DEFAULT '%s'", strings.ReplaceAll(v, "'", "''"))
		case float64:
			col += fmt.Sprintf(" DEFAULT %v", v)
		case bool:
			if d.Name() == "sqlite" {
				if v {
					col += " DEFAULT 1"
				} else {
					col += " DEFAULT 0"
				}
			} else {
				col += fmt.Sprintf(" DEFAULT %t", v)
			}
		default:
			col += fmt.Sprintf(" DEFAULT '%v'", v)
		}
	}
	return col
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	q := m.store.Dialect.QuoteIdentifier
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			q("idx_"+entity.Table+"_"+f.Name), q(entity.Table), q(f.Name))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}
