package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	return query.QuoteIdentifier(name)
}

func (d *PostgresDialect) ColumnType(fieldType string, precision int) string {
	switch fieldType {
	case metadata.TypeString, metadata.TypeText:
		return "TEXT"
	case metadata.TypeInt:
		return "INTEGER"
	case metadata.TypeBigInt:
		return "BIGINT"
	case metadata.TypeFloat:
		return "DOUBLE PRECISION"
	case metadata.TypeDecimal:
		if precision > 0 {
			return fmt.Sprintf("NUMERIC(18,%d)", precision)
		}
		return "NUMERIC"
	case metadata.TypeBoolean:
		return "BOOLEAN"
	case metadata.TypeUUID:
		return "UUID"
	case metadata.TypeTimestamp:
		return "TIMESTAMPTZ"
	case metadata.TypeDate:
		return "DATE"
	case metadata.TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) PrimaryKeyDef(pk metadata.PrimaryKey) string {
	if pk.Generated {
		switch pk.Type {
		case metadata.TypeInt:
			return "SERIAL PRIMARY KEY"
		case metadata.TypeBigInt:
			return "BIGSERIAL PRIMARY KEY"
		}
	}
	return d.ColumnType(pk.Type, 0) + " PRIMARY KEY"
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return postgresSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, q sqlx.QueryerContext, tableName string) (bool, error) {
	var exists bool
	err := q.QueryRowxContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, q sqlx.QueryerContext, tableName string) (map[string]string, error) {
	rows, err := q.QueryxContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(err.Error(), "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const postgresSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _entities (
    name        TEXT PRIMARY KEY,
    table_name  TEXT NOT NULL UNIQUE,
    definition  JSONB NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _relations (
    name        TEXT NOT NULL,
    source      TEXT NOT NULL REFERENCES _entities(name) ON DELETE CASCADE,
    target      TEXT NOT NULL,
    definition  JSONB NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (source, name)
);
`
