package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Register sqlite as database/sql driver

	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Querier is implemented by both *sqlx.DB and *sqlx.Tx.
type Querier = sqlx.ExtContext

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store wraps a database connection and dialect.
type Store struct {
	DB      *sqlx.DB
	Dialect Dialect
}

// New creates a Store from config.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	dialect := NewDialect(driver)

	db, err := sqlx.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite: single writer; an in-memory database lives on one connection
		db.SetMaxOpenConns(1)
		if cfg.Name != ":memory:" {
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("enable WAL: %w", err)
			}
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{DB: db, Dialect: dialect}, nil
}

// Close closes the database connection.
func (s *Store) Close() {
	s.DB.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return s.DB.BeginTxx(ctx, nil)
}

// QueryRows executes a statement and returns results as []map[string]any.
func QueryRows(ctx context.Context, q Querier, stmt query.Statement) ([]map[string]any, error) {
	rows, err := sqlx.NamedQueryContext(ctx, q, stmt.SQL, stmt.Params())
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for col, v := range row {
			row[col] = normalizeValue(v)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// QueryRow executes a statement and returns a single row as map[string]any.
func QueryRow(ctx context.Context, q Querier, stmt query.Statement) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec executes a statement and returns the number of rows affected.
func Exec(ctx context.Context, q Querier, stmt query.Statement) (int64, error) {
	result, err := sqlx.NamedExecContext(ctx, q, stmt.SQL, stmt.Params())
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MapError maps a database error to a well-known sentinel error using the store's dialect.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}

// normalizeValue converts driver-specific types to JSON-serializable Go types.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		// database/sql often returns []byte for TEXT columns
		return string(val)
	default:
		return val
	}
}

var timestampLayouts = []string{
	query.TimestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	query.DateLayout,
}

// NormalizeTypes converts stored representations back to the attribute's
// Go type: text timestamps (SQLite) to time.Time and 0/1 integers to bool.
func NormalizeTypes(rows []map[string]any, types map[string]string) {
	if len(rows) == 0 || len(types) == 0 {
		return
	}
	for _, row := range rows {
		for col, v := range row {
			switch types[col] {
			case metadata.TypeTimestamp, metadata.TypeDate:
				if s, ok := v.(string); ok {
					row[col] = parseTime(s)
				}
			case metadata.TypeBoolean:
				switch val := v.(type) {
				case int64:
					row[col] = val != 0
				case int:
					row[col] = val != 0
				case float64:
					row[col] = val != 0
				}
			}
		}
	}
}

func parseTime(s string) any {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return s
}
