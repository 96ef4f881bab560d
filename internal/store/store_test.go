package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonapi-backend/internal/config"
	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/store"
	"jsonapi-backend/internal/testutil"
)

func openSQLite(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestBootstrapAndLoadAll(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.Bootstrap(ctx))
	// idempotent
	require.NoError(t, s.Bootstrap(ctx))

	for _, e := range testutil.Entities() {
		require.NoError(t, s.SaveEntity(ctx, s.DB, e))
	}

	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadAll(ctx, s.DB, reg, nil))

	assert.Len(t, reg.AllEntities(), len(testutil.Entities()))
	rel, ok := reg.Relationship("Comment", "emotions")
	require.True(t, ok)
	assert.Equal(t, "comments_emotions", rel.(metadata.BelongsToMany).IntermediateTable)
	assert.Equal(t, "id_board_fk", reg.GetEntity("Post").GetRelationshipDef("board").ForeignKey)
}

func TestMigrateAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	reg := testutil.Registry()
	require.NoError(t, store.NewMigrator(s, nil).MigrateAll(ctx, reg))

	for _, table := range []string{"boards", "posts", "comments", "emotions", "users", "categories", "comments_emotions"} {
		exists, err := s.Dialect.TableExists(ctx, s.DB, table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	b, err := query.NewBuilder(reg, "Board")
	require.NoError(t, err)
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	insert, err := b.CreateModel(map[string]any{"title": "general", "created_at": created})
	require.NoError(t, err)

	row, err := store.QueryRow(ctx, s.DB, insert)
	require.NoError(t, err)
	assert.EqualValues(t, 1, row["id_board"])

	sel, err := b.ByID(1).ToStatement()
	require.NoError(t, err)
	rows, err := store.QueryRows(ctx, s.DB, sel)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	store.NormalizeTypes(rows, reg.AttributeTypes("Board"))
	assert.Equal(t, "general", rows[0]["title"])
	assert.Equal(t, created, rows[0]["created_at"])
	assert.Nil(t, rows[0]["deleted_at"])

	_, err = store.QueryRow(ctx, s.DB, query.Statement{SQL: "SELECT id_board FROM boards WHERE id_board = :dcValue1", Args: []any{99}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMigrate_AddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	m := store.NewMigrator(s, nil)

	e := &metadata.Entity{
		Name: "Tag", Table: "tags",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: metadata.TypeInt, Generated: true},
		Fields:     []metadata.Field{{Name: "id", Type: metadata.TypeInt}, {Name: "label", Type: metadata.TypeString}},
	}
	require.NoError(t, m.Migrate(ctx, e))

	e.Fields = append(e.Fields, metadata.Field{Name: "color", Type: metadata.TypeString, Required: true})
	require.NoError(t, m.Migrate(ctx, e))

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "tags")
	require.NoError(t, err)
	assert.Contains(t, cols, "color")
}

func TestMapError_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	reg := testutil.Registry()
	require.NoError(t, store.NewMigrator(s, nil).MigrateAll(ctx, reg))

	b, err := query.NewBuilder(reg, "User")
	require.NoError(t, err)
	insert, err := b.CreateModel(map[string]any{"first_name": "a", "email": "a@example.com"})
	require.NoError(t, err)

	_, err = store.QueryRow(ctx, s.DB, insert)
	require.NoError(t, err)
	_, err = store.QueryRow(ctx, s.DB, insert)
	require.Error(t, err)
	assert.ErrorIs(t, store.MapError(s.Dialect, err), store.ErrUniqueViolation)
}

func TestNormalizeTypes(t *testing.T) {
	rows := []map[string]any{{"flag": int64(1), "at": "2024-01-02 03:04:05", "day": "2024-01-02", "name": "2024-01-02"}}
	store.NormalizeTypes(rows, map[string]string{
		"flag": metadata.TypeBoolean, "at": metadata.TypeTimestamp, "day": metadata.TypeDate, "name": metadata.TypeString,
	})
	assert.Equal(t, true, rows[0]["flag"])
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), rows[0]["at"])
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), rows[0]["day"])
	assert.Equal(t, "2024-01-02", rows[0]["name"])
}

func TestPostgresDialect_ColumnTypes(t *testing.T) {
	d := store.NewDialect("postgres")
	assert.Equal(t, "pgx", d.DriverName())
	assert.Equal(t, "NUMERIC(18,2)", d.ColumnType(metadata.TypeDecimal, 2))
	assert.Equal(t, "SERIAL PRIMARY KEY", d.PrimaryKeyDef(metadata.PrimaryKey{Field: "id", Type: metadata.TypeInt, Generated: true}))
	assert.Equal(t, `"user"`, d.QuoteIdentifier("user"))
}
