package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonapi-backend/internal/query"
)

func TestParseFilterSet_DefaultInference(t *testing.T) {
	set, errs := query.ParseFilterSet(map[string]any{
		"a": "",
		"b": "5",
		"c": "5,6",
	})
	require.Empty(t, errs)
	require.Len(t, set.Params, 3)

	assert.Equal(t, query.OpIsNull, set.Params[0].Operator)
	assert.Empty(t, set.Params[0].Args)

	assert.Equal(t, query.OpEquals, set.Params[1].Operator)
	assert.Equal(t, []any{"5"}, set.Params[1].Args)

	assert.Equal(t, query.OpIn, set.Params[2].Operator)
	assert.Equal(t, []any{"5", "6"}, set.Params[2].Args)
}

func TestParseFilterSet_OperatorMaps(t *testing.T) {
	set, errs := query.ParseFilterSet(map[string]any{
		"title":       map[string]any{"like": "a,b%", "in": "x,y"},
		"author.name": map[string]any{"eq": "bob"},
		"deleted_at":  map[string]any{"is-null": ""},
	})
	require.Empty(t, errs)
	assert.Equal(t, query.And, set.Mode)
	require.Len(t, set.Params, 4)

	assert.Equal(t, query.FilterParameter{Field: "author.name", Relationship: "author", Column: "name", Operator: query.OpEquals, Args: []any{"bob"}}, set.Params[0])
	assert.Equal(t, query.FilterParameter{Field: "deleted_at", Column: "deleted_at", Operator: query.OpIsNull}, set.Params[1])
	assert.Equal(t, []any{"x", "y"}, set.Params[2].Args)
	assert.Equal(t, query.OpLike, set.Params[3].Operator)
	assert.Equal(t, []any{"a,b%"}, set.Params[3].Args)
}

func TestParseFilterSet_AndOrWrapper(t *testing.T) {
	set, errs := query.ParseFilterSet(map[string]any{
		"or": map[string]any{"title": "a", "text": "b"},
	})
	require.Empty(t, errs)
	assert.Equal(t, query.Or, set.Mode)
	assert.Len(t, set.Params, 2)

	_, errs = query.ParseFilterSet(map[string]any{
		"and":   map[string]any{"title": "a"},
		"title": "b",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "title", errs[0].Field)
	assert.Equal(t, query.CodeAndOrExclusive, errs[0].Code)

	_, errs = query.ParseFilterSet(map[string]any{"and": "x"})
	require.Len(t, errs, 1)
	assert.Equal(t, query.CodeInvalidArgument, errs[0].Code)
}

func TestParseFilterSet_UnknownOperator(t *testing.T) {
	set, errs := query.ParseFilterSet(map[string]any{
		"title": map[string]any{"between": "1,2", "eq": "x"},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "title", errs[0].Field)
	assert.Equal(t, "between", errs[0].Operator)
	require.Len(t, set.Params, 1)
}

func TestParseFilterSet_NullOperatorsTakeNoArguments(t *testing.T) {
	set, errs := query.ParseFilterSet(map[string]any{
		"deleted_at": map[string]any{"is-null": "yes", "not-null": []string{""}},
		"title":      map[string]any{"is-not-null": ""},
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "deleted_at", errs[0].Field)
	assert.Equal(t, "is-null", errs[0].Operator)
	assert.Equal(t, query.CodeInvalidArgument, errs[0].Code)
	assert.ErrorIs(t, errs[0], query.ErrInvalidArgument)

	require.Len(t, set.Params, 2)
	assert.Equal(t, query.FilterParameter{Field: "deleted_at", Column: "deleted_at", Operator: query.OpIsNotNull}, set.Params[0])
	assert.Equal(t, query.OpIsNotNull, set.Params[1].Operator)
}

func TestParseSort(t *testing.T) {
	sorts, errs := query.ParseSort("title,-created_at,+author.name")
	require.Empty(t, errs)
	assert.Equal(t, []query.SortParameter{
		{Field: "title", Column: "title", Ascending: true},
		{Field: "created_at", Column: "created_at", Ascending: false},
		{Field: "author.name", Relationship: "author", Column: "name", Ascending: true},
	}, sorts)

	_, errs = query.ParseSort("title,,-")
	assert.Len(t, errs, 2)

	sorts, errs = query.ParseSort("")
	assert.Nil(t, sorts)
	assert.Empty(t, errs)
}

func TestStatement_Params(t *testing.T) {
	stmt := query.Statement{SQL: "x", Args: []any{"a", 2}}
	assert.Equal(t, map[string]any{"dcValue1": "a", "dcValue2": 2}, stmt.Params())
}

func TestNamedPlaceholders(t *testing.T) {
	sql, err := query.NamedPlaceholders.ReplacePlaceholders("a = ? AND b ?? c AND d IN (?,?)")
	require.NoError(t, err)
	assert.Equal(t, "a = :dcValue1 AND b ? c AND d IN (:dcValue2,:dcValue3)", sql)
}
