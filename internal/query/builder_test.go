package query_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/testutil"
)

func newBuilder(t *testing.T, entity string) *query.Builder {
	t.Helper()
	b, err := query.NewBuilder(testutil.Registry(), entity)
	require.NoError(t, err)
	return b
}

func TestBuilder_FilterAndSortOnRoot(t *testing.T) {
	b := newBuilder(t, "Board")
	errs := b.AddFilters(b.Alias(), query.And, []query.FilterParameter{
		{Field: "title", Column: "title", Operator: query.OpEquals, Args: []any{"aaa"}},
	})
	require.Empty(t, errs)
	b.AddSorts(b.Alias(), []query.SortParameter{{Field: "title", Column: "title", Ascending: true}})

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT boards1.id_board, boards1.title, boards1.created_at, boards1.updated_at, boards1.deleted_at "+
			"FROM boards AS boards1 WHERE boards1.title = :dcValue1 ORDER BY boards1.title ASC",
		stmt.SQL)
	assert.Equal(t, map[string]any{"dcValue1": "aaa"}, stmt.Params())
}

func TestBuilder_UnknownEntity(t *testing.T) {
	_, err := query.NewBuilder(testutil.Registry(), "Nope")
	assert.ErrorIs(t, err, query.ErrUnknownEntity)
}

func TestBuilder_AliasesNeverRepeat(t *testing.T) {
	b := newBuilder(t, "Category")
	assert.Equal(t, "categories1", b.Alias())

	seen := map[string]bool{b.Alias(): true}
	for i := 0; i < 10; i++ {
		alias := b.CreateAlias("categories")
		assert.False(t, seen[alias], "alias %s reused", alias)
		seen[alias] = true
	}

	first, err := b.CreateRelationshipAlias("parent")
	require.NoError(t, err)
	second, err := b.CreateRelationshipAlias("parent")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.False(t, seen[first] || seen[second])
	assert.Len(t, b.Aliases("categories"), 13)
}

func TestBuilder_SelfJoin(t *testing.T) {
	b := newBuilder(t, "Category")
	errs := b.AddRelationshipFiltersAndSorts("parent",
		[]query.FilterParameter{{Field: "parent.name", Relationship: "parent", Column: "name", Operator: query.OpEquals, Args: []any{"root"}}},
		nil, query.And, nil)
	require.Empty(t, errs)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT categories1.id_category, categories1.id_parent_fk, categories1.name "+
			"FROM categories AS categories1 "+
			"INNER JOIN categories AS categories2 ON categories1.id_parent_fk = categories2.id_category "+
			"WHERE categories2.name = :dcValue1",
		stmt.SQL)
}

func TestBuilder_HasManyFiltersJoinOnceAndGroupOnce(t *testing.T) {
	b := newBuilder(t, "Board")
	errs := b.AddRelationshipFiltersAndSorts("posts", []query.FilterParameter{
		{Field: "posts.title", Relationship: "posts", Column: "title", Operator: query.OpEquals, Args: []any{"a"}},
		{Field: "posts.text", Relationship: "posts", Column: "text", Operator: query.OpLike, Args: []any{"%b%"}},
	}, nil, query.And, nil)
	require.Empty(t, errs)

	// a second batch against the same relationship reuses the join
	errs = b.AddRelationshipFiltersAndSorts("posts", []query.FilterParameter{
		{Field: "posts.id_post", Relationship: "posts", Column: "id_post", Operator: query.OpGreaterThan, Args: []any{3}},
	}, nil, query.And, nil)
	require.Empty(t, errs)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(stmt.SQL, "INNER JOIN"))
	assert.Equal(t, 1, strings.Count(stmt.SQL, "GROUP BY"))
	assert.Equal(t,
		"SELECT boards1.id_board, boards1.title, boards1.created_at, boards1.updated_at, boards1.deleted_at "+
			"FROM boards AS boards1 INNER JOIN posts AS posts2 ON boards1.id_board = posts2.id_board_fk "+
			"WHERE (posts2.title = :dcValue1 AND posts2.text LIKE :dcValue2) AND posts2.id_post > :dcValue3 "+
			"GROUP BY boards1.id_board",
		stmt.SQL)
	assert.Equal(t, []any{"a", "%b%", 3}, stmt.Args)
}

func TestBuilder_BelongsToKeyFilterSkipsJoin(t *testing.T) {
	b := newBuilder(t, "Post")
	errs := b.AddRelationshipFiltersAndSorts("board", []query.FilterParameter{
		{Field: "board", Relationship: "board", Operator: query.OpIsNull},
	}, nil, query.And, nil)
	require.Empty(t, errs)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "JOIN")
	assert.Contains(t, stmt.SQL, "WHERE posts1.id_board_fk IS NULL")
	assert.Empty(t, stmt.Args)

	b = newBuilder(t, "Post")
	errs = b.AddRelationshipFiltersAndSorts("board", []query.FilterParameter{
		{Field: "board.id_board", Relationship: "board", Column: "id_board", Operator: query.OpIn, Args: []any{1, 2}},
	}, nil, query.And, nil)
	require.Empty(t, errs)
	stmt, err = b.ToStatement()
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "JOIN")
	assert.Contains(t, stmt.SQL, "WHERE posts1.id_board_fk IN (:dcValue1,:dcValue2)")
}

func TestBuilder_BelongsToAttributeFilterJoins(t *testing.T) {
	b := newBuilder(t, "Post")
	errs := b.AddRelationshipFiltersAndSorts("board", []query.FilterParameter{
		{Field: "board.title", Relationship: "board", Column: "title", Operator: query.OpIsNull},
	}, nil, query.And, nil)
	require.Empty(t, errs)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "INNER JOIN boards AS boards2 ON posts1.id_board_fk = boards2.id_board")
	assert.Contains(t, stmt.SQL, "WHERE boards2.title IS NULL")
	assert.NotContains(t, stmt.SQL, "GROUP BY")
}

func TestBuilder_BelongsToManyJoinsThroughIntermediate(t *testing.T) {
	b := newBuilder(t, "Comment")
	errs := b.AddRelationshipFiltersAndSorts("emotions", []query.FilterParameter{
		{Field: "emotions.name", Relationship: "emotions", Column: "name", Operator: query.OpEquals, Args: []any{"joy"}},
	}, nil, query.And, nil)
	require.Empty(t, errs)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL,
		"FROM comments AS comments1 "+
			"INNER JOIN comments_emotions AS comments_emotions2 ON comments1.id_comment = comments_emotions2.id_comment_fk "+
			"INNER JOIN emotions AS emotions3 ON comments_emotions2.id_emotion_fk = emotions3.id_emotion "+
			"WHERE emotions3.name = :dcValue1 GROUP BY comments1.id_comment")
}

func TestBuilder_RelationshipSorts(t *testing.T) {
	b := newBuilder(t, "Post")
	errs := b.AddRelationshipFiltersAndSorts("board", nil, []query.SortParameter{
		{Field: "board.title", Relationship: "board", Column: "title", Ascending: false},
	}, query.And, nil)
	require.Empty(t, errs)
	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "INNER JOIN boards AS boards2")
	assert.True(t, strings.HasSuffix(stmt.SQL, "ORDER BY boards2.title DESC"))

	b = newBuilder(t, "Board")
	errs = b.AddRelationshipFiltersAndSorts("posts", nil, []query.SortParameter{
		{Field: "posts.title", Relationship: "posts", Column: "title", Ascending: true},
	}, query.And, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, query.CodeInvalidSort, errs[0].Code)
	assert.Equal(t, "posts.title", errs[0].Field)
}

func TestBuilder_UnknownRelationship(t *testing.T) {
	b := newBuilder(t, "Post")
	errs := b.AddRelationshipFiltersAndSorts("nope", []query.FilterParameter{
		{Field: "nope.x", Relationship: "nope", Column: "x", Operator: query.OpEquals, Args: []any{1}},
	}, nil, query.And, nil)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], query.ErrUnknownRelationship)
}

func TestBuilder_OrGroupInsideLink(t *testing.T) {
	b := newBuilder(t, "Board")
	link := query.NewComposite(query.Or)
	errs := b.AddRelationshipFiltersAndSorts("posts", []query.FilterParameter{
		{Field: "posts.title", Relationship: "posts", Column: "title", Operator: query.OpEquals, Args: []any{"a", "b"}},
	}, nil, query.Or, link)
	require.Empty(t, errs)
	query.ApplyFilter(link, b.Column(b.Alias(), "title"),
		query.FilterParameter{Field: "title", Column: "title", Operator: query.OpEquals, Args: []any{"c"}}, &errs)
	b.Where(link)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE ((posts2.title = :dcValue1 OR posts2.title = :dcValue2) OR boards1.title = :dcValue3)")
}

func TestBuilder_CountAndPaging(t *testing.T) {
	b := newBuilder(t, "Board")
	b.AddFilters(b.Alias(), query.And, []query.FilterParameter{
		{Field: "title", Column: "title", Operator: query.OpLike, Args: []any{"a%"}},
	})
	b.OrderBy(b.Alias(), "title", true).Limit(10).Offset(20)

	stmt, err := b.ToStatement()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(stmt.SQL, "ORDER BY boards1.title ASC LIMIT 10 OFFSET 20"))

	count, err := b.CountStatement()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS total FROM boards AS boards1 WHERE boards1.title LIKE :dcValue1", count.SQL)

	_, err = b.RelationshipAlias("posts")
	require.NoError(t, err)
	count, err = b.CountStatement()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(count.SQL, "SELECT COUNT(DISTINCT boards1.id_board) AS total"))
}

func TestBuilder_ByIDs(t *testing.T) {
	b := newBuilder(t, "Board")
	stmt, err := b.ByIDs([]any{1, 2, 3}).ToStatement()
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE boards1.id_board IN (:dcValue1,:dcValue2,:dcValue3)")

	b = newBuilder(t, "Board")
	stmt, err = b.ByIDs(nil).ToStatement()
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE 1 = 0")
}

func TestNewRelatedBuilder(t *testing.T) {
	reg := testutil.Registry()

	tests := []struct {
		entity, rel string
		want        string
	}{
		{"Post", "board",
			"FROM boards AS boards1 INNER JOIN posts AS posts2 ON boards1.id_board = posts2.id_board_fk WHERE posts2.id_post = :dcValue1"},
		{"Board", "posts",
			"FROM posts AS posts1 WHERE posts1.id_board_fk = :dcValue1"},
		{"Comment", "emotions",
			"FROM emotions AS emotions1 INNER JOIN comments_emotions AS comments_emotions2 ON emotions1.id_emotion = comments_emotions2.id_emotion_fk WHERE comments_emotions2.id_comment_fk = :dcValue1"},
	}
	for _, tt := range tests {
		t.Run(tt.entity+"."+tt.rel, func(t *testing.T) {
			b, _, err := query.NewRelatedBuilder(reg, tt.entity, tt.rel, 7)
			require.NoError(t, err)
			stmt, err := b.ToStatement()
			require.NoError(t, err)
			assert.Contains(t, stmt.SQL, tt.want)
			assert.Equal(t, []any{7}, stmt.Args)
		})
	}

	_, _, err := query.NewRelatedBuilder(reg, "Post", "nope", 1)
	assert.ErrorIs(t, err, query.ErrUnknownRelationship)
}

func TestBuilder_WriteStatements(t *testing.T) {
	b := newBuilder(t, "Board")
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	stmt, err := b.CreateModel(map[string]any{"title": "t", "created_at": created})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO boards (created_at,title) VALUES (:dcValue1,:dcValue2) RETURNING id_board", stmt.SQL)
	assert.Equal(t, map[string]any{"dcValue1": "2024-01-02 03:04:05", "dcValue2": "t"}, stmt.Params())

	stmt, err = b.UpdateModels([]any{5}, map[string]any{"title": "new"})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE boards SET title = :dcValue1 WHERE id_board = :dcValue2", stmt.SQL)
	assert.Equal(t, []any{"new", 5}, stmt.Args)

	stmt, err = b.DeleteModels([]any{5, 6})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM boards WHERE id_board IN (:dcValue1,:dcValue2)", stmt.SQL)

	_, err = b.CreateModel(map[string]any{"nope": 1})
	assert.ErrorIs(t, err, query.ErrUnknownAttribute)

	_, err = b.UpdateModels([]any{5}, map[string]any{})
	assert.Error(t, err)
}

func TestBuilder_ToManyLinks(t *testing.T) {
	b := newBuilder(t, "Comment")

	stmt, err := b.CreateToManyLinks("emotions", 3, []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO comments_emotions (id_comment_fk,id_emotion_fk) VALUES (:dcValue1,:dcValue2),(:dcValue3,:dcValue4)", stmt.SQL)
	assert.Equal(t, []any{3, 1, 3, 2}, stmt.Args)

	stmt, err = b.ClearToManyLinks("emotions", 3)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM comments_emotions WHERE id_comment_fk = :dcValue1", stmt.SQL)

	_, err = b.CreateToManyLinks("post", 3, []any{1})
	assert.ErrorIs(t, err, query.ErrUnsupported)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "title", query.QuoteIdentifier("title"))
	assert.Equal(t, `"user"`, query.QuoteIdentifier("user"))
	assert.Equal(t, `"Title"`, query.QuoteIdentifier("Title"))
	assert.Equal(t, `"a""b"`, query.QuoteIdentifier(`a"b`))
}
