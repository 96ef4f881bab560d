package jsonapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonapi-backend/internal/testutil"
	"jsonapi-backend/internal/validation"
)

func dataParser(t *testing.T, entity string, mode validation.Mode) *DataParser {
	t.Helper()
	reg := testutil.Registry()
	e := reg.GetEntity(entity)
	require.NotNil(t, e)
	return NewDataParser(CompileDataRules(EntityDataRules(reg, e, mode)), nil)
}

func pointers(c *ErrorCollection) []string {
	out := make([]string, 0, len(c.Errors))
	for _, e := range c.Errors {
		if e.Source != nil {
			out = append(out, e.Source.Pointer)
		}
	}
	return out
}

func TestDataParser_Create(t *testing.T) {
	p := dataParser(t, "Post", validation.ModeCreate)
	doc := map[string]any{"data": map[string]any{
		"type":       "posts",
		"attributes": map[string]any{"title": "Hello", "text": "First"},
		"relationships": map[string]any{
			"board": map[string]any{"data": map[string]any{"type": "boards", "id": "1"}},
		},
	}}

	require.True(t, p.Parse(context.Background(), doc), "%+v", p.Errors().Errors)
	assert.Equal(t, map[string]any{"title": "Hello", "text": "First"}, p.Attributes())
	assert.Equal(t, map[string]any{"board": int64(1)}, p.ToOne())
	assert.Empty(t, p.ToMany())
	assert.Nil(t, p.ID())
	assert.Equal(t, []string{"text", "title", "board"}, p.Captures().Keys())
}

func TestDataParser_SectionsAreIndependent(t *testing.T) {
	p := dataParser(t, "Post", validation.ModeCreate)
	doc := map[string]any{"data": map[string]any{
		"type":       "boards",
		"id":         "9",
		"attributes": map[string]any{"text": 12, "color": "red"},
		"relationships": map[string]any{
			"board": map[string]any{"links": map[string]any{}},
		},
	}}

	require.False(t, p.Parse(context.Background(), doc))
	assert.ElementsMatch(t, []string{
		"/data/type",
		"/data/id",
		"/data/attributes/color",
		"/data/attributes/text",
		"/data/attributes/title",
		"/data/relationships/board",
	}, pointers(p.Errors()))
	assert.Equal(t, 422, p.Errors().Status())
}

func TestDataParser_EnvelopeKeepsSectionErrors(t *testing.T) {
	ctx := context.Background()
	p := dataParser(t, "Post", validation.ModeCreate)

	require.False(t, p.Parse(ctx, map[string]any{}))
	assert.ElementsMatch(t, []string{"/data", "/data/type", "/data/attributes/title"}, pointers(p.Errors()))

	require.False(t, p.Parse(ctx, map[string]any{"data": "posts"}))
	assert.ElementsMatch(t, []string{"/data", "/data/type", "/data/attributes/title"}, pointers(p.Errors()))
	assert.Equal(t, CodeInvalidDocument, p.Errors().Errors[0].Code)

	require.False(t, p.Parse(ctx, []any{}))
	assert.ElementsMatch(t, []string{"", "/data/type", "/data/attributes/title"}, pointers(p.Errors()))

	require.False(t, p.ParseBytes(ctx, []byte(`{"data":`)))
	require.Len(t, p.Errors().Errors, 1)
	assert.Equal(t, CodeInvalidDocument, p.Errors().Errors[0].Code)

	tags := NewDataParser(CompileDataRules(DataRules{
		Type:       "tags",
		ID:         validation.And(validation.Required(), validation.IsString()),
		Attributes: map[string]validation.Rule{"label": validation.Required()},
	}), nil)
	require.False(t, tags.Parse(ctx, map[string]any{}))
	assert.ElementsMatch(t, []string{"/data", "/data/type", "/data/id", "/data/attributes/label"}, pointers(tags.Errors()))
}

func TestDataParser_ToMany(t *testing.T) {
	p := dataParser(t, "Comment", validation.ModeCreate)
	doc := func(linkage any) map[string]any {
		return map[string]any{"data": map[string]any{
			"type":          "comments",
			"attributes":    map[string]any{"text": "nice"},
			"relationships": map[string]any{"emotions": map[string]any{"data": linkage}},
		}}
	}

	require.True(t, p.Parse(context.Background(), doc([]any{
		map[string]any{"type": "emotions", "id": "1"},
		map[string]any{"type": "emotions", "id": "2"},
	})))
	assert.Equal(t, map[string][]any{"emotions": {int64(1), int64(2)}}, p.ToMany())

	require.True(t, p.Parse(context.Background(), doc([]any{})))
	assert.Equal(t, map[string][]any{"emotions": {}}, p.ToMany())

	for _, bad := range []any{
		[]any{map[string]any{"type": "emotions", "id": "1"}, nil},
		[]any{map[string]any{"type": "users", "id": "1"}},
		[]any{map[string]any{"type": "emotions", "id": map[string]any{}}},
		map[string]any{"type": "emotions", "id": "1"},
		nil,
	} {
		require.False(t, p.Parse(context.Background(), doc(bad)))
		require.Len(t, p.Errors().Errors, 1, "%v", bad)
		assert.Equal(t, CodeInvalidRelationship, p.Errors().Errors[0].Code)
		assert.Empty(t, p.ToMany())
	}
}

func TestDataParser_ToOneShape(t *testing.T) {
	p := dataParser(t, "Category", validation.ModeCreate)
	doc := func(linkage any) map[string]any {
		return map[string]any{"data": map[string]any{
			"type":          "categories",
			"attributes":    map[string]any{"name": "root"},
			"relationships": map[string]any{"parent": map[string]any{"data": linkage}},
		}}
	}

	require.True(t, p.Parse(context.Background(), doc(nil)))
	assert.Equal(t, map[string]any{"parent": nil}, p.ToOne())

	require.False(t, p.Parse(context.Background(), doc([]any{})))
	assert.Equal(t, []string{"/data/relationships/parent"}, pointers(p.Errors()))

	require.False(t, p.Parse(context.Background(), doc(map[string]any{"type": "categories", "id": "x"})))
	assert.Equal(t, validation.CodeInt, p.Errors().Errors[0].Code)
}

func TestDataParser_Update(t *testing.T) {
	p := dataParser(t, "Board", validation.ModeUpdate).ExpectID("7").IgnoreUnknowns()
	doc := map[string]any{"data": map[string]any{
		"type":       "boards",
		"id":         "7",
		"attributes": map[string]any{"title": "Renamed", "legacy": true},
	}}

	require.True(t, p.Parse(context.Background(), doc), "%+v", p.Errors().Errors)
	assert.Equal(t, int64(7), p.ID())
	assert.Equal(t, map[string]any{"title": "Renamed"}, p.Attributes())

	doc["data"].(map[string]any)["id"] = "8"
	require.False(t, p.Parse(context.Background(), doc))
	assert.Equal(t, CodeIDMismatch, p.Errors().Errors[0].Code)
	assert.Equal(t, 409, p.Errors().Status())
}

func TestDataParser_ParseBytesKeepsNumbers(t *testing.T) {
	p := dataParser(t, "Post", validation.ModeCreate)
	body := []byte(`{"data":{"type":"posts","attributes":{"title":"T"},
		"relationships":{"user":{"data":{"type":"users","id":12}}}}}`)

	require.True(t, p.ParseBytes(context.Background(), body), "%+v", p.Errors().Errors)
	assert.Equal(t, int64(12), p.ToOne()["user"])
}

func TestDataParser_Assert(t *testing.T) {
	p := dataParser(t, "Board", validation.ModeCreate)
	err := p.Assert(context.Background(), map[string]any{"data": map[string]any{"type": "boards"}})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Collection.Errors, 1)
	assert.Equal(t, "/data/attributes/title", verr.Collection.Errors[0].Source.Pointer)
	assert.Equal(t, validation.CodeRequired, verr.Collection.Errors[0].Code)
	assert.Equal(t, "title is required", verr.Collection.Errors[0].Detail)

	first := verr.Collection.Errors
	require.Error(t, p.Assert(context.Background(), map[string]any{"data": map[string]any{"type": "boards"}}))
	assert.Equal(t, first, p.Errors().Errors)
}
