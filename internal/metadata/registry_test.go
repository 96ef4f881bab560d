package metadata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/testutil"
)

func TestRegistry_ResolvesRelationshipVariants(t *testing.T) {
	reg := testutil.Registry()

	rel, ok := reg.Relationship("Post", "board")
	require.True(t, ok)
	assert.Equal(t, metadata.BelongsTo{Name: "board", Target: "Board", ForeignKey: "id_board_fk", TargetPrimaryKey: "id_board"}, rel)

	rel, ok = reg.Relationship("Board", "posts")
	require.True(t, ok)
	assert.Equal(t, metadata.HasMany{Name: "posts", Target: "Post", ReverseForeignKey: "id_board_fk", ReverseRelationship: "board"}, rel)
	assert.True(t, rel.IsToMany())

	rel, ok = reg.Relationship("Comment", "emotions")
	require.True(t, ok)
	assert.Equal(t, metadata.BelongsToMany{
		Name: "emotions", Target: "Emotion", IntermediateTable: "comments_emotions",
		LocalKey: "id_comment_fk", RemoteKey: "id_emotion_fk",
	}, rel)

	_, ok = reg.Relationship("Board", "missing")
	assert.False(t, ok)
}

func TestRegistry_SchemaAccessors(t *testing.T) {
	reg := testutil.Registry()

	assert.Equal(t, "boards", reg.Table("Board"))
	assert.Equal(t, "id_board", reg.PrimaryKey("Board"))
	assert.Equal(t, []string{"id_board", "title", "created_at", "updated_at", "deleted_at"}, reg.Attributes("Board"))
	assert.Equal(t, metadata.TypeTimestamp, reg.AttributeTypes("Board")["created_at"])
	assert.Equal(t, "Board", reg.EntityByType("boards").Name)
	assert.Empty(t, reg.Table("Nope"))
}

func TestRegistry_LoadRejectsBrokenSchemas(t *testing.T) {
	tests := []struct {
		name     string
		entities []*metadata.Entity
	}{
		{
			name: "unknown target",
			entities: []*metadata.Entity{{
				Name: "A", Table: "a", PrimaryKey: metadata.PrimaryKey{Field: "id"},
				Relationships: []metadata.RelationshipDef{{Name: "b", Kind: metadata.KindBelongsTo, Target: "B", ForeignKey: "b_id"}},
			}},
		},
		{
			name: "duplicate relationship",
			entities: []*metadata.Entity{{
				Name: "A", Table: "a", PrimaryKey: metadata.PrimaryKey{Field: "id"},
				Relationships: []metadata.RelationshipDef{
					{Name: "self", Kind: metadata.KindBelongsTo, Target: "A", ForeignKey: "a_id"},
					{Name: "self", Kind: metadata.KindBelongsTo, Target: "A", ForeignKey: "a_id"},
				},
			}},
		},
		{
			name: "has many without reverse",
			entities: []*metadata.Entity{{
				Name: "A", Table: "a", PrimaryKey: metadata.PrimaryKey{Field: "id"},
				Relationships: []metadata.RelationshipDef{{Name: "kids", Kind: metadata.KindHasMany, Target: "A", Reverse: "nope"}},
			}},
		},
		{
			name: "rule on unknown field",
			entities: []*metadata.Entity{{
				Name: "A", Table: "a", PrimaryKey: metadata.PrimaryKey{Field: "id"},
				Fields: []metadata.Field{{Name: "id", Type: metadata.TypeInt}},
				Rules:  []metadata.RuleDef{{Field: "name", Expression: "value != ''"}},
			}},
		},
		{
			name: "rule that does not compile",
			entities: []*metadata.Entity{{
				Name: "A", Table: "a", PrimaryKey: metadata.PrimaryKey{Field: "id"},
				Fields: []metadata.Field{{Name: "id", Type: metadata.TypeInt}},
				Rules:  []metadata.RuleDef{{Field: "id", Expression: "value >", When: "true"}},
			}},
		},
		{
			name:     "missing table",
			entities: []*metadata.Entity{{Name: "A", PrimaryKey: metadata.PrimaryKey{Field: "id"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := testutil.Registry()
			assert.Error(t, reg.Load(tt.entities))
			assert.NotNil(t, reg.GetEntity("Board"), "failed load must keep previous content")
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	doc := `{"entities":[
		{"name":"Author","type":"authors","table":"authors","primary_key":{"field":"id","type":"int","generated":true},
		 "fields":[{"name":"id","type":"int"},{"name":"name","type":"string","required":true}],
		 "relationships":[{"name":"books","kind":"has_many","target":"Book","reverse":"author"}],
		 "rules":[{"field":"name","expression":"len(value) > 1","message":"is too short"}]},
		{"name":"Book","type":"books","table":"books","primary_key":{"field":"id","type":"int","generated":true},
		 "fields":[{"name":"id","type":"int"},{"name":"author_id","type":"int"}],
		 "relationships":[{"name":"author","kind":"belongs_to","target":"Author","foreign_key":"author_id"}]}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	reg := metadata.NewRegistry()
	require.NoError(t, metadata.LoadFile(path, reg))

	assert.Equal(t, []metadata.RuleDef{{Field: "name", Expression: "len(value) > 1", Message: "is too short"}},
		reg.GetEntity("Author").RulesFor("name"))

	rel, ok := reg.Relationship("Author", "books")
	require.True(t, ok)
	assert.Equal(t, "author_id", rel.(metadata.HasMany).ReverseForeignKey)
}

func TestEntity_WritableFieldsSkipsGeneratedAndForeignKeys(t *testing.T) {
	post := testutil.Registry().GetEntity("Post")
	var names []string
	for _, f := range post.WritableFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"title", "text", "deleted_at"}, names)
}
