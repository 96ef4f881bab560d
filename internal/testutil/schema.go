// Package testutil provides schema fixtures shared by package tests.
package testutil

import (
	"jsonapi-backend/internal/metadata"
)

// Entities returns a small forum schema: boards with posts, posts with
// comments, comments linked to emotions through comments_emotions, users
// authoring posts and comments, and a self-referential category tree.
func Entities() []*metadata.Entity {
	intPK := func(name string) metadata.PrimaryKey {
		return metadata.PrimaryKey{Field: name, Type: metadata.TypeInt, Generated: true}
	}
	timestamps := []metadata.Field{
		{Name: "created_at", Type: metadata.TypeTimestamp, Nullable: true, Auto: "create"},
		{Name: "updated_at", Type: metadata.TypeTimestamp, Nullable: true, Auto: "update"},
		{Name: "deleted_at", Type: metadata.TypeTimestamp, Nullable: true},
	}
	withTimestamps := func(fields ...metadata.Field) []metadata.Field {
		return append(fields, timestamps...)
	}

	return []*metadata.Entity{
		{
			Name: "Board", Type: "boards", Table: "boards", PrimaryKey: intPK("id_board"),
			Fields: withTimestamps(
				metadata.Field{Name: "id_board", Type: metadata.TypeInt},
				metadata.Field{Name: "title", Type: metadata.TypeString, Required: true, MaxLength: 255},
			),
			Relationships: []metadata.RelationshipDef{
				{Name: "posts", Kind: metadata.KindHasMany, Target: "Post", Reverse: "board"},
			},
			Rules: []metadata.RuleDef{
				{Field: "title", Expression: `lower(value) != "spam"`, Message: "is reserved"},
				{Field: "title", When: `value startsWith "#"`, Expression: `len(value) > 1`},
			},
		},
		{
			Name: "Post", Type: "posts", Table: "posts", PrimaryKey: intPK("id_post"),
			Fields: withTimestamps(
				metadata.Field{Name: "id_post", Type: metadata.TypeInt},
				metadata.Field{Name: "id_board_fk", Type: metadata.TypeInt},
				metadata.Field{Name: "id_user_fk", Type: metadata.TypeInt},
				metadata.Field{Name: "title", Type: metadata.TypeString, Required: true},
				metadata.Field{Name: "text", Type: metadata.TypeText},
			),
			Relationships: []metadata.RelationshipDef{
				{Name: "board", Kind: metadata.KindBelongsTo, Target: "Board", ForeignKey: "id_board_fk"},
				{Name: "user", Kind: metadata.KindBelongsTo, Target: "User", ForeignKey: "id_user_fk"},
				{Name: "comments", Kind: metadata.KindHasMany, Target: "Comment", Reverse: "post"},
			},
		},
		{
			Name: "Comment", Type: "comments", Table: "comments", PrimaryKey: intPK("id_comment"),
			Fields: withTimestamps(
				metadata.Field{Name: "id_comment", Type: metadata.TypeInt},
				metadata.Field{Name: "id_post_fk", Type: metadata.TypeInt},
				metadata.Field{Name: "id_user_fk", Type: metadata.TypeInt},
				metadata.Field{Name: "text", Type: metadata.TypeText, Required: true},
			),
			Relationships: []metadata.RelationshipDef{
				{Name: "post", Kind: metadata.KindBelongsTo, Target: "Post", ForeignKey: "id_post_fk"},
				{Name: "user", Kind: metadata.KindBelongsTo, Target: "User", ForeignKey: "id_user_fk"},
				{Name: "emotions", Kind: metadata.KindBelongsToMany, Target: "Emotion",
					JoinTable: "comments_emotions", LocalKey: "id_comment_fk", RemoteKey: "id_emotion_fk"},
			},
		},
		{
			Name: "Emotion", Type: "emotions", Table: "emotions", PrimaryKey: intPK("id_emotion"),
			Fields: withTimestamps(
				metadata.Field{Name: "id_emotion", Type: metadata.TypeInt},
				metadata.Field{Name: "name", Type: metadata.TypeString, Required: true},
			),
			Relationships: []metadata.RelationshipDef{
				{Name: "comments", Kind: metadata.KindBelongsToMany, Target: "Comment",
					JoinTable: "comments_emotions", LocalKey: "id_emotion_fk", RemoteKey: "id_comment_fk"},
			},
		},
		{
			Name: "User", Type: "users", Table: "users", PrimaryKey: intPK("id_user"),
			Fields: withTimestamps(
				metadata.Field{Name: "id_user", Type: metadata.TypeInt},
				metadata.Field{Name: "first_name", Type: metadata.TypeString, Required: true},
				metadata.Field{Name: "last_name", Type: metadata.TypeString},
				metadata.Field{Name: "email", Type: metadata.TypeString, Required: true, Unique: true},
				metadata.Field{Name: "password", Type: metadata.TypeString, Nullable: true, Hashed: true},
				metadata.Field{Name: "roles", Type: metadata.TypeString, Nullable: true},
			),
			Relationships: []metadata.RelationshipDef{
				{Name: "posts", Kind: metadata.KindHasMany, Target: "Post", Reverse: "user"},
				{Name: "comments", Kind: metadata.KindHasMany, Target: "Comment", Reverse: "user"},
			},
		},
		{
			Name: "Category", Type: "categories", Table: "categories", PrimaryKey: intPK("id_category"),
			Fields: []metadata.Field{
				{Name: "id_category", Type: metadata.TypeInt},
				{Name: "id_parent_fk", Type: metadata.TypeInt, Nullable: true},
				{Name: "name", Type: metadata.TypeString, Required: true},
			},
			Relationships: []metadata.RelationshipDef{
				{Name: "parent", Kind: metadata.KindBelongsTo, Target: "Category", ForeignKey: "id_parent_fk"},
				{Name: "children", Kind: metadata.KindHasMany, Target: "Category", Reverse: "parent"},
			},
		},
	}
}

// Registry returns a registry loaded with Entities. It panics on a broken
// fixture.
func Registry() *metadata.Registry {
	reg := metadata.NewRegistry()
	if err := reg.Load(Entities()); err != nil {
		panic(err)
	}
	return reg
}
