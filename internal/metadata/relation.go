package metadata

import "fmt"

// Relationship kinds as declared in schema definitions.
const (
	KindBelongsTo     = "belongs_to"
	KindHasMany       = "has_many"
	KindBelongsToMany = "belongs_to_many"
)

// RelationshipDef is the declarative form of a relationship, as stored in
// schema files and the _relations table.
type RelationshipDef struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	ForeignKey string `json:"foreign_key,omitempty"` // belongs_to: column on the owning table
	Reverse    string `json:"reverse,omitempty"`     // has_many: belongs_to relationship name on the target
	JoinTable  string `json:"join_table,omitempty"`
	LocalKey   string `json:"local_key,omitempty"`  // belongs_to_many: join table column pointing at the owner
	RemoteKey  string `json:"remote_key,omitempty"` // belongs_to_many: join table column pointing at the target
}

// Relationship is one of BelongsTo, HasMany or BelongsToMany. The set is
// closed; switch on the concrete type.
type Relationship interface {
	RelationshipName() string
	TargetEntity() string
	IsToMany() bool
	relationship()
}

// BelongsTo holds the foreign key on the owning table.
type BelongsTo struct {
	Name             string
	Target           string
	ForeignKey       string
	TargetPrimaryKey string
}

// HasMany is the inverse of a BelongsTo declared on the target.
type HasMany struct {
	Name                string
	Target              string
	ReverseForeignKey   string
	ReverseRelationship string
}

// BelongsToMany links through an intermediate table.
type BelongsToMany struct {
	Name              string
	Target            string
	IntermediateTable string
	LocalKey          string
	RemoteKey         string
}

func (r BelongsTo) RelationshipName() string { return r.Name }
func (r BelongsTo) TargetEntity() string     { return r.Target }
func (r BelongsTo) IsToMany() bool           { return false }
func (BelongsTo) relationship()              {}

func (r HasMany) RelationshipName() string { return r.Name }
func (r HasMany) TargetEntity() string     { return r.Target }
func (r HasMany) IsToMany() bool           { return true }
func (HasMany) relationship()              {}

func (r BelongsToMany) RelationshipName() string { return r.Name }
func (r BelongsToMany) TargetEntity() string     { return r.Target }
func (r BelongsToMany) IsToMany() bool           { return true }
func (BelongsToMany) relationship()              {}

// resolve turns a declaration into its typed variant. entities must contain
// the owner and the target.
func resolve(owner *Entity, def RelationshipDef, entities map[string]*Entity) (Relationship, error) {
	target := entities[def.Target]
	if target == nil {
		return nil, fmt.Errorf("relationship %s.%s: unknown target entity %q", owner.Name, def.Name, def.Target)
	}

	switch def.Kind {
	case KindBelongsTo:
		if def.ForeignKey == "" {
			return nil, fmt.Errorf("relationship %s.%s: foreign_key is required", owner.Name, def.Name)
		}
		return BelongsTo{
			Name:             def.Name,
			Target:           target.Name,
			ForeignKey:       def.ForeignKey,
			TargetPrimaryKey: target.PrimaryKey.Field,
		}, nil

	case KindHasMany:
		reverse := target.GetRelationshipDef(def.Reverse)
		if reverse == nil || reverse.Kind != KindBelongsTo || reverse.Target != owner.Name {
			return nil, fmt.Errorf("relationship %s.%s: reverse %q must be a belongs_to on %s pointing back",
				owner.Name, def.Name, def.Reverse, target.Name)
		}
		return HasMany{
			Name:                def.Name,
			Target:              target.Name,
			ReverseForeignKey:   reverse.ForeignKey,
			ReverseRelationship: reverse.Name,
		}, nil

	case KindBelongsToMany:
		if def.JoinTable == "" || def.LocalKey == "" || def.RemoteKey == "" {
			return nil, fmt.Errorf("relationship %s.%s: join_table, local_key and remote_key are required",
				owner.Name, def.Name)
		}
		return BelongsToMany{
			Name:              def.Name,
			Target:            target.Name,
			IntermediateTable: def.JoinTable,
			LocalKey:          def.LocalKey,
			RemoteKey:         def.RemoteKey,
		}, nil
	}

	return nil, fmt.Errorf("relationship %s.%s: unknown kind %q", owner.Name, def.Name, def.Kind)
}
