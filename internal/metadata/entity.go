package metadata

type Entity struct {
	Name          string            `json:"name"`
	Type          string            `json:"type,omitempty"` // JSON:API resource type, defaults to Name
	Table         string            `json:"table"`
	PrimaryKey    PrimaryKey        `json:"primary_key"`
	Fields        []Field           `json:"fields"`
	Relationships []RelationshipDef `json:"relationships,omitempty"`
	Rules         []RuleDef         `json:"rules,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// ResourceType returns the JSON:API type of the entity.
func (e *Entity) ResourceType() string {
	if e.Type != "" {
		return e.Type
	}
	return e.Name
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// WritableFields returns fields that can be set by the client.
// Excludes generated PKs, auto-timestamp fields and belongs-to foreign keys,
// which are written through relationships.
func (e *Entity) WritableFields() []Field {
	fks := make(map[string]bool)
	for _, r := range e.Relationships {
		if r.Kind == KindBelongsTo {
			fks[r.ForeignKey] = true
		}
	}

	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() || fks[f.Name] {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// GetRelationshipDef returns the declared relationship with the given name, or nil.
func (e *Entity) GetRelationshipDef(name string) *RelationshipDef {
	for i := range e.Relationships {
		if e.Relationships[i].Name == name {
			return &e.Relationships[i]
		}
	}
	return nil
}
