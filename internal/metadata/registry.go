package metadata

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the loaded schema. It is read-mostly: Load swaps the whole
// content, every other method takes the read lock.
type Registry struct {
	mu            sync.RWMutex
	entities      map[string]*Entity
	entitiesByTyp map[string]*Entity
	relationships map[string]map[string]Relationship // entity name -> relationship name -> variant
}

func NewRegistry() *Registry {
	return &Registry{
		entities:      make(map[string]*Entity),
		entitiesByTyp: make(map[string]*Entity),
		relationships: make(map[string]map[string]Relationship),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// EntityByType returns the entity exposed under the JSON:API type, or nil.
func (r *Registry) EntityByType(resourceType string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entitiesByTyp[resourceType]
}

// AllEntities returns all registered entities sorted by name.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })
	return entities
}

// Table returns the table name of an entity.
func (r *Registry) Table(entity string) string {
	if e := r.GetEntity(entity); e != nil {
		return e.Table
	}
	return ""
}

// PrimaryKey returns the primary key column of an entity.
func (r *Registry) PrimaryKey(entity string) string {
	if e := r.GetEntity(entity); e != nil {
		return e.PrimaryKey.Field
	}
	return ""
}

// Attributes returns the column names of an entity in declaration order.
func (r *Registry) Attributes(entity string) []string {
	if e := r.GetEntity(entity); e != nil {
		return e.FieldNames()
	}
	return nil
}

// AttributeTypes returns column name -> field type for an entity.
func (r *Registry) AttributeTypes(entity string) map[string]string {
	e := r.GetEntity(entity)
	if e == nil {
		return nil
	}
	types := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		types[f.Name] = f.Type
	}
	return types
}

// Relationship returns the typed relationship of an entity.
func (r *Registry) Relationship(entity, name string) (Relationship, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.relationships[entity][name]
	return rel, ok
}

// Relationships returns every relationship of an entity keyed by name.
func (r *Registry) Relationships(entity string) map[string]Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Relationship, len(r.relationships[entity]))
	for name, rel := range r.relationships[entity] {
		out[name] = rel
	}
	return out
}

// Load replaces all entities in the registry after resolving and checking
// their relationships. The registry is left untouched on error.
func (r *Registry) Load(entities []*Entity) error {
	byName := make(map[string]*Entity, len(entities))
	byType := make(map[string]*Entity, len(entities))
	for _, e := range entities {
		if e.Name == "" || e.Table == "" || e.PrimaryKey.Field == "" {
			return fmt.Errorf("entity %q: name, table and primary_key.field are required", e.Name)
		}
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("entity %q declared twice", e.Name)
		}
		if err := checkRules(e); err != nil {
			return err
		}
		byName[e.Name] = e
		byType[e.ResourceType()] = e
	}

	relationships := make(map[string]map[string]Relationship, len(entities))
	for _, e := range entities {
		rels := make(map[string]Relationship, len(e.Relationships))
		for _, def := range e.Relationships {
			if _, dup := rels[def.Name]; dup {
				return fmt.Errorf("relationship %s.%s declared twice", e.Name, def.Name)
			}
			if e.HasField(def.Name) {
				return fmt.Errorf("relationship %s.%s clashes with an attribute", e.Name, def.Name)
			}
			rel, err := resolve(e, def, byName)
			if err != nil {
				return err
			}
			rels[def.Name] = rel
		}
		relationships[e.Name] = rels
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = byName
	r.entitiesByTyp = byType
	r.relationships = relationships
	return nil
}
