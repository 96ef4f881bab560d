package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"

	"jsonapi-backend/internal/validation"
)

// RelationshipRule validates the linkage of one relationship.
type RelationshipRule struct {
	// Type is the expected resource type; empty accepts any.
	Type string
	// ID converts or checks each related id. Nil accepts any scalar.
	ID       validation.Rule
	Required bool
	// Nullable allows a to-one linkage of null.
	Nullable bool
}

// DataRules describe an acceptable resource document. A nil ID rule means
// the document must not carry an id (server generated ids).
type DataRules struct {
	Type       string
	ID         validation.Rule
	Attributes map[string]validation.Rule
	ToOne      map[string]RelationshipRule
	ToMany     map[string]RelationshipRule
}

// CompiledDataRules are DataRules compiled into programs. They are
// immutable and shared between requests.
type CompiledDataRules struct {
	Type          string
	id            *validation.Program
	attributes    *validation.Program
	relationships *validation.Program
	toMany        map[string]bool
}

func CompileDataRules(r DataRules) *CompiledDataRules {
	c := &CompiledDataRules{
		Type:       r.Type,
		attributes: validation.Compile(r.Attributes),
		toMany:     make(map[string]bool, len(r.ToMany)),
	}
	if r.ID != nil {
		c.id = validation.Compile(map[string]validation.Rule{"id": r.ID})
	}

	rels := make(map[string]validation.Rule, len(r.ToOne)+len(r.ToMany))
	for name, rr := range r.ToOne {
		rels[name] = toOneRule(rr)
	}
	for name, rr := range r.ToMany {
		if _, dup := rels[name]; dup {
			panic(fmt.Sprintf("jsonapi: relationship %q declared as to-one and to-many", name))
		}
		rels[name] = toManyRule(rr)
		c.toMany[name] = true
	}
	c.relationships = validation.Compile(rels)
	return c
}

func toOneRule(rr RelationshipRule) validation.Rule {
	link := validation.And(identifier(rr.Type), idRule(rr.ID))
	if rr.Nullable {
		link = validation.Or(validation.IsNull(), link)
	}
	if rr.Required {
		link = validation.And(validation.Required(), link)
	}
	return link
}

func toManyRule(rr RelationshipRule) validation.Rule {
	link := validation.And(identifiers(rr.Type), validation.EachItem(idRule(rr.ID)))
	if rr.Required {
		link = validation.And(validation.Required(), link)
	}
	return link
}

func idRule(r validation.Rule) validation.Rule {
	if r == nil {
		return validation.Success()
	}
	return r
}

// identifier accepts {type, id} and outputs the id.
func identifier(resourceType string) validation.Rule {
	params := map[string]any{"type": resourceType}
	return validation.Custom("identifier", func(v any, _ *validation.Context) validation.Result {
		id, ok := linkageID(v, resourceType)
		if !ok {
			return validation.Failure(v, CodeInvalidRelationship, params)
		}
		return validation.Result{Value: id}
	})
}

// identifiers accepts a list of {type, id} without null entries and
// outputs the list of ids.
func identifiers(resourceType string) validation.Rule {
	params := map[string]any{"type": resourceType}
	return validation.Custom("identifiers", func(v any, _ *validation.Context) validation.Result {
		list, ok := v.([]any)
		if !ok {
			return validation.Failure(v, CodeInvalidRelationship, params)
		}
		ids := make([]any, len(list))
		for i, item := range list {
			id, ok := linkageID(item, resourceType)
			if !ok {
				return validation.Failure(v, CodeInvalidRelationship, params)
			}
			ids[i] = id
		}
		return validation.Result{Value: ids}
	})
}

func linkageID(v any, resourceType string) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	typ, ok := m["type"].(string)
	if !ok || (resourceType != "" && typ != resourceType) {
		return nil, false
	}
	id := m["id"]
	if !isScalar(id) {
		return nil, false
	}
	return id, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, json.Number, int, int64:
		return true
	}
	return false
}

// malformed stands in for a relationship object without a data member so
// that its linkage rule reports it.
type malformed struct{}

// DataParser validates one resource document at a time. It is cheap to
// create and not safe for concurrent use.
type DataParser struct {
	rules          *CompiledDataRules
	formatter      validation.Formatter
	id             *validation.Validator
	attributes     *validation.Validator
	relationships  *validation.Validator
	ignoreUnknowns bool
	expectedID     *string

	captures   *validation.Captures
	attrValues map[string]any
	relValues  map[string]any
	errors     ErrorCollection
}

func NewDataParser(rules *CompiledDataRules, f validation.Formatter, opts ...validation.ContextOption) *DataParser {
	if f == nil {
		f = validation.DefaultFormatter{}
	}
	p := &DataParser{
		rules:         rules,
		formatter:     f,
		attributes:    validation.NewValidator(rules.attributes, f, opts...),
		relationships: validation.NewValidator(rules.relationships, f, opts...),
	}
	if rules.id != nil {
		p.id = validation.NewValidator(rules.id, f, opts...)
	}
	p.reset()
	return p
}

// IgnoreUnknowns accepts attributes and relationships without rules.
func (p *DataParser) IgnoreUnknowns() *DataParser {
	p.ignoreUnknowns = true
	p.attributes.IgnoreUnknowns()
	p.relationships.IgnoreUnknowns()
	return p
}

// ExpectID requires the document id to equal id, as for an update.
func (p *DataParser) ExpectID(id string) *DataParser {
	p.expectedID = &id
	return p
}

// SetValue stores a context value for every rule, e.g. ExceptIDKey.
func (p *DataParser) SetValue(key string, v any) {
	for _, val := range []*validation.Validator{p.id, p.attributes, p.relationships} {
		if val != nil {
			val.Context().SetValue(key, v)
		}
	}
}

func (p *DataParser) reset() {
	p.captures = validation.NewCaptures()
	p.attrValues = make(map[string]any)
	p.relValues = make(map[string]any)
	p.errors = ErrorCollection{}
}

// Parse validates doc, the decoded request body. Type, id, attributes and
// relationships are checked independently and all errors are collected.
func (p *DataParser) Parse(ctx context.Context, doc any) bool {
	p.reset()

	// a broken envelope still reports every missing section
	data := map[string]any{}
	if root, ok := doc.(map[string]any); !ok {
		p.errors.AddPointer("", CodeInvalidDocument, "Invalid document", "the document must be a JSON object")
	} else if d, ok := root["data"].(map[string]any); ok {
		data = d
	} else {
		p.errors.AddPointer("/data", CodeInvalidDocument, "Invalid document", "data must be a resource object")
	}

	p.parseType(data)
	p.parseID(ctx, data)
	p.parseAttributes(ctx, data)
	p.parseRelationships(ctx, data)
	return !p.errors.HasErrors()
}

// ParseBytes decodes body and parses it. Numbers are kept as json.Number.
func (p *DataParser) ParseBytes(ctx context.Context, body []byte) bool {
	var doc any
	if err := unmarshal(body, &doc); err != nil {
		p.reset()
		p.errors.AddPointer("", CodeInvalidDocument, "Invalid document", err.Error())
		return false
	}
	return p.Parse(ctx, doc)
}

// Assert is Parse returning a *ValidationError on failure.
func (p *DataParser) Assert(ctx context.Context, doc any) error {
	if p.Parse(ctx, doc) {
		return nil
	}
	return &ValidationError{Collection: p.errors}
}

func (p *DataParser) parseType(data map[string]any) {
	typ, ok := data["type"].(string)
	switch {
	case !ok:
		p.errors.AddPointer("/data/type", CodeInvalidType, "Invalid type", "type must be a string")
	case typ != p.rules.Type:
		p.errors.Add(ErrorObject{
			Status: StatusConflict,
			Code:   CodeInvalidType,
			Title:  "Invalid type",
			Detail: fmt.Sprintf("type %q does not match %q", typ, p.rules.Type),
			Source: &ErrorSource{Pointer: "/data/type"},
		})
	}
}

func (p *DataParser) parseID(ctx context.Context, data map[string]any) {
	raw, present := data["id"]
	if p.expectedID != nil {
		if !present {
			p.errors.AddPointer("/data/id", validation.CodeRequired, "Missing id", "id is required")
			return
		}
		if fmt.Sprint(raw) != *p.expectedID {
			p.errors.Add(ErrorObject{
				Status: StatusConflict,
				Code:   CodeIDMismatch,
				Title:  "Invalid id",
				Detail: fmt.Sprintf("id %v does not match %s", raw, *p.expectedID),
				Source: &ErrorSource{Pointer: "/data/id"},
			})
			return
		}
	}

	if p.id == nil {
		switch {
		case present && p.expectedID == nil:
			p.errors.AddPointer("/data/id", CodeIDNotAllowed, "Invalid id", "client generated ids are not supported")
		case present:
			p.captures.Set("id", raw)
		}
		return
	}

	input := map[string]any{}
	if present {
		input["id"] = raw
	}
	if !p.id.Validate(ctx, input) {
		p.errors.AddValidation(p.id.Errors(), p.formatter, func(string) ErrorSource {
			return ErrorSource{Pointer: "/data/id"}
		})
		return
	}
	if v, ok := p.id.Captures().Get("id"); ok {
		p.captures.Set("id", v)
	}
}

func (p *DataParser) parseAttributes(ctx context.Context, data map[string]any) {
	attrs := map[string]any{}
	if raw, present := data["attributes"]; present {
		m, ok := raw.(map[string]any)
		if !ok {
			p.errors.AddPointer("/data/attributes", CodeInvalidSection, "Invalid attributes", "attributes must be an object")
			return
		}
		attrs = m
	}

	valid := p.attributes.Validate(ctx, attrs)
	if !valid {
		p.errors.AddValidation(p.attributes.Errors(), p.formatter, func(field string) ErrorSource {
			return ErrorSource{Pointer: "/data/attributes/" + field}
		})
	}
	caps := p.attributes.Captures()
	for _, k := range caps.Keys() {
		v, _ := caps.Get(k)
		p.attrValues[k] = v
		p.captures.Set(k, v)
	}
}

func (p *DataParser) parseRelationships(ctx context.Context, data map[string]any) {
	links := map[string]any{}
	if raw, present := data["relationships"]; present {
		m, ok := raw.(map[string]any)
		if !ok {
			p.errors.AddPointer("/data/relationships", CodeInvalidSection, "Invalid relationships", "relationships must be an object")
			return
		}
		for name, rel := range m {
			obj, ok := rel.(map[string]any)
			if !ok {
				links[name] = malformed{}
				continue
			}
			linkage, ok := obj["data"]
			if !ok {
				links[name] = malformed{}
				continue
			}
			links[name] = linkage
		}
	}

	if !p.relationships.Validate(ctx, links) {
		p.errors.AddValidation(p.relationships.Errors(), p.formatter, func(field string) ErrorSource {
			return ErrorSource{Pointer: "/data/relationships/" + field}
		})
	}
	caps := p.relationships.Captures()
	for _, k := range caps.Keys() {
		v, _ := caps.Get(k)
		p.relValues[k] = v
		p.captures.Set(k, v)
	}
}

// Captures holds id, attribute and relationship values of the last parse.
func (p *DataParser) Captures() *validation.Captures { return p.captures }

func (p *DataParser) Errors() *ErrorCollection { return &p.errors }

// ID is the captured document id, nil when absent.
func (p *DataParser) ID() any {
	v, _ := p.captures.Get("id")
	return v
}

func (p *DataParser) Attributes() map[string]any { return p.attrValues }

// ToOne returns captured to-one linkages: the related id or nil.
func (p *DataParser) ToOne() map[string]any {
	out := make(map[string]any)
	for name, v := range p.relValues {
		if _, declared := p.rules.toMany[name]; !declared {
			out[name] = v
		}
	}
	return out
}

// ToMany returns captured to-many linkages as id lists.
func (p *DataParser) ToMany() map[string][]any {
	out := make(map[string][]any)
	for name, v := range p.relValues {
		if !p.rules.toMany[name] {
			continue
		}
		ids, _ := v.([]any)
		if ids == nil {
			ids = []any{}
		}
		out[name] = ids
	}
	return out
}
