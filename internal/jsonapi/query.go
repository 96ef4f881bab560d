package jsonapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/gorilla/schema"

	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/validation"
)

// QueryRules describe the accepted query parameters of a collection.
type QueryRules struct {
	// Filters maps a client filter field to the rule converting each of its
	// arguments. Nil accepts every field without conversion.
	Filters map[string]validation.Rule
	// FieldMap renames client fields to "column", "relationship" or
	// "relationship.column" paths for filters and sorts.
	FieldMap map[string]string
	// Sorts and Includes list the accepted values; nil accepts any.
	Sorts        []string
	Includes     []string
	DefaultLimit int
	MaxLimit     int
}

// CompiledQueryRules are shared between requests.
type CompiledQueryRules struct {
	rules    QueryRules
	filters  *validation.Program
	sorts    map[string]bool
	includes map[string]bool
}

func CompileQueryRules(r QueryRules) *CompiledQueryRules {
	c := &CompiledQueryRules{rules: r}
	if r.Filters != nil {
		c.filters = validation.Compile(r.Filters)
	}
	if r.Sorts != nil {
		c.sorts = toSet(r.Sorts)
	}
	if r.Includes != nil {
		c.includes = toSet(r.Includes)
	}
	return c
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

// Query is the validated outcome of a QueryParser run.
type Query struct {
	Filters  *query.FilterSet
	Sorts    []query.SortParameter
	Includes []string
	Fields   map[string][]string
	Offset   int
	Limit    int
}

type page struct {
	Offset *int `schema:"page[offset]"`
	Limit  *int `schema:"page[limit]"`
}

var pageDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

var knownFamilies = map[string]bool{
	"filter": true, "sort": true, "include": true, "fields": true, "page": true,
}

// QueryParser validates the query string of one request. Not safe for
// concurrent use.
type QueryParser struct {
	rules     *CompiledQueryRules
	formatter validation.Formatter
	ctx       *validation.Context
	result    Query
	errors    ErrorCollection
}

func NewQueryParser(rules *CompiledQueryRules, f validation.Formatter, opts ...validation.ContextOption) *QueryParser {
	if f == nil {
		f = validation.DefaultFormatter{}
	}
	return &QueryParser{rules: rules, formatter: f, ctx: validation.NewContext(opts...)}
}

// Parse validates values and collects every error.
func (p *QueryParser) Parse(ctx context.Context, values url.Values) bool {
	p.result = Query{Filters: &query.FilterSet{Mode: query.And}, Fields: map[string][]string{}}
	p.errors = ErrorCollection{}
	p.ctx.WithContext(ctx)

	p.checkFamilies(values)
	p.parseFilters(values)
	p.parseSort(values)
	p.parseIncludes(values)
	p.parseFields(values)
	p.parsePage(values)
	return !p.errors.HasErrors()
}

// Assert is Parse returning a *ValidationError on failure.
func (p *QueryParser) Assert(ctx context.Context, values url.Values) error {
	if p.Parse(ctx, values) {
		return nil
	}
	return &ValidationError{Collection: p.errors}
}

func (p *QueryParser) Query() Query { return p.result }

func (p *QueryParser) Errors() *ErrorCollection { return &p.errors }

// checkFamilies rejects unknown parameters made only of lowercase letters;
// other names are left to the application.
func (p *QueryParser) checkFamilies(values url.Values) {
	for _, key := range sortedParams(values) {
		family, _, _ := splitBrackets(key)
		if knownFamilies[family] || !reserved(family) {
			continue
		}
		p.errors.AddParameter(key, CodeUnknownParameter, "Unknown query parameter",
			fmt.Sprintf("%s is not a supported query parameter", key))
	}
}

func reserved(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func (p *QueryParser) parseFilters(values url.Values) {
	raw, bad := decodeBrackets(values, "filter")
	for _, key := range bad {
		p.errors.AddParameter(key, CodeInvalidParameter, "Invalid query parameter", "malformed filter parameter")
	}

	set, errs := query.ParseFilterSet(raw)
	p.errors.AddFilterErrors(errs)

	kept := set.Params[:0]
	for _, f := range set.Params {
		if f, ok := p.checkFilter(f); ok {
			kept = append(kept, f)
		}
	}
	set.Params = kept
	p.result.Filters = set
}

func (p *QueryParser) checkFilter(f query.FilterParameter) (query.FilterParameter, bool) {
	param := "filter[" + f.Field + "]"
	client := f.Field

	if prog := p.rules.filters; prog != nil {
		entry, known := prog.Entry(client)
		if !known {
			p.errors.AddParameter(param, validation.CodeUnknownField, "Invalid query parameter",
				fmt.Sprintf("cannot filter on %s", client))
			return f, false
		}

		args := make([]any, len(f.Args))
		valid := true
		for i, arg := range f.Args {
			v, ok := p.convertArg(prog, entry, f.Operator, param, arg)
			valid = valid && ok
			args[i] = v
		}
		if !valid {
			return f, false
		}
		f.Args = args
	}

	if target, ok := p.rules.rules.FieldMap[client]; ok {
		f.Relationship, f.Column = query.SplitPath(target)
	}
	return f, true
}

func (p *QueryParser) convertArg(prog *validation.Program, entry validation.Entry, op, param string, arg any) (any, bool) {
	if op == query.OpLike || op == query.OpNotLike {
		if _, ok := arg.(string); ok {
			return arg, true
		}
		p.errors.AddParameter(param, validation.CodeString, "Invalid query parameter", "pattern must be a string")
		return nil, false
	}

	c := p.ctx
	c.Reset()
	if !validation.Execute(arg, prog, entry, c) {
		p.errors.AddValidation(c.Errors(), p.formatter, func(string) ErrorSource {
			return ErrorSource{Parameter: param}
		})
		return nil, false
	}
	v, _ := c.Captures().Get(entry.Name)
	return v, true
}

func (p *QueryParser) parseSort(values url.Values) {
	if _, present := values["sort"]; !present {
		return
	}
	sorts, errs := query.ParseSort(values.Get("sort"))
	p.errors.AddFilterErrors(errs)

	for _, s := range sorts {
		if p.rules.sorts != nil && !p.rules.sorts[s.Field] {
			p.errors.AddParameter("sort", query.CodeInvalidSort, "Invalid query parameter",
				fmt.Sprintf("cannot sort by %s", s.Field))
			continue
		}
		if target, ok := p.rules.rules.FieldMap[s.Field]; ok {
			s.Relationship, s.Column = query.SplitPath(target)
		}
		p.result.Sorts = append(p.result.Sorts, s)
	}
}

func (p *QueryParser) parseIncludes(values url.Values) {
	if _, present := values["include"]; !present {
		return
	}
	for _, path := range strings.Split(values.Get("include"), ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			p.errors.AddParameter("include", CodeUnknownInclude, "Invalid query parameter", "empty include path")
			continue
		}
		if p.rules.includes != nil && !p.rules.includes[path] {
			p.errors.AddParameter("include", CodeUnknownInclude, "Invalid query parameter",
				fmt.Sprintf("%s cannot be included", path))
			continue
		}
		p.result.Includes = append(p.result.Includes, path)
	}
}

func (p *QueryParser) parseFields(values url.Values) {
	raw, bad := decodeBrackets(values, "fields")
	for _, key := range bad {
		p.errors.AddParameter(key, CodeInvalidParameter, "Invalid query parameter", "malformed fields parameter")
	}
	for _, typ := range sortedKeys(raw) {
		list, ok := raw[typ].(string)
		if !ok {
			p.errors.AddParameter("fields["+typ+"]", CodeInvalidParameter, "Invalid query parameter",
				"fields must be a comma separated list")
			continue
		}
		var names []string
		for _, n := range strings.Split(list, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		p.result.Fields[typ] = names
	}
}

func (p *QueryParser) parsePage(values url.Values) {
	pageValues := url.Values{}
	for key, vals := range values {
		if strings.HasPrefix(key, "page[") {
			pageValues[key] = vals
		}
	}
	for key := range pageValues {
		if key != "page[offset]" && key != "page[limit]" {
			p.errors.AddParameter(key, CodeInvalidPage, "Invalid query parameter",
				"only page[offset] and page[limit] are supported")
		}
	}

	var pg page
	if err := pageDecoder.Decode(&pg, pageValues); err != nil {
		var multi schema.MultiError
		if errors.As(err, &multi) {
			for _, key := range sortedKeys(multi) {
				p.errors.AddParameter(key, CodeInvalidPage, "Invalid query parameter", "must be an integer")
			}
		} else {
			p.errors.AddParameter("page", CodeInvalidPage, "Invalid query parameter", err.Error())
		}
		return
	}

	limits := p.rules.rules
	p.result.Limit = limits.DefaultLimit
	if pg.Offset != nil {
		if *pg.Offset < 0 {
			p.errors.AddParameter("page[offset]", CodeInvalidPage, "Invalid query parameter", "must not be negative")
		} else {
			p.result.Offset = *pg.Offset
		}
	}
	if pg.Limit != nil {
		switch {
		case *pg.Limit < 1:
			p.errors.AddParameter("page[limit]", CodeInvalidPage, "Invalid query parameter", "must be positive")
		case limits.MaxLimit > 0 && *pg.Limit > limits.MaxLimit:
			p.errors.AddParameter("page[limit]", CodeInvalidPage, "Invalid query parameter",
				fmt.Sprintf("must not exceed %d", limits.MaxLimit))
		default:
			p.result.Limit = *pg.Limit
		}
	}
}

func sortedParams(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
