package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FilterParameter is one (field, operator, arguments) triple. Field keeps the
// name the client used; Relationship and Column are the resolved target.
// An empty Column on a relationship filter targets the relationship itself,
// i.e. the related record's primary key.
type FilterParameter struct {
	Field        string
	Relationship string
	Column       string
	Operator     string
	Args         []any
}

// IsRelationship reports whether the filter goes through a relationship.
func (f FilterParameter) IsRelationship() bool {
	return f.Relationship != ""
}

type SortParameter struct {
	Field        string
	Relationship string
	Column       string
	Ascending    bool
}

func (s SortParameter) IsRelationship() bool {
	return s.Relationship != ""
}

// FilterSet is the parsed filter collection of one request. Mode combines
// all top-level fields.
type FilterSet struct {
	Mode   JoinMode
	Params []FilterParameter
}

// SplitPath splits "author.name" into ("author", "name"). A path without a
// dot is returned as column.
func SplitPath(path string) (relationship, column string) {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

// ParseFilterSet turns the decoded filter object into parameters. Values are
// either operator maps ({"eq": "a"}) or bare values which are rewritten:
// "" becomes is-null, "a,b" becomes in, anything else equals. An "and" or
// "or" key switches the top-level mode and must be the only key.
func ParseFilterSet(raw map[string]any) (*FilterSet, Errors) {
	set := &FilterSet{Mode: And}
	var errs Errors
	if len(raw) == 0 {
		return set, nil
	}

	fields := raw
	for _, mode := range []JoinMode{And, Or} {
		wrapped, ok := raw[string(mode)]
		if !ok {
			continue
		}
		set.Mode = mode
		for _, key := range sortedKeys(raw) {
			if key != string(mode) {
				errs.Add(key, "", CodeAndOrExclusive,
					fmt.Errorf("%q cannot be combined with %q", key, mode))
			}
		}
		inner, isMap := wrapped.(map[string]any)
		if !isMap {
			errs.Add(string(mode), "", CodeInvalidArgument, ErrInvalidArgument)
			return set, errs
		}
		fields = inner
		break
	}

	for _, field := range sortedKeys(fields) {
		if field == string(And) || field == string(Or) {
			errs.Add(field, "", CodeAndOrExclusive, errors.New("nested and/or groups are not supported"))
			continue
		}
		rel, col := SplitPath(field)
		base := FilterParameter{Field: field, Relationship: rel, Column: col}

		ops, isMap := fields[field].(map[string]any)
		if !isMap {
			p := base
			p.Operator, p.Args = inferOperation(fields[field])
			set.Params = append(set.Params, p)
			continue
		}
		for _, op := range sortedKeys(ops) {
			canonical, known := NormalizeOperator(op)
			if !known {
				errs.Add(field, op, CodeInvalidOperation, ErrInvalidOperation)
				continue
			}
			if takesNoArgs(canonical) && !isEmptyArg(ops[op]) {
				errs.Add(field, op, CodeInvalidArgument,
					fmt.Errorf("%w: %s takes no arguments", ErrInvalidArgument, canonical))
				continue
			}
			p := base
			p.Operator = canonical
			p.Args = operatorArgs(canonical, ops[op])
			set.Params = append(set.Params, p)
		}
	}
	return set, errs
}

func inferOperation(value any) (string, []any) {
	switch v := value.(type) {
	case nil:
		return OpIsNull, nil
	case string:
		switch {
		case v == "":
			return OpIsNull, nil
		case strings.Contains(v, ","):
			return OpIn, splitCSV(v)
		default:
			return OpEquals, []any{v}
		}
	case []string:
		return OpIn, stringsToAny(v)
	case []any:
		return OpIn, v
	default:
		return OpEquals, []any{v}
	}
}

func operatorArgs(op string, value any) []any {
	if takesNoArgs(op) {
		return nil
	}
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if isPattern(op) {
			return []any{v}
		}
		if v == "" {
			return nil
		}
		return splitCSV(v)
	case []string:
		return stringsToAny(v)
	case []any:
		return v
	default:
		return []any{v}
	}
}

// isEmptyArg reports whether a query-string value carries no argument, as
// in filter[x][is-null] or filter[x][is-null]=.
func isEmptyArg(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		for _, s := range v {
			if s != "" {
				return false
			}
		}
		return true
	case []any:
		return len(v) == 0
	}
	return false
}

func splitCSV(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseSort parses "title,-created_at,author.name".
func ParseSort(value string) ([]SortParameter, Errors) {
	var (
		sorts []SortParameter
		errs  Errors
	)
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		asc := true
		switch {
		case strings.HasPrefix(item, "-"):
			asc = false
			item = item[1:]
		case strings.HasPrefix(item, "+"):
			item = item[1:]
		}
		if item == "" {
			errs.Add("sort", "", CodeInvalidSort, errors.New("empty sort field"))
			continue
		}
		rel, col := SplitPath(item)
		sorts = append(sorts, SortParameter{Field: item, Relationship: rel, Column: col, Ascending: asc})
	}
	return sorts, errs
}
