package query

import (
	"fmt"
	"strings"
)

// ParamPrefix names bound parameters: :dcValue1, :dcValue2, ...
const ParamPrefix = "dcValue"

// Statement is a finished SQL statement with positional arguments that
// correspond to its :dcValueN placeholders.
type Statement struct {
	SQL  string
	Args []any
}

// Params returns the arguments keyed by placeholder name.
func (s Statement) Params() map[string]any {
	params := make(map[string]any, len(s.Args))
	for i, arg := range s.Args {
		params[fmt.Sprintf("%s%d", ParamPrefix, i+1)] = arg
	}
	return params
}

// namedPlaceholders rewrites squirrel's "?" markers to sequential named
// parameters. "??" is an escaped literal question mark.
type namedPlaceholders struct{}

var NamedPlaceholders namedPlaceholders

func (namedPlaceholders) ReplacePlaceholders(sql string) (string, error) {
	var buf strings.Builder
	buf.Grow(len(sql) + 16)
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			buf.WriteByte(sql[i])
			continue
		}
		if i+1 < len(sql) && sql[i+1] == '?' {
			buf.WriteByte('?')
			i++
			continue
		}
		n++
		fmt.Fprintf(&buf, ":%s%d", ParamPrefix, n)
	}
	return buf.String(), nil
}
