package query

import "strings"

// Quoter maps an identifier to its SQL spelling.
type Quoter func(identifier string) string

var reservedWords = map[string]bool{
	"all": true, "and": true, "as": true, "asc": true, "by": true, "case": true, "check": true,
	"column": true, "constraint": true, "create": true, "default": true, "delete": true, "desc": true,
	"distinct": true, "drop": true, "else": true, "end": true, "from": true, "group": true,
	"having": true, "in": true, "index": true, "insert": true, "into": true, "is": true, "join": true,
	"key": true, "limit": true, "not": true, "null": true, "offset": true, "on": true, "or": true,
	"order": true, "primary": true, "references": true, "select": true, "set": true, "table": true,
	"then": true, "to": true, "union": true, "unique": true, "update": true, "user": true,
	"using": true, "values": true, "when": true, "where": true,
}

// QuoteIdentifier double-quotes identifiers that are reserved words or are
// not plain lower-case names; plain names are returned unchanged.
func QuoteIdentifier(identifier string) string {
	if isPlainIdentifier(identifier) && !reservedWords[identifier] {
		return identifier
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
