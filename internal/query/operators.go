package query

import "strings"

// JoinMode combines sibling predicates.
type JoinMode string

const (
	And JoinMode = "and"
	Or  JoinMode = "or"
)

// Filter operators. Operator strings arrive from clients, so FilterParameter
// keeps them untyped until the applicator validates them.
const (
	OpEquals         = "eq"
	OpNotEquals      = "neq"
	OpLessThan       = "lt"
	OpLessOrEquals   = "lte"
	OpGreaterThan    = "gt"
	OpGreaterOrEqual = "gte"
	OpLike           = "like"
	OpNotLike        = "not-like"
	OpIn             = "in"
	OpNotIn          = "not-in"
	OpIsNull         = "is-null"
	OpIsNotNull      = "not-null"
)

var operatorAliases = map[string]string{
	"eq": OpEquals, "equals": OpEquals, "=": OpEquals,
	"neq": OpNotEquals, "not-equals": OpNotEquals, "ne": OpNotEquals, "!=": OpNotEquals,
	"lt": OpLessThan, "less-than": OpLessThan, "<": OpLessThan,
	"lte": OpLessOrEquals, "less-or-equals": OpLessOrEquals, "<=": OpLessOrEquals,
	"gt": OpGreaterThan, "greater-than": OpGreaterThan, ">": OpGreaterThan,
	"gte": OpGreaterOrEqual, "greater-or-equals": OpGreaterOrEqual, ">=": OpGreaterOrEqual,
	"like":     OpLike,
	"not-like": OpNotLike, "nlike": OpNotLike,
	"in":     OpIn,
	"not-in": OpNotIn, "nin": OpNotIn,
	"is-null": OpIsNull, "null": OpIsNull,
	"not-null": OpIsNotNull, "is-not-null": OpIsNotNull,
}

// NormalizeOperator maps a client operator name to its canonical form.
func NormalizeOperator(op string) (string, bool) {
	canonical, ok := operatorAliases[strings.ToLower(strings.TrimSpace(op))]
	return canonical, ok
}

// takesList reports operators whose argument is a whole list.
func takesList(op string) bool {
	return op == OpIn || op == OpNotIn
}

// takesNoArgs reports the null checks.
func takesNoArgs(op string) bool {
	return op == OpIsNull || op == OpIsNotNull
}

func isPattern(op string) bool {
	return op == OpLike || op == OpNotLike
}
