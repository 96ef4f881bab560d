package metadata

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// RuleDef is an expr-lang rule on one field. Expression must be true for a
// value to be accepted; When, if set, limits the rule to values for which
// it is true. Both see value, field and record (the fields validated so far).
type RuleDef struct {
	Field      string `json:"field"`
	Expression string `json:"expression"`
	When       string `json:"when,omitempty"`
	Message    string `json:"message,omitempty"` // replaces the default error message
}

// RulesFor returns the rules declared on field, in declaration order.
func (e *Entity) RulesFor(field string) []RuleDef {
	var out []RuleDef
	for _, r := range e.Rules {
		if r.Field == field {
			out = append(out, r)
		}
	}
	return out
}

func checkRules(e *Entity) error {
	for i, r := range e.Rules {
		if !e.HasField(r.Field) {
			return fmt.Errorf("rule %d of %s: unknown field %q", i, e.Name, r.Field)
		}
		if r.Expression == "" {
			return fmt.Errorf("rule %d of %s.%s: expression is required", i, e.Name, r.Field)
		}
		sources := []string{r.Expression}
		if r.When != "" {
			sources = append(sources, r.When)
		}
		for _, src := range sources {
			if _, err := expr.Compile(src, expr.AsBool()); err != nil {
				return fmt.Errorf("rule %d of %s.%s: %w", i, e.Name, r.Field, err)
			}
		}
	}
	return nil
}
