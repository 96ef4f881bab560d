package validation

import (
	"time"

	"jsonapi-backend/internal/metadata"
	"jsonapi-backend/internal/query"
)

// Mode selects create or update semantics for derived rules.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// FromEntity derives one rule per writable field of e. In create mode
// required fields without a default must be present.
func FromEntity(e *metadata.Entity, mode Mode) map[string]Rule {
	rules := make(map[string]Rule)
	for _, f := range e.WritableFields() {
		var extra []Rule
		for _, def := range e.RulesFor(f.Name) {
			extra = append(extra, DefRule(def))
		}
		rules[f.Name] = FieldRule(e.Name, f, mode, extra...)
	}
	return rules
}

// FieldRule is the rule for a single attribute value. extra runs after the
// type and constraint checks, before uniqueness and hashing.
func FieldRule(entity string, f metadata.Field, mode Mode, extra ...Rule) Rule {
	checks := []Rule{typeRule(f.Type)}
	if f.MinLength > 0 && f.MaxLength > 0 {
		checks = append(checks, StringLengthBetween(f.MinLength, f.MaxLength))
	} else if f.MinLength > 0 {
		checks = append(checks, StringLengthMin(f.MinLength))
	} else if f.MaxLength > 0 {
		checks = append(checks, StringLengthMax(f.MaxLength))
	}
	if len(f.Enum) > 0 {
		values := make([]any, len(f.Enum))
		for i, v := range f.Enum {
			values[i] = v
		}
		checks = append(checks, Enum(values...))
	}
	checks = append(checks, extra...)
	if f.Unique {
		checks = append(checks, Unique(entity, f.Name))
	}
	if f.Hashed {
		checks = append(checks, Hash(0))
	}

	r := And(checks...)
	if f.Nullable {
		r = Nullable(r)
	} else {
		r = And(NotNull(), r)
	}
	if mode == ModeCreate && f.Required && f.Default == nil {
		r = And(Required(), r)
	}
	return r
}

// DefRule compiles a metadata expression rule. It panics on expressions
// that do not compile; Registry.Load rejects those up front.
func DefRule(def metadata.RuleDef) Rule {
	r := expression(def.Expression, def.Message)
	if def.When != "" {
		r = When(def.When, r, Success())
	}
	return r
}

func typeRule(fieldType string) Rule {
	switch fieldType {
	case metadata.TypeString, metadata.TypeText:
		return IsString()
	case metadata.TypeInt, metadata.TypeBigInt:
		return IsInt()
	case metadata.TypeFloat:
		return IsFloat()
	case metadata.TypeDecimal:
		return IsNumeric()
	case metadata.TypeBoolean:
		return IsBool()
	case metadata.TypeUUID:
		return IsUUID()
	case metadata.TypeDate:
		return And(IsString(), StringToDateTime(query.DateLayout))
	case metadata.TypeTimestamp:
		return And(IsString(), StringToDateTime(time.RFC3339))
	}
	return Success()
}

// ArgumentRule converts a query-string filter argument to the type of the
// attribute it is compared with. Temporal arguments are rendered in the
// storage layout.
func ArgumentRule(fieldType string) Rule {
	switch fieldType {
	case metadata.TypeInt, metadata.TypeBigInt:
		return StringToInt()
	case metadata.TypeFloat, metadata.TypeDecimal:
		return StringToFloat()
	case metadata.TypeBoolean:
		return StringToBool()
	case metadata.TypeUUID:
		return IsUUID()
	case metadata.TypeDate:
		return And(StringToDateTime(query.DateLayout), FormatDateTime(query.DateLayout))
	case metadata.TypeTimestamp:
		return And(
			Or(StringToDateTime(time.RFC3339), StringToDateTime(query.TimestampLayout), StringToDateTime(query.DateLayout)),
			FormatDateTime(query.TimestampLayout),
		)
	}
	return IsString()
}
