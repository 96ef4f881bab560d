package validation

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Procedure builds a leaf rule from its callables. exec may be nil.
func Procedure(name string, exec ExecFunc, start, end HookFunc, props map[string]any) Rule {
	return procedureRule{name: name, exec: exec, start: start, end: end, props: props}
}

// Custom is a leaf rule around fn.
func Custom(name string, fn ExecFunc) Rule {
	return procedureRule{name: name, exec: fn}
}

func Success() Rule {
	return procedureRule{name: "success"}
}

// Fail always fails with code.
func Fail(code string) Rule {
	return procedureRule{name: "fail", exec: func(v any, _ *Context) Result {
		return newError(v, code, nil)
	}}
}

// And chains rules: each runs on the output of the previous one and the
// chain stops at the first failure.
func And(rules ...Rule) Rule {
	switch len(rules) {
	case 0:
		return Success()
	case 1:
		return rules[0]
	}
	return andRule{primary: rules[0], secondary: And(rules[1:]...)}
}

// Or tries rules in order on the same input until one succeeds. When all
// fail, the errors of the last one are reported.
func Or(rules ...Rule) Rule {
	switch len(rules) {
	case 0:
		return Success()
	case 1:
		return rules[0]
	}
	return orRule{primary: rules[0], secondary: Or(rules[1:]...)}
}

func If(cond CondFunc, onTrue, onFalse Rule) Rule {
	return ifRule{cond: cond, onTrue: onTrue, onFalse: onFalse}
}

const seenKey = "seen"

// Required fails at the end of a run when its entry was never executed,
// i.e. the field was absent from the input.
func Required() Rule {
	return procedureRule{
		name: "required",
		start: func(c *Context) []Error {
			c.Local()[seenKey] = false
			return nil
		},
		exec: func(v any, c *Context) Result {
			c.Local()[seenKey] = true
			return ok(v)
		},
		end: func(c *Context) []Error {
			if seen, _ := c.Local()[seenKey].(bool); seen {
				return nil
			}
			return []Error{{Code: CodeRequired}}
		},
	}
}

func IsNull() Rule {
	return check("is-null", CodeIsNull, nil, func(v any) bool { return v == nil })
}

func NotNull() Rule {
	return check("not-null", CodeNotNull, nil, func(v any) bool { return v != nil })
}

// Nullable accepts nil or whatever r accepts.
func Nullable(r Rule) Rule {
	return Or(IsNull(), r)
}

func IsString() Rule {
	return check("is-string", CodeString, nil, func(v any) bool {
		_, ok := v.(string)
		return ok
	})
}

func IsBool() Rule {
	return check("is-bool", CodeBool, nil, func(v any) bool {
		_, ok := v.(bool)
		return ok
	})
}

func IsArray() Rule {
	return check("is-array", CodeArray, nil, func(v any) bool {
		_, ok := v.([]any)
		return ok
	})
}

// IsInt accepts integers, including integral JSON numbers, and converts
// them to int64.
func IsInt() Rule {
	return convert("is-int", CodeInt, nil, func(v any) (any, bool) { return toInt64(v) })
}

// IsFloat accepts any number and converts it to float64.
func IsFloat() Rule {
	return convert("is-float", CodeFloat, nil, func(v any) (any, bool) { return toFloat64(v) })
}

// IsNumeric accepts any number and leaves it unchanged.
func IsNumeric() Rule {
	return check("is-numeric", CodeNumeric, nil, func(v any) bool {
		_, ok := toFloat64(v)
		return ok
	})
}

func IsUUID() Rule {
	return check("is-uuid", CodeUUID, nil, func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, err := uuid.Parse(s)
		return err == nil
	})
}

// StringToInt parses a decimal string; integers pass through.
func StringToInt() Rule {
	return convert("string-to-int", CodeInt, nil, func(v any) (any, bool) {
		if s, ok := v.(string); ok {
			return parseInt(s)
		}
		return toInt64(v)
	})
}

func StringToFloat() Rule {
	return convert("string-to-float", CodeFloat, nil, func(v any) (any, bool) {
		if s, ok := v.(string); ok {
			return parseFloat(s)
		}
		return toFloat64(v)
	})
}

func StringToBool() Rule {
	return convert("string-to-bool", CodeBool, nil, func(v any) (any, bool) {
		switch val := v.(type) {
		case bool:
			return val, true
		case string:
			return parseBool(val)
		}
		return nil, false
	})
}

// StringToDateTime parses a string with layout; time.Time values pass.
func StringToDateTime(layout string) Rule {
	params := map[string]any{"layout": layout}
	return convert("string-to-datetime", CodeDateTime, params, func(v any) (any, bool) {
		switch val := v.(type) {
		case time.Time:
			return val, true
		case string:
			t, err := time.Parse(layout, val)
			return t, err == nil
		}
		return nil, false
	})
}

// FormatDateTime renders a time.Time in UTC with layout.
func FormatDateTime(layout string) Rule {
	params := map[string]any{"layout": layout}
	return convert("format-datetime", CodeDateTime, params, func(v any) (any, bool) {
		t, ok := v.(time.Time)
		if !ok {
			return nil, false
		}
		return t.UTC().Format(layout), true
	})
}

// StringLengthBetween counts runes, not bytes.
func StringLengthBetween(min, max int) Rule {
	params := map[string]any{"min": min, "max": max}
	return check("length-between", CodeLengthRange, params, func(v any) bool {
		s, ok := v.(string)
		n := utf8.RuneCountInString(s)
		return ok && n >= min && n <= max
	})
}

func StringLengthMin(min int) Rule {
	return check("length-min", CodeLengthMin, map[string]any{"min": min}, func(v any) bool {
		s, ok := v.(string)
		return ok && utf8.RuneCountInString(s) >= min
	})
}

func StringLengthMax(max int) Rule {
	return check("length-max", CodeLengthMax, map[string]any{"max": max}, func(v any) bool {
		s, ok := v.(string)
		return ok && utf8.RuneCountInString(s) <= max
	})
}

// Regexp panics on an invalid pattern.
func Regexp(pattern string) Rule {
	re := regexp.MustCompile(pattern)
	return check("regexp", CodeRegexp, map[string]any{"pattern": pattern}, func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	})
}

// Between checks min <= v <= max for any number.
func Between(min, max float64) Rule {
	return check("between", CodeBetween, map[string]any{"min": min, "max": max}, func(v any) bool {
		f, ok := toFloat64(v)
		return ok && f >= min && f <= max
	})
}

// Enum accepts values whose printed form matches one of values.
func Enum(values ...any) Rule {
	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[fmt.Sprint(v)] = true
	}
	return check("enum", CodeEnum, map[string]any{"values": values}, func(v any) bool {
		return v != nil && allowed[fmt.Sprint(v)]
	})
}

func Equals(expected any) Rule {
	return check("equals", CodeEquals, map[string]any{"expected": expected}, func(v any) bool {
		return fmt.Sprint(v) == fmt.Sprint(expected) && (v == nil) == (expected == nil)
	})
}

// Expression checks a boolean expr-lang expression. The environment has
// "value" (the current value), "field" and "record" (captures so far).
// It panics when the expression does not compile.
func Expression(src string) Rule {
	return expression(src, "")
}

// expression is Expression with a fixed error message, if not empty.
func expression(src, message string) Rule {
	prog := mustCompileBool(src)
	params := map[string]any{"expression": src}
	if message != "" {
		params["message"] = message
	}
	return procedureRule{name: "expression", props: params, exec: func(v any, c *Context) Result {
		yes, err := runBool(prog, v, c)
		if err != nil {
			return newError(v, CodeInternal, map[string]any{"error": err.Error()})
		}
		if !yes {
			return newError(v, CodeExpression, params)
		}
		return ok(v)
	}}
}

// When branches on an expr-lang condition evaluated like Expression.
func When(src string, onTrue, onFalse Rule) Rule {
	prog := mustCompileBool(src)
	return If(func(v any, c *Context) (bool, error) {
		return runBool(prog, v, c)
	}, onTrue, onFalse)
}

func mustCompileBool(src string) *vm.Program {
	prog, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		panic(fmt.Sprintf("validation: compile expression %q: %v", src, err))
	}
	return prog
}

func runBool(prog *vm.Program, v any, c *Context) (bool, error) {
	env := map[string]any{
		"value":  v,
		"field":  c.Field(),
		"record": c.Captures().Map(),
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

// Unique fails when another record of entity already has column = value.
// The record named by the ExceptIDKey context value is ignored.
func Unique(entity, column string) Rule {
	params := map[string]any{"entity": entity, "column": column}
	return If(func(v any, c *Context) (bool, error) {
		exists, err := lookup(c, entity, column, v, c.Value(ExceptIDKey))
		return !exists, err
	}, Success(), failWith(CodeUnique, params))
}

// Exists fails unless a record of entity has column = value.
func Exists(entity, column string) Rule {
	params := map[string]any{"entity": entity, "column": column}
	return If(func(v any, c *Context) (bool, error) {
		return lookup(c, entity, column, v, nil)
	}, Success(), failWith(CodeExists, params))
}

func lookup(c *Context, entity, column string, v, except any) (bool, error) {
	if c.Checker() == nil {
		return false, fmt.Errorf("no database checker for %s.%s", entity, column)
	}
	return c.Checker().Exists(c.Context(), entity, column, v, except)
}

func failWith(code string, params map[string]any) Rule {
	return procedureRule{name: "fail", exec: func(v any, _ *Context) Result {
		return newError(v, code, params)
	}}
}

// Hash replaces a string with its bcrypt hash.
func Hash(cost int) Rule {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return procedureRule{name: "hash", exec: func(v any, _ *Context) Result {
		s, isString := v.(string)
		if !isString {
			return newError(v, CodeString, nil)
		}
		h, err := bcrypt.GenerateFromPassword([]byte(s), cost)
		if err != nil {
			return newError(v, CodeHash, map[string]any{"error": err.Error()})
		}
		return ok(string(h))
	}}
}

// EachItem applies r to every element of a list and outputs the list of
// converted elements. Item errors carry their position in Params["index"].
func EachItem(r Rule) Rule {
	return compiledRule{child: r, build: func(child int) procedureRule {
		return procedureRule{name: "each-item", exec: func(v any, c *Context) Result {
			items, isList := v.([]any)
			if !isList {
				return newError(v, CodeArray, nil)
			}
			out := make([]any, len(items))
			var errs []Error
			for i, item := range items {
				res := c.run(child, item)
				for _, e := range res.Errors {
					if e.Params == nil {
						e.Params = map[string]any{}
					} else {
						e.Params = copyParams(e.Params)
					}
					e.Params["index"] = i
					errs = append(errs, e)
				}
				out[i] = res.Value
			}
			return Result{Value: out, Errors: errs}
		}}
	}}
}

// Capture records the output of r under name when r succeeds.
func Capture(name string, r Rule) Rule {
	return And(r, capture(name))
}

func capture(name string) Rule {
	return procedureRule{name: "capture", props: map[string]any{"name": name}, exec: func(v any, c *Context) Result {
		c.Captures().Set(name, v)
		return ok(v)
	}}
}

func check(name, code string, params map[string]any, pred func(any) bool) Rule {
	return procedureRule{name: name, props: params, exec: func(v any, _ *Context) Result {
		if !pred(v) {
			return newError(v, code, params)
		}
		return ok(v)
	}}
}

func convert(name, code string, params map[string]any, fn func(any) (any, bool)) Rule {
	return procedureRule{name: name, props: params, exec: func(v any, _ *Context) Result {
		out, converted := fn(v)
		if !converted {
			return newError(v, code, params)
		}
		return ok(out)
	}}
}

func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}
