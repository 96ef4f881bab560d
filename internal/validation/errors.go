package validation

import (
	"fmt"
	"strings"
)

// Error codes produced by the rule library.
const (
	CodeRequired     = "required"
	CodeIsNull       = "is-null"
	CodeNotNull      = "not-null"
	CodeString       = "string"
	CodeInt          = "int"
	CodeFloat        = "float"
	CodeBool         = "bool"
	CodeNumeric      = "numeric"
	CodeArray        = "array"
	CodeUUID         = "uuid"
	CodeDateTime     = "datetime"
	CodeLengthRange  = "length-between"
	CodeLengthMin    = "length-min"
	CodeLengthMax    = "length-max"
	CodeRegexp       = "regexp"
	CodeBetween      = "between"
	CodeEnum         = "enum"
	CodeEquals       = "equals"
	CodeExpression   = "expression"
	CodeUnique       = "unique"
	CodeExists       = "exists"
	CodeHash         = "hash"
	CodeFail         = "fail"
	CodeUnknownField = "unknown-field"
	CodeInternal     = "internal"
)

// Error is one validation failure. Params feed the message template.
type Error struct {
	Field  string
	Value  any
	Code   string
	Params map[string]any
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, DefaultFormatter{}.Format(e))
}

// Errors is an ordered list of validation failures.
type Errors []Error

// ForField returns the errors of one field.
func (es Errors) ForField(field string) Errors {
	var out Errors
	for _, e := range es {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

// AssertError is returned by Validator.Assert.
type AssertError struct {
	Errors    Errors
	Formatter Formatter
}

func (e *AssertError) Error() string {
	f := e.Formatter
	if f == nil {
		f = DefaultFormatter{}
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Field + ": " + f.Format(err)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Failure is the Result of a procedure rejecting value.
func Failure(value any, code string, params map[string]any) Result {
	return Result{Value: value, Errors: []Error{{Value: value, Code: code, Params: params}}}
}

func newError(value any, code string, params map[string]any) Result {
	return Failure(value, code, params)
}

func ok(value any) Result {
	return Result{Value: value}
}

func pass(value any, _ *Context) Result {
	return ok(value)
}
