package validation

import (
	"fmt"
	"sort"
	"strings"
)

// Formatter renders an Error as a human readable message.
type Formatter interface {
	Format(e Error) string
}

var defaultMessages = map[string]string{
	CodeRequired:     "is required",
	CodeIsNull:       "must be null",
	CodeNotNull:      "must not be null",
	CodeString:       "must be a string",
	CodeInt:          "must be an integer",
	CodeFloat:        "must be a number",
	CodeBool:         "must be a boolean",
	CodeNumeric:      "must be numeric",
	CodeArray:        "must be a list",
	CodeUUID:         "must be a UUID",
	CodeDateTime:     "must be a date/time in format {layout}",
	CodeLengthRange:  "length must be between {min} and {max}",
	CodeLengthMin:    "length must be at least {min}",
	CodeLengthMax:    "length must be at most {max}",
	CodeRegexp:       "must match {pattern}",
	CodeBetween:      "must be between {min} and {max}",
	CodeEnum:         "must be one of {values}",
	CodeEquals:       "must equal {expected}",
	CodeExpression:   "does not satisfy {expression}",
	CodeUnique:       "is already taken",
	CodeExists:       "does not exist",
	CodeHash:         "cannot be hashed",
	CodeFail:         "is invalid",
	CodeUnknownField: "is not allowed",
	CodeInternal:     "could not be validated",
}

// DefaultFormatter renders English messages. Messages overrides or extends
// the built-in templates; "{name}" is replaced by Params["name"].
type DefaultFormatter struct {
	Messages map[string]string
}

// A "message" param, as set by metadata rules, is returned as is.
func (f DefaultFormatter) Format(e Error) string {
	if msg, ok := e.Params["message"].(string); ok && msg != "" {
		return msg
	}
	tmpl, ok := f.Messages[e.Code]
	if !ok {
		tmpl, ok = defaultMessages[e.Code]
	}
	if !ok {
		tmpl = "is invalid"
	}
	if len(e.Params) == 0 {
		return tmpl
	}

	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(e.Params[k]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
