package query

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument     = errors.New("invalid filter argument")
	ErrInvalidOperation    = errors.New("invalid filter operation")
	ErrUnknownEntity       = errors.New("unknown entity")
	ErrUnknownRelationship = errors.New("unknown relationship")
	ErrUnknownAttribute    = errors.New("unknown attribute")
	ErrUnsupported         = errors.New("unsupported for relationship kind")
)

// Codes carried by FilterError, stable for clients.
const (
	CodeInvalidOperation    = "invalid-operation"
	CodeInvalidArgument     = "invalid-argument"
	CodeUnknownField        = "unknown-field"
	CodeUnknownRelationship = "unknown-relationship"
	CodeAndOrExclusive      = "and-or-exclusive"
	CodeInvalidSort         = "invalid-sort"
)

// FilterError is a per-field problem with a filter or sort parameter. Field
// is the name the client sent, not the resolved column.
type FilterError struct {
	Field    string
	Operator string
	Code     string
	Err      error
}

func (e *FilterError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("%s[%s]: %v", e.Field, e.Operator, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// Errors accumulates FilterErrors; the zero value is ready to use.
type Errors []*FilterError

func (e *Errors) Add(field, operator, code string, err error) {
	*e = append(*e, &FilterError{Field: field, Operator: operator, Code: code, Err: err})
}

func (e *Errors) Append(other Errors) {
	*e = append(*e, other...)
}

func (e Errors) HasErrors() bool {
	return len(e) > 0
}
