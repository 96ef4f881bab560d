// Package jsonapi validates JSON:API request documents and query parameters
// with compiled validation programs and reports failures as JSON:API error
// objects.
package jsonapi

import (
	"fmt"
	"strings"

	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/validation"
)

const (
	StatusInvalid  = "422"
	StatusConflict = "409"
)

// Codes produced by the parsers themselves. Rule failures keep their
// validation code.
const (
	CodeInvalidDocument     = "invalid-document"
	CodeInvalidType         = "invalid-type"
	CodeIDNotAllowed        = "id-not-allowed"
	CodeIDMismatch          = "id-mismatch"
	CodeInvalidSection      = "invalid-section"
	CodeInvalidRelationship = "invalid-relationship"
	CodeInvalidParameter    = "invalid-parameter"
	CodeUnknownParameter    = "unknown-parameter"
	CodeInvalidPage         = "invalid-page"
	CodeUnknownInclude      = "unknown-include"
)

type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ErrorObject is a JSON:API error object.
type ErrorObject struct {
	Status string         `json:"status"`
	Code   string         `json:"code"`
	Title  string         `json:"title"`
	Detail string         `json:"detail,omitempty"`
	Source *ErrorSource   `json:"source,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ErrorCollection is the "errors" member of an error document.
type ErrorCollection struct {
	Errors []ErrorObject `json:"errors"`
}

func (c *ErrorCollection) Add(e ErrorObject) {
	if e.Status == "" {
		e.Status = StatusInvalid
	}
	c.Errors = append(c.Errors, e)
}

// AddPointer records an error about a document member.
func (c *ErrorCollection) AddPointer(pointer, code, title, detail string) {
	c.Add(ErrorObject{Code: code, Title: title, Detail: detail, Source: &ErrorSource{Pointer: pointer}})
}

// AddParameter records an error about a query parameter.
func (c *ErrorCollection) AddParameter(parameter, code, title, detail string) {
	c.Add(ErrorObject{Code: code, Title: title, Detail: detail, Source: &ErrorSource{Parameter: parameter}})
}

// AddValidation converts rule failures. source maps a field name to the
// error source.
func (c *ErrorCollection) AddValidation(errs validation.Errors, f validation.Formatter, source func(field string) ErrorSource) {
	if f == nil {
		f = validation.DefaultFormatter{}
	}
	for _, e := range errs {
		src := source(e.Field)
		obj := ErrorObject{
			Code:   e.Code,
			Title:  "Invalid " + lastSegment(e.Field),
			Detail: lastSegment(e.Field) + " " + f.Format(e),
			Source: &src,
		}
		if idx, ok := e.Params["index"]; ok {
			obj.Meta = map[string]any{"index": idx}
		}
		c.Add(obj)
	}
}

// AddFilterErrors converts filter and sort errors. Sort errors point at the
// sort parameter, the others at filter[field] or filter[field][op].
func (c *ErrorCollection) AddFilterErrors(errs query.Errors) {
	for _, e := range errs {
		param := "filter[" + e.Field + "]"
		if e.Operator != "" {
			param += "[" + e.Operator + "]"
		}
		if e.Code == query.CodeInvalidSort {
			param = "sort"
		}
		c.AddParameter(param, e.Code, "Invalid query parameter", e.Error())
	}
}

func (c *ErrorCollection) Len() int { return len(c.Errors) }

func (c *ErrorCollection) HasErrors() bool { return len(c.Errors) > 0 }

// Status is the HTTP status for the whole collection: 409 when every error
// is a conflict, 422 otherwise.
func (c *ErrorCollection) Status() int {
	if len(c.Errors) == 0 {
		return 200
	}
	for _, e := range c.Errors {
		if e.Status != StatusConflict {
			return 422
		}
	}
	return 409
}

// ValidationError carries the error collection of a failed Assert.
type ValidationError struct {
	Collection ErrorCollection
}

func (e *ValidationError) Error() string {
	if len(e.Collection.Errors) == 1 {
		return "validation failed: " + e.Collection.Errors[0].Detail
	}
	return fmt.Sprintf("validation failed: %d errors", len(e.Collection.Errors))
}

func lastSegment(field string) string {
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		return field[i+1:]
	}
	return field
}
