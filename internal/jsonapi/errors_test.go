package jsonapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"jsonapi-backend/internal/query"
	"jsonapi-backend/internal/validation"
)

func TestErrorCollection_FilterErrors(t *testing.T) {
	var errs query.Errors
	errs.Add("title", "between", query.CodeInvalidOperation, query.ErrInvalidOperation)
	errs.Add("sort", "", query.CodeInvalidSort, errors.New("empty sort field"))

	var c ErrorCollection
	c.AddFilterErrors(errs)

	assert.Equal(t, []string{"filter[title][between]", "sort"}, parameters(&c))
	assert.Equal(t, StatusInvalid, c.Errors[0].Status)
	assert.Equal(t, 422, c.Status())
}

func TestErrorCollection_Validation(t *testing.T) {
	var c ErrorCollection
	c.AddValidation(validation.Errors{
		{Field: "tags", Code: validation.CodeString, Params: map[string]any{"index": 2}},
	}, nil, func(field string) ErrorSource { return ErrorSource{Pointer: "/data/attributes/" + field} })

	assert.Equal(t, ErrorObject{
		Status: StatusInvalid,
		Code:   validation.CodeString,
		Title:  "Invalid tags",
		Detail: "tags must be a string",
		Source: &ErrorSource{Pointer: "/data/attributes/tags"},
		Meta:   map[string]any{"index": 2},
	}, c.Errors[0])

	err := &ValidationError{Collection: c}
	assert.Equal(t, "validation failed: tags must be a string", err.Error())
}
