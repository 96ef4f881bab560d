package query

import (
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ApplyFilter appends the leaf predicates for one filter to link. column must
// already be alias-qualified and quoted. On malformed input one error goes to
// errs, nothing is appended and false is returned; sibling filters are not
// affected.
func ApplyFilter(link *Composite, column string, f FilterParameter, errs *Errors) bool {
	op, ok := NormalizeOperator(f.Operator)
	if !ok {
		errs.Add(f.Field, f.Operator, CodeInvalidOperation, ErrInvalidOperation)
		return false
	}

	switch {
	case takesNoArgs(op):
		if op == OpIsNull {
			link.Add(sq.Eq{column: nil})
		} else {
			link.Add(sq.NotEq{column: nil})
		}
		return true

	case takesList(op):
		if len(f.Args) == 0 {
			errs.Add(f.Field, op, CodeInvalidArgument, fmt.Errorf("%w: %s needs at least one value", ErrInvalidArgument, op))
			return false
		}
		for _, arg := range f.Args {
			if !isScalar(arg) {
				errs.Add(f.Field, op, CodeInvalidArgument, fmt.Errorf("%w: %s accepts scalar values only", ErrInvalidArgument, op))
				return false
			}
		}
		values := append([]any(nil), f.Args...)
		if op == OpIn {
			link.Add(sq.Eq{column: values})
		} else {
			link.Add(sq.NotEq{column: values})
		}
		return true
	}

	if len(f.Args) == 0 {
		errs.Add(f.Field, op, CodeInvalidArgument, fmt.Errorf("%w: %s needs a value", ErrInvalidArgument, op))
		return false
	}
	for _, arg := range f.Args {
		if !isScalar(arg) {
			errs.Add(f.Field, op, CodeInvalidArgument, fmt.Errorf("%w: %s accepts scalar values only", ErrInvalidArgument, op))
			return false
		}
	}
	for _, arg := range f.Args {
		link.Add(leaf(op, column, arg))
	}
	return true
}

func leaf(op, column string, arg any) sq.Sqlizer {
	switch op {
	case OpEquals:
		return sq.Eq{column: arg}
	case OpNotEquals:
		return sq.NotEq{column: arg}
	case OpLessThan:
		return sq.Lt{column: arg}
	case OpLessOrEquals:
		return sq.LtOrEq{column: arg}
	case OpGreaterThan:
		return sq.Gt{column: arg}
	case OpGreaterOrEqual:
		return sq.GtOrEq{column: arg}
	case OpLike:
		return sq.Like{column: arg}
	case OpNotLike:
		return sq.NotLike{column: arg}
	}
	panic("query: no leaf for operator " + op)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
