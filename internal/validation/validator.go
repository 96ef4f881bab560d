package validation

import (
	"context"
	"sort"
)

// Validator validates flat maps against a compiled Program. A Validator is
// reusable but not safe for concurrent use; the Program it wraps is.
type Validator struct {
	program        *Program
	formatter      Formatter
	ctx            *Context
	ignoreUnknowns bool
}

func NewValidator(p *Program, f Formatter, opts ...ContextOption) *Validator {
	if f == nil {
		f = DefaultFormatter{}
	}
	return &Validator{program: p, formatter: f, ctx: NewContext(opts...)}
}

// IgnoreUnknowns accepts keys that have no entry instead of reporting them.
func (v *Validator) IgnoreUnknowns() *Validator {
	v.ignoreUnknowns = true
	return v
}

// Context exposes the run context, e.g. to set ExceptIDKey before an update.
func (v *Validator) Context() *Context { return v.ctx }

// Validate runs every start hook, then the entries of the keys present in
// input, then every end hook. It reports whether no error was recorded.
func (v *Validator) Validate(ctx context.Context, input map[string]any) bool {
	c := v.ctx
	c.Reset()
	c.WithContext(ctx)

	names := v.program.Names()
	for _, name := range names {
		e, _ := v.program.Entry(name)
		ExecuteStarts(v.program, e, c)
	}

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e, found := v.program.Entry(k)
		if !found {
			if !v.ignoreUnknowns {
				c.AddError(Error{Field: k, Value: input[k], Code: CodeUnknownField})
			}
			continue
		}
		Execute(input[k], v.program, e, c)
	}

	for _, name := range names {
		e, _ := v.program.Entry(name)
		ExecuteEnds(v.program, e, c)
	}
	return !c.HasErrors()
}

// Assert is Validate returning an *AssertError carrying every error.
func (v *Validator) Assert(ctx context.Context, input map[string]any) error {
	if v.Validate(ctx, input) {
		return nil
	}
	return &AssertError{Errors: v.Errors(), Formatter: v.formatter}
}

// Captures of the last run.
func (v *Validator) Captures() *Captures { return v.ctx.Captures() }

func (v *Validator) Errors() Errors { return v.ctx.Errors() }

func (v *Validator) Formatter() Formatter { return v.formatter }
