package validation

import (
	"context"

	"go.uber.org/zap"
)

// Checker answers existence questions for database-backed rules.
type Checker interface {
	Exists(ctx context.Context, entity, column string, value, exceptID any) (bool, error)
}

// Context holds the mutable state of one validation run: per-block scratch
// space, captures and errors, plus the collaborators rules may use.
type Context struct {
	ctx      context.Context
	checker  Checker
	logger   *zap.Logger
	values   map[string]any
	program  *Program
	field    string
	block    int
	locals   map[int]map[string]any
	captures *Captures
	errors   Errors
}

type ContextOption func(*Context)

// WithChecker provides the database checker used by Unique and Exists.
func WithChecker(ch Checker) ContextOption {
	return func(c *Context) { c.checker = ch }
}

func WithLogger(l *zap.Logger) ContextOption {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithValue stores a scratch value visible to every rule, e.g. the id of the
// record being updated under ExceptIDKey.
func WithValue(key string, v any) ContextOption {
	return func(c *Context) { c.values[key] = v }
}

// ExceptIDKey names the record excluded from uniqueness checks.
const ExceptIDKey = "except_id"

func NewContext(opts ...ContextOption) *Context {
	c := &Context{
		ctx:      context.Background(),
		logger:   zap.NewNop(),
		values:   make(map[string]any),
		locals:   make(map[int]map[string]any),
		captures: NewCaptures(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset clears captures, errors and block state for the next run. The
// collaborators and scratch values are kept.
func (c *Context) Reset() {
	c.program = nil
	c.field = ""
	c.block = 0
	c.locals = make(map[int]map[string]any)
	c.captures = NewCaptures()
	c.errors = nil
}

// WithContext sets the context.Context passed to collaborators.
func (c *Context) WithContext(ctx context.Context) *Context {
	if ctx != nil {
		c.ctx = ctx
	}
	return c
}

func (c *Context) Context() context.Context { return c.ctx }

func (c *Context) Checker() Checker { return c.checker }

func (c *Context) Logger() *zap.Logger { return c.logger }

func (c *Context) Value(key string) any { return c.values[key] }

func (c *Context) SetValue(key string, v any) { c.values[key] = v }

// Field is the entry currently executing.
func (c *Context) Field() string { return c.field }

// Local is the scratch map of the block currently executing, scoped to the
// current entry.
func (c *Context) Local() map[string]any {
	m, ok := c.locals[c.block]
	if !ok {
		m = make(map[string]any)
		c.locals[c.block] = m
	}
	return m
}

// Properties of the procedure currently executing.
func (c *Context) Properties() map[string]any {
	if c.program == nil {
		return nil
	}
	if b, ok := c.program.blocks[c.block].(ProcedureBlock); ok {
		return b.Properties
	}
	return nil
}

func (c *Context) Captures() *Captures { return c.captures }

func (c *Context) Errors() Errors { return c.errors }

func (c *Context) HasErrors() bool { return len(c.errors) > 0 }

// AddError records an error for an arbitrary field.
func (c *Context) AddError(e Error) {
	c.errors = append(c.errors, e)
}

func (c *Context) enter(p *Program, field string) {
	c.program = p
	c.field = field
}

func (c *Context) record(errs []Error) {
	for _, e := range errs {
		if e.Field == "" {
			e.Field = c.field
		}
		c.errors = append(c.errors, e)
	}
}

// Captures is an insertion-ordered map of validated values.
type Captures struct {
	keys   []string
	values map[string]any
}

func NewCaptures() *Captures {
	return &Captures{values: make(map[string]any)}
}

func (c *Captures) Set(key string, v any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

func (c *Captures) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Captures) Keys() []string { return append([]string(nil), c.keys...) }

func (c *Captures) Len() int { return len(c.keys) }

// Map returns a copy of the captured values.
func (c *Captures) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
