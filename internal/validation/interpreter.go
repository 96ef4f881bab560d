package validation

// Execute runs entry against input. Errors are recorded in c under the entry
// name; the return value reports success.
func Execute(input any, p *Program, e Entry, c *Context) bool {
	c.enter(p, e.Name)
	r := c.run(e.Root, input)
	c.record(r.Errors)
	return r.OK()
}

// ExecuteStarts calls the start hooks of entry.
func ExecuteStarts(p *Program, e Entry, c *Context) {
	c.enter(p, e.Name)
	for _, i := range e.Starts {
		c.block = i
		c.record(p.blocks[i].(ProcedureBlock).Start(c))
	}
}

// ExecuteEnds calls the end hooks of entry and reports whether they all
// passed.
func ExecuteEnds(p *Program, e Entry, c *Context) bool {
	c.enter(p, e.Name)
	ok := true
	for _, i := range e.Ends {
		c.block = i
		errs := p.blocks[i].(ProcedureBlock).End(c)
		if len(errs) > 0 {
			ok = false
			c.record(errs)
		}
	}
	return ok
}

func (c *Context) run(i int, value any) Result {
	switch b := c.program.blocks[i].(type) {
	case ProcedureBlock:
		prev := c.block
		c.block = i
		r := b.Exec(value, c)
		c.block = prev
		return r

	case AndBlock:
		r := c.run(b.Primary, value)
		if !r.OK() {
			return r
		}
		return c.run(b.Secondary, r.Value)

	case OrBlock:
		r := c.run(b.Primary, value)
		if r.OK() {
			return r
		}
		return c.run(b.Secondary, value)

	case IfBlock:
		yes, err := b.Condition(value, c)
		if err != nil {
			return Result{Value: value, Errors: []Error{{Value: value, Code: CodeInternal, Params: map[string]any{"error": err.Error()}}}}
		}
		if yes {
			return c.run(b.OnTrue, value)
		}
		return c.run(b.OnFalse, value)
	}
	panic("validation: unknown block type")
}
