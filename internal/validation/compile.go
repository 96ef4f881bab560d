package validation

import "sort"

// Rule is a declarative validation node. Rules are built with the
// constructors in this package and turned into a Program by Compile.
type Rule interface {
	compile(c *compiler) int
}

type compiler struct {
	blocks []Block
}

func (c *compiler) add(b Block) int {
	c.blocks = append(c.blocks, b)
	return len(c.blocks) - 1
}

type procedureRule struct {
	name  string
	exec  ExecFunc
	start HookFunc
	end   HookFunc
	props map[string]any
}

func (r procedureRule) compile(c *compiler) int {
	exec := r.exec
	if exec == nil {
		exec = pass
	}
	return c.add(ProcedureBlock{Name: r.name, Exec: exec, Start: r.start, End: r.end, Properties: r.props})
}

type andRule struct{ primary, secondary Rule }

func (r andRule) compile(c *compiler) int {
	p := r.primary.compile(c)
	s := r.secondary.compile(c)
	return c.add(AndBlock{Primary: p, Secondary: s})
}

type orRule struct{ primary, secondary Rule }

func (r orRule) compile(c *compiler) int {
	p := r.primary.compile(c)
	s := r.secondary.compile(c)
	return c.add(OrBlock{Primary: p, Secondary: s})
}

type ifRule struct {
	cond            CondFunc
	onTrue, onFalse Rule
}

func (r ifRule) compile(c *compiler) int {
	t := r.onTrue.compile(c)
	f := r.onFalse.compile(c)
	return c.add(IfBlock{Condition: r.cond, OnTrue: t, OnFalse: f})
}

// compiledRule lets a procedure reach a child compiled into the same arena.
type compiledRule struct {
	child Rule
	build func(child int) procedureRule
}

func (r compiledRule) compile(c *compiler) int {
	child := r.child.compile(c)
	return r.build(child).compile(c)
}

// Compile turns named rules into a Program. Every entry captures its final
// value under its own name when it succeeds.
func Compile(entries map[string]Rule) *Program {
	c := &compiler{}
	p := &Program{entries: make(map[string]Entry, len(entries))}

	for name := range entries {
		p.names = append(p.names, name)
	}
	sort.Strings(p.names)

	for _, name := range p.names {
		root := And(entries[name], capture(name)).compile(c)
		p.entries[name] = Entry{Name: name, Root: root}
	}
	p.blocks = c.blocks

	for i, b := range p.blocks {
		switch b := b.(type) {
		case ProcedureBlock:
			if b.Start != nil {
				p.starts = append(p.starts, i)
			}
			if b.End != nil {
				p.ends = append(p.ends, i)
			}
		case AndBlock:
			p.checkIndex(i, b.Primary)
			p.checkIndex(i, b.Secondary)
		case OrBlock:
			p.checkIndex(i, b.Primary)
			p.checkIndex(i, b.Secondary)
		case IfBlock:
			p.checkIndex(i, b.OnTrue)
			p.checkIndex(i, b.OnFalse)
		}
	}

	for name, e := range p.entries {
		e.Starts, e.Ends = p.hooked(e.Root)
		p.entries[name] = e
	}
	return p
}

// hooked collects the start and end hooked blocks reachable from root.
func (p *Program) hooked(root int) (starts, ends []int) {
	var walk func(i int)
	walk = func(i int) {
		switch b := p.blocks[i].(type) {
		case ProcedureBlock:
			if b.Start != nil {
				starts = append(starts, i)
			}
			if b.End != nil {
				ends = append(ends, i)
			}
		case AndBlock:
			walk(b.Primary)
			walk(b.Secondary)
		case OrBlock:
			walk(b.Primary)
			walk(b.Secondary)
		case IfBlock:
			walk(b.OnTrue)
			walk(b.OnFalse)
		}
	}
	walk(root)
	sort.Ints(starts)
	sort.Ints(ends)
	return starts, ends
}
