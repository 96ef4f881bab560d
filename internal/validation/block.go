// Package validation compiles declarative rules into a flat, immutable block
// arena and evaluates it against input values, collecting captures and
// errors in a per-run Context.
package validation

import "fmt"

// ExecFunc transforms or checks one value.
type ExecFunc func(value any, c *Context) Result

// HookFunc runs before (start) or after (end) all values of an entry have
// been executed. State for the hook lives in c.Local().
type HookFunc func(c *Context) []Error

// CondFunc selects the branch of an If block.
type CondFunc func(value any, c *Context) (bool, error)

// Result is the outcome of executing a block: the (possibly converted) value
// and the errors it produced. No errors means success.
type Result struct {
	Value  any
	Errors []Error
}

func (r Result) OK() bool { return len(r.Errors) == 0 }

// Block is one node of a compiled program. The set of implementations is
// closed; switch on the concrete type.
type Block interface {
	block()
}

// ProcedureBlock is a leaf: exec plus optional start/end hooks.
type ProcedureBlock struct {
	Name       string
	Exec       ExecFunc
	Start      HookFunc
	End        HookFunc
	Properties map[string]any
}

// AndBlock runs Secondary on the output of Primary when Primary succeeds.
type AndBlock struct {
	Primary, Secondary int
}

// OrBlock runs Secondary on the original input when Primary fails.
type OrBlock struct {
	Primary, Secondary int
}

// IfBlock branches on Condition.
type IfBlock struct {
	Condition       CondFunc
	OnTrue, OnFalse int
}

func (ProcedureBlock) block() {}
func (AndBlock) block()       {}
func (OrBlock) block()        {}
func (IfBlock) block()        {}

// Entry is the compiled rule of one named input field.
type Entry struct {
	Name   string
	Root   int
	Starts []int
	Ends   []int
}

// Program is an immutable compiled rule set. It is safe to share between
// goroutines; all run state lives in Context.
type Program struct {
	blocks  []Block
	starts  []int
	ends    []int
	entries map[string]Entry
	names   []string
}

func (p *Program) Blocks() []Block { return p.blocks }

// Starts lists every block with a start hook, in index order.
func (p *Program) Starts() []int { return p.starts }

// Ends lists every block with an end hook, in index order.
func (p *Program) Ends() []int { return p.ends }

func (p *Program) Entry(name string) (Entry, bool) {
	e, ok := p.entries[name]
	return e, ok
}

// Names returns the entry names in sorted order.
func (p *Program) Names() []string { return p.names }

func (p *Program) checkIndex(owner, idx int) {
	if idx < 0 || idx >= len(p.blocks) {
		panic(fmt.Sprintf("validation: block %d references missing block %d", owner, idx))
	}
}
