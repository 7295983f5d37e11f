// Package evalctx defines the immutable evaluation context threaded
// through every operator/function call (spec.md §3, §9). A Context is
// never mutated in place: every "change" method returns a new value,
// sharing the unchanged parts of the old one.
package evalctx

import (
	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// TraceSink receives `trace()` output; the facade wires this to a
// caller-supplied sink or discards it (spec.md §4.4's trace() entry).
type TraceSink func(name string, values value.Sequence)

// Context is the immutable snapshot every evaluation step reads from.
// $this/$index/$total and the original evaluation input are carried
// alongside the current focus, since FHIRPath expressions can reference
// any of them mid-pipeline.
type Context struct {
	input    value.Sequence // %context: the original input to the whole expression
	focus    value.Sequence // the current left-hand value a step operates on
	thisVal  value.Sequence
	hasThis  bool
	index    int
	hasIndex bool
	total    value.Sequence
	hasTotal bool
	vars     map[string]value.Sequence // user-supplied %variables
	model    model.Provider
	trace    TraceSink
}

// New builds the root context for one evaluation: input and focus start
// identical, per spec.md §4.6.
func New(input value.Sequence, vars map[string]value.Sequence, mp model.Provider, trace TraceSink) *Context {
	copied := make(map[string]value.Sequence, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	return &Context{input: input, focus: input, vars: copied, model: mp, trace: trace}
}

// Input returns %context: the original input to the whole expression.
func (c *Context) Input() value.Sequence { return c.input }

// Focus returns the current left-hand value.
func (c *Context) Focus() value.Sequence { return c.focus }

// ModelProvider returns the configured model provider, or nil.
func (c *Context) ModelProvider() model.Provider { return c.model }

// Trace invokes the configured trace sink, if any.
func (c *Context) Trace(name string, values value.Sequence) {
	if c.trace != nil {
		c.trace(name, values)
	}
}

// WithFocus returns a copy of c with a new focus value — the core
// operation of the `.` (pipeline) operator.
func (c *Context) WithFocus(focus value.Sequence) *Context {
	cp := *c
	cp.focus = focus
	return &cp
}

// WithThis returns a copy of c with $this bound, for subexpression
// evaluation inside where/select/all/exists/repeat/trace.
func (c *Context) WithThis(item value.Sequence) *Context {
	cp := *c
	cp.thisVal = item
	cp.hasThis = true
	return &cp
}

// This returns the bound $this value and whether one is bound. Absent a
// binding, $this falls back to the current focus (spec.md §3).
func (c *Context) This() (value.Sequence, bool) {
	if c.hasThis {
		return c.thisVal, true
	}
	return c.focus, false
}

// WithIndex returns a copy of c with $index bound to i.
func (c *Context) WithIndex(i int) *Context {
	cp := *c
	cp.index = i
	cp.hasIndex = true
	return &cp
}

// Index returns the bound $index value and whether one is bound.
func (c *Context) Index() (int, bool) { return c.index, c.hasIndex }

// WithTotal returns a copy of c with $total bound. No registered
// function binds $total.
func (c *Context) WithTotal(total value.Sequence) *Context {
	cp := *c
	cp.total = total
	cp.hasTotal = true
	return &cp
}

// Total returns the bound $total value and whether one is bound.
func (c *Context) Total() (value.Sequence, bool) { return c.total, c.hasTotal }

// Variable resolves a user-supplied %name environment variable.
func (c *Context) Variable(name string) (value.Sequence, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// WithVariable returns a copy of c with one additional/overridden
// %variable bound — used by defineVariable().
func (c *Context) WithVariable(name string, v value.Sequence) *Context {
	cp := *c
	cp.vars = make(map[string]value.Sequence, len(c.vars)+1)
	for k, val := range c.vars {
		cp.vars[k] = val
	}
	cp.vars[name] = v
	return &cp
}
