// Package pipeline chains the parse/analyze stages behind one
// Processor interface, grounded on the teacher's Pipeline.Run
// ("continue on errors to collect diagnostics from all stages") and its
// per-stage Process(ctx) ctx shape (internal/pipeline/pipeline.go,
// internal/parser/processor.go, internal/analyzer/processor.go).
//
// PipelineContext's field set was not present in the retrieved teacher
// pack (see DESIGN.md); it is authored fresh here from what a parse and
// an analyze stage need to read and write. pkg/fhirpath does not use
// this package.
package pipeline

import (
	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// Context carries state between pipeline stages: the source text, the
// parsed tree once parsing has run, the input type once resolved, and
// the diagnostics accumulated by every stage so far.
type Context struct {
	Source      string
	Root        ast.Node
	InputType   typesystem.Type
	Diagnostics []diagnostics.Diagnostic
	FatalErr    error
}

// AddDiagnostics appends ds to the accumulated diagnostic list.
func (c *Context) AddDiagnostics(ds ...diagnostics.Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, ds...)
}

// Processor is one pipeline stage: it reads/mutates a Context and
// returns the (possibly same) Context for the next stage.
type Processor interface {
	Process(ctx *Context) *Context
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *Context) *Context

func (f ProcessorFunc) Process(ctx *Context) *Context { return f(ctx) }

// Pipeline runs a fixed sequence of Processors, continuing through
// later stages even if an earlier one recorded diagnostics, so a single
// Run call surfaces every diagnostic from every stage (spec.md §4.2's
// "standard" and "diagnostic" parse modes rely on this).
type Pipeline struct {
	stages []Processor
}

// New builds a Pipeline over the given stages, run in order.
func New(stages ...Processor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes every stage in order against ctx, stopping early only if
// a stage sets ctx.FatalErr.
func (p *Pipeline) Run(ctx *Context) *Context {
	for _, stage := range p.stages {
		ctx = stage.Process(ctx)
		if ctx.FatalErr != nil {
			return ctx
		}
	}
	return ctx
}
