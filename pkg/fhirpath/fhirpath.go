// Package fhirpath is the public facade over the FHIRPath core: parse,
// analyze, evaluate, compile, complete, and inspect FHIRPath expressions
// without reaching into internal packages, grounded on the teacher's
// single wrapper-type-over-the-pipeline shape (pkg/embed/vm.go).
package fhirpath

import (
	"fmt"

	"github.com/lschmierer/fhirpath-go/internal/analyzer"
	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/backend"
	"github.com/lschmierer/fhirpath-go/internal/compiler"
	"github.com/lschmierer/fhirpath-go/internal/completion"
	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/inspect"
	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// Re-exported types every caller needs, so importing only this package
// is enough to use the engine end to end.
type (
	Sequence       = value.Sequence
	Quantity       = value.Quantity
	Temporal       = value.Temporal
	Diagnostic     = diagnostics.Diagnostic
	Type           = typesystem.Type
	ModelProvider  = model.Provider
	Node           = ast.Node
	CompletionItem = completion.Item
	TraceSink      = evalctx.TraceSink
)

// ParseMode selects parser error-recovery behavior.
type ParseMode int

const (
	ParseFailFast ParseMode = iota
	ParseStandard
	ParseDiagnostic
)

func toParserMode(m ParseMode) parser.Mode {
	switch m {
	case ParseStandard:
		return parser.ModeStandard
	case ParseDiagnostic:
		return parser.ModeDiagnostic
	default:
		return parser.ModeFailFast
	}
}

// ParseResult is the outcome of a Parse call.
type ParseResult struct {
	Root        Node
	Diagnostics []Diagnostic
	// IsPartial reports whether Root contains at least one recovered
	// error node, meaning parsing hit a syntax error but (outside
	// ParseFailFast) kept going and produced a best-effort tree rather
	// than aborting (spec.md §8 scenario 10).
	IsPartial bool
}

// Parse parses a FHIRPath expression in the given mode.
func Parse(source string, mode ParseMode) (ParseResult, error) {
	p := parser.New(source, toParserMode(mode))
	root, err := p.Parse()
	if err != nil {
		return ParseResult{Diagnostics: p.Diagnostics(), IsPartial: p.IsPartial()}, err
	}
	return ParseResult{Root: root, Diagnostics: p.Diagnostics(), IsPartial: p.IsPartial()}, nil
}

// Strictness mirrors analyzer.Strictness for facade callers.
type Strictness = analyzer.Strictness

const (
	Lenient = analyzer.Lenient
	Strict  = analyzer.Strict
)

// Analyze statically type-checks root against inputType using the
// standard operator/function registry.
func Analyze(root Node, inputType Type, mp ModelProvider, strictness Strictness) []Diagnostic {
	reg := registry.Standard()
	a := analyzer.New(reg, mp, strictness)
	return a.Analyze(root, inputType)
}

// Engine bundles a registry and the two execution backends so repeated
// Evaluate/Compile calls don't rebuild the operator table every time.
type Engine struct {
	reg              *registry.Registry
	interpreterBack  *backend.InterpreterBackend
	closureBack      *backend.ClosureBackend
}

// NewEngine builds an Engine with the standard operator/function table.
func NewEngine() *Engine {
	reg := registry.Standard()
	return &Engine{
		reg:             reg,
		interpreterBack: backend.NewInterpreterBackend(reg),
		closureBack:     backend.NewClosureBackend(reg),
	}
}

// EvalOptions configures one Evaluate/Compile call.
type EvalOptions struct {
	Input         Sequence
	Variables     map[string]Sequence
	ModelProvider ModelProvider
	Trace         TraceSink
	UseCompiler   bool
}

func (e *Engine) newContext(opts EvalOptions) *evalctx.Context {
	return evalctx.New(opts.Input, opts.Variables, opts.ModelProvider, opts.Trace)
}

// Evaluate runs root against opts.Input using the tree-walking
// interpreter, unless opts.UseCompiler is set, in which case it compiles
// once and invokes immediately (equivalent result either way, per
// spec.md §9's parity requirement).
func (e *Engine) Evaluate(root Node, opts EvalOptions) (Sequence, error) {
	ctx := e.newContext(opts)
	if opts.UseCompiler {
		return e.closureBack.Run(root, ctx)
	}
	return e.interpreterBack.Run(root, ctx)
}

// CompiledProgram is a parsed-and-compiled expression ready for repeated
// evaluation against different inputs without recompiling.
type CompiledProgram struct {
	prog *compiler.Program
}

// Compile lowers root into a reusable CompiledProgram.
func (e *Engine) Compile(root Node) (*CompiledProgram, error) {
	prog, err := e.closureBack.Compile(root)
	if err != nil {
		return nil, err
	}
	return &CompiledProgram{prog: prog}, nil
}

// Invoke runs a compiled program against opts, without recompiling.
func (e *Engine) Invoke(cp *CompiledProgram, opts EvalOptions) (Sequence, error) {
	return cp.prog.Invoke(e.newContext(opts))
}

// Complete returns completion candidates at cursor in source.
func (e *Engine) Complete(source string, cursor int, inputType Type, mp ModelProvider) completion.Result {
	c := completion.New(e.reg, mp)
	return c.Complete(source, cursor, inputType)
}

// InspectReport is the result of an Inspect call.
type InspectReport = inspect.Report

// Inspect analyzes then evaluates root in one call, recording timings,
// diagnostics, and the result together.
func (e *Engine) Inspect(root Node, inputType Type, opts EvalOptions, strictness Strictness) InspectReport {
	a := analyzer.New(e.reg, opts.ModelProvider, strictness)
	be := backend.Backend(e.interpreterBack)
	if opts.UseCompiler {
		be = e.closureBack
	}
	ins := inspect.New(a, be)
	return ins.Inspect(root, inputType, e.newContext(opts))
}

// ParseAnalyzeEvaluate is a convenience one-shot entry point: parse in
// standard mode, analyze leniently (or strictly if mp is non-nil),
// then evaluate with the interpreter backend.
func ParseAnalyzeEvaluate(source string, inputType Type, opts EvalOptions) (Sequence, []Diagnostic, error) {
	pr, err := Parse(source, ParseStandard)
	if err != nil {
		return nil, pr.Diagnostics, fmt.Errorf("fhirpath: parse: %w", err)
	}
	strictness := Lenient
	if opts.ModelProvider != nil {
		strictness = Strict
	}
	diags := Analyze(pr.Root, inputType, opts.ModelProvider, strictness)
	e := NewEngine()
	result, err := e.Evaluate(pr.Root, opts)
	return result, append(pr.Diagnostics, diags...), err
}
