// Package backend exposes the interpreter and compiler behind one
// interface, grounded on the teacher's Backend/treewalk/vmbackend
// pattern (internal/backend/backend.go) — two execution strategies, one
// call contract, so callers can switch strategies without caring which
// one is running (spec.md §4.7, §9).
package backend

import (
	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/compiler"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/interpreter"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// Backend runs a parsed expression against a Context.
type Backend interface {
	Name() string
	Run(root ast.Node, ctx *evalctx.Context) (value.Sequence, error)
}

// InterpreterBackend tree-walks the AST on every Run call.
type InterpreterBackend struct {
	in *interpreter.Interpreter
}

// NewInterpreterBackend builds a tree-walking Backend.
func NewInterpreterBackend(reg *registry.Registry) *InterpreterBackend {
	return &InterpreterBackend{in: interpreter.New(reg)}
}

func (b *InterpreterBackend) Name() string { return "interpreter" }

func (b *InterpreterBackend) Run(root ast.Node, ctx *evalctx.Context) (value.Sequence, error) {
	return b.in.Eval(root, ctx)
}

// ClosureBackend compiles the AST into a closure tree and invokes it.
// Run compiles on every call; Compile returns the Program for callers
// that reuse it across many Invoke calls.
type ClosureBackend struct {
	comp *compiler.Compiler
}

// NewClosureBackend builds a compiling Backend.
func NewClosureBackend(reg *registry.Registry) *ClosureBackend {
	return &ClosureBackend{comp: compiler.New(reg)}
}

func (b *ClosureBackend) Name() string { return "compiler" }

func (b *ClosureBackend) Run(root ast.Node, ctx *evalctx.Context) (value.Sequence, error) {
	prog, err := b.comp.Compile(root)
	if err != nil {
		return nil, err
	}
	return prog.Invoke(ctx)
}

// Compile exposes the underlying Program directly, for callers (e.g.
// pkg/fhirpath's Compile) that want to reuse one compiled Program across
// many Invoke calls instead of recompiling on every Run.
func (b *ClosureBackend) Compile(root ast.Node) (*compiler.Program, error) {
	return b.comp.Compile(root)
}
