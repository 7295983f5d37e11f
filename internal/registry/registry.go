// Package registry holds the single implementation of every FHIRPath
// operator and function, shared verbatim by the interpreter and the
// compiler (spec.md §4.4, §9: "two evaluators, one contract").
package registry

import (
	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/source"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// Context is a local alias for evalctx.Context so Thunk implementations
// in this package don't need to import evalctx by name everywhere.
type Context = evalctx.Context

// Thunk is the one piece of code that implements an operator or function
// body. Both the interpreter (invoking it directly) and the compiler
// (closing over it) call the same Thunk, which is what keeps
// interpret(e, c) == compile(e).Invoke(c) true by construction.
type Thunk func(ctx *evalctx.Context, args []value.Sequence) (value.Sequence, error)

// Arity bounds the number of arguments a function accepts. Max of -1
// means unbounded.
type Arity struct {
	Min int
	Max int
}

// Signature describes one overload's applicability, used by the analyzer
// for type-checking and by completion for argument hints.
type Signature struct {
	InputKinds []typesystem.Primary // acceptable input/focus primaries; nil means any
	ArgKinds   []typesystem.Primary // expected argument primaries, position-aligned
	Result     typesystem.Type
}

// Entry is one registered operator or function.
type Entry struct {
	Name       string
	IsOperator bool
	Arity      Arity
	Signatures []Signature
	Impl       Thunk
	Doc        string
}

// Registry indexes entries by name and, secondarily, by the input kinds
// they accept — the latter lets completion narrow candidates without
// scanning the whole table (spec.md §4.8).
type Registry struct {
	byName     map[string]*Entry
	byInputKind map[typesystem.Primary][]*Entry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		byName:      make(map[string]*Entry),
		byInputKind: make(map[typesystem.Primary][]*Entry),
	}
}

// Register adds e to the registry. Panics on duplicate name, since the
// registry is built once at init time from a fixed table, never from
// untrusted input.
func (r *Registry) Register(e *Entry) {
	if _, exists := r.byName[e.Name]; exists {
		panic("registry: duplicate entry " + e.Name)
	}
	r.byName[e.Name] = e
	if len(e.Signatures) == 0 {
		r.byInputKind[typesystem.Any] = append(r.byInputKind[typesystem.Any], e)
		return
	}
	seen := make(map[typesystem.Primary]bool)
	for _, sig := range e.Signatures {
		if len(sig.InputKinds) == 0 {
			if !seen[typesystem.Any] {
				r.byInputKind[typesystem.Any] = append(r.byInputKind[typesystem.Any], e)
				seen[typesystem.Any] = true
			}
			continue
		}
		for _, k := range sig.InputKinds {
			if !seen[k] {
				r.byInputKind[k] = append(r.byInputKind[k], e)
				seen[k] = true
			}
		}
	}
}

// Lookup returns the entry for name, if registered.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// CandidatesForInput returns entries applicable to inputKind, plus any
// entry applicable to every input kind.
func (r *Registry) CandidatesForInput(inputKind typesystem.Primary) []*Entry {
	out := append([]*Entry(nil), r.byInputKind[inputKind]...)
	if inputKind != typesystem.Any {
		out = append(out, r.byInputKind[typesystem.Any]...)
	}
	return out
}

// Names returns every registered name, for completion's fallback listing.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}

// checkArity is a small helper every Thunk uses before unpacking args.
// Arity violations are normally caught at analysis time; this is a
// defense for callers (e.g. the compiler's direct Invoke path) that skip
// analysis.
func checkArity(name string, args []value.Sequence, a Arity) error {
	n := len(args)
	if n < a.Min {
		return diagnostics.NewError(diagnostics.PhaseRuntime, diagnostics.TooFewArgs, source.Range{}, name, a.Min, n)
	}
	if a.Max >= 0 && n > a.Max {
		return diagnostics.NewError(diagnostics.PhaseRuntime, diagnostics.TooManyArgs, source.Range{}, name, a.Max, n)
	}
	return nil
}
