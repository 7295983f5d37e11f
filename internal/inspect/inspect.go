// Package inspect wraps analyze+evaluate with timing, counts, and a
// correlation id, per spec.md §4.8's second half. Grounded on the
// "instrument, don't reimplement" approach the teacher's
// internal/vm/debugger.go takes to observing an existing evaluation
// rather than re-implementing it.
package inspect

import (
	"time"

	"github.com/google/uuid"

	"github.com/lschmierer/fhirpath-go/internal/analyzer"
	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/backend"
	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// Report is the result of one Inspect call.
type Report struct {
	RunID         string
	Diagnostics   []diagnostics.Diagnostic
	Result        value.Sequence
	Err           error
	AnalyzeTime   time.Duration
	EvaluateTime  time.Duration
	NodesVisited  int
}

// Inspector runs analyze then evaluate against the same tree, recording
// timings and diagnostics from both stages in one report.
type Inspector struct {
	an *analyzer.Analyzer
	be backend.Backend
}

// New builds an Inspector over the given analyzer and execution backend.
func New(an *analyzer.Analyzer, be backend.Backend) *Inspector {
	return &Inspector{an: an, be: be}
}

// Inspect analyzes root against inputType, then evaluates it against ctx,
// regardless of whether analysis produced error-severity diagnostics
// (spec.md §4.8: inspection surfaces both static and dynamic behavior in
// one call).
func (ins *Inspector) Inspect(root ast.Node, inputType typesystem.Type, ctx *evalctx.Context) Report {
	report := Report{RunID: uuid.NewString(), NodesVisited: countNodes(root)}

	t0 := time.Now()
	report.Diagnostics = ins.an.Analyze(root, inputType)
	report.AnalyzeTime = time.Since(t0)

	t1 := time.Now()
	report.Result, report.Err = ins.be.Run(root, ctx)
	report.EvaluateTime = time.Since(t1)

	return report
}

// countNodes walks the tree once to report the node count (useful for
// comparing expressions' relative cost, spec.md §4.8).
func countNodes(root ast.Node) int {
	if root == nil {
		return 0
	}
	counter := &nodeCounter{}
	root.Accept(counter)
	return counter.n
}

type nodeCounter struct{ n int }

// visit dispatches to the matching VisitXxx method, which is
// responsible for its own c.n++ — callers must not double-count.
func (c *nodeCounter) visit(n ast.Node) {
	if n != nil {
		n.Accept(c)
	}
}

func (c *nodeCounter) VisitLiteral(n *ast.Literal) { c.n++ }
func (c *nodeCounter) VisitCollection(n *ast.Collection) {
	c.n++
	for _, e := range n.Elements {
		c.visit(e)
	}
}
func (c *nodeCounter) VisitIdentifier(n *ast.Identifier)               { c.n++ }
func (c *nodeCounter) VisitTypeOrIdentifier(n *ast.TypeOrIdentifier)   { c.n++ }
func (c *nodeCounter) VisitVariable(n *ast.Variable)                   { c.n++ }
func (c *nodeCounter) VisitUnary(n *ast.Unary)                         { c.n++; c.visit(n.Operand) }
func (c *nodeCounter) VisitBinary(n *ast.Binary) {
	c.n++
	c.visit(n.Left)
	c.visit(n.Right)
}
func (c *nodeCounter) VisitUnion(n *ast.Union) {
	c.n++
	for _, op := range n.Operands {
		c.visit(op)
	}
}
func (c *nodeCounter) VisitIndex(n *ast.Index) {
	c.n++
	c.visit(n.Target)
	c.visit(n.Index)
}
func (c *nodeCounter) VisitFunction(n *ast.Function) {
	c.n++
	for _, a := range n.Arguments {
		c.visit(a)
	}
}
func (c *nodeCounter) VisitMembershipTest(n *ast.MembershipTest) { c.n++; c.visit(n.Expr) }
func (c *nodeCounter) VisitTypeCast(n *ast.TypeCast)             { c.n++; c.visit(n.Expr) }
func (c *nodeCounter) VisitTypeReference(n *ast.TypeReference)   { c.n++ }
func (c *nodeCounter) VisitError(n *ast.Error)                   { c.n++ }
func (c *nodeCounter) VisitIncomplete(n *ast.Incomplete) {
	c.n++
	if n.Partial != nil {
		c.visit(n.Partial)
	}
}
