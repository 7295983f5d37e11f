// Package interpreter tree-walks an AST directly against an evalctx.Context,
// grounded on the teacher's Eval-by-node-kind dispatch
// (internal/evaluator/evaluator.go), implementing FHIRPath's three-valued
// logic and singleton-promotion rules from spec.md §4.6.
package interpreter

import (
	"fmt"

	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// Interpreter evaluates an AST directly, node by node, against a Context.
// Every operator/function body is delegated to the shared registry.Thunk
// so that interpreter and compiler results never diverge (spec.md §9).
type Interpreter struct {
	reg *registry.Registry
}

// New builds an Interpreter over the given operator/function registry.
func New(reg *registry.Registry) *Interpreter {
	return &Interpreter{reg: reg}
}

// Eval evaluates root against ctx and returns the resulting sequence.
func (in *Interpreter) Eval(root ast.Node, ctx *evalctx.Context) (value.Sequence, error) {
	if root == nil {
		return value.Empty(), nil
	}
	v := &eval{in: in, ctx: ctx}
	root.Accept(v)
	return v.result, v.err
}

// eval implements ast.Visitor, threading the current Context and producing
// a Sequence (or error) per node, stashed on the struct since Visitor
// methods don't return values. outCtx carries the context that should flow
// to whatever evaluates next in sequence (spec.md §9: "operations that
// introduce new bindings (defineVariable, lambdas) return a new context
// alongside their value") — nil means unchanged from the inbound ctx.
type eval struct {
	in     *Interpreter
	ctx    *evalctx.Context
	outCtx *evalctx.Context
	result value.Sequence
	err    error
}

// nextCtx is the context evalChild's caller should thread into whatever it
// evaluates next: the child's own outCtx if it rebinds anything, else the
// context the child was given.
func (e *eval) nextCtx() *evalctx.Context {
	if e.outCtx != nil {
		return e.outCtx
	}
	return e.ctx
}

func (e *eval) evalChild(n ast.Node, ctx *evalctx.Context) (value.Sequence, *evalctx.Context, error) {
	child := &eval{in: e.in, ctx: ctx}
	n.Accept(child)
	return child.result, child.nextCtx(), child.err
}

func (e *eval) fail(err error) {
	e.result = nil
	e.err = err
}

func (e *eval) VisitLiteral(n *ast.Literal) {
	switch n.ValueKind {
	case ast.ValueNumber:
		s, _ := n.Value.(string)
		e.result = value.Single(parseNumber(s))
	case ast.ValueString:
		e.result = value.Single(n.Value.(string))
	case ast.ValueBool:
		e.result = value.Single(n.Value.(bool))
	case ast.ValueDate:
		e.result = value.Single(value.Temporal{Kind: value.KindDate, ISO: n.Value.(string)})
	case ast.ValueTime:
		e.result = value.Single(value.Temporal{Kind: value.KindTime, ISO: n.Value.(string)})
	case ast.ValueDateTime:
		e.result = value.Single(value.Temporal{Kind: value.KindDateTime, ISO: n.Value.(string)})
	case ast.ValueNull:
		e.result = value.Empty()
	}
}

func parseNumber(s string) any {
	isDecimal := false
	for _, c := range s {
		if c == '.' {
			isDecimal = true
			break
		}
	}
	if isDecimal {
		var f float64
		fmt.Sscanf(s, "%g", &f)
		return f
	}
	var i int64
	fmt.Sscanf(s, "%d", &i)
	return i
}

func (e *eval) VisitCollection(n *ast.Collection) {
	var out value.Sequence
	ctx := e.ctx
	for _, el := range n.Elements {
		v, nextCtx, err := e.evalChild(el, ctx)
		if err != nil {
			e.fail(err)
			return
		}
		out = value.Concat(out, v)
		ctx = nextCtx
	}
	e.result = out
	e.outCtx = ctx
}

func (e *eval) VisitIdentifier(n *ast.Identifier) {
	e.result = accessProperty(e.ctx.Focus(), n.Name)
}

func (e *eval) VisitTypeOrIdentifier(n *ast.TypeOrIdentifier) {
	e.result = accessProperty(e.ctx.Focus(), n.Name)
}

// accessProperty reads a named property off every item in focus,
// shallow-flattening raw-array values, per spec.md §4.6.
func accessProperty(focus value.Sequence, name string) value.Sequence {
	var out value.Sequence
	for _, item := range focus {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := obj[name]
		if !ok {
			continue
		}
		if arr, ok := raw.([]any); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, raw)
	}
	return out
}

func (e *eval) VisitVariable(n *ast.Variable) {
	switch n.Kind {
	case ast.VarThis:
		this, _ := e.ctx.This()
		e.result = this
	case ast.VarIndex:
		idx, ok := e.ctx.Index()
		if !ok {
			e.result = value.Empty()
			return
		}
		e.result = value.Single(int64(idx))
	case ast.VarTotal:
		total, ok := e.ctx.Total()
		if !ok {
			e.result = value.Empty()
			return
		}
		e.result = total
	case ast.VarEnvironment:
		name := n.Name
		if len(name) > 0 && name[0] == '%' {
			name = name[1:]
		}
		if v, ok := e.ctx.Variable(name); ok {
			e.result = v
			return
		}
		switch name {
		case "context":
			e.result = e.ctx.Input()
		case "resource", "rootResource":
			e.result = e.ctx.Input()
		default:
			e.result = value.Empty()
		}
	}
}

func (e *eval) VisitUnary(n *ast.Unary) {
	operand, opCtx, err := e.evalChild(n.Operand, e.ctx)
	if err != nil {
		e.fail(err)
		return
	}
	e.outCtx = opCtx
	switch n.Operator {
	case "+":
		e.result = operand
	case "-":
		item, isEmpty, multi := value.PromoteSingleton(operand)
		if multi {
			e.fail(fmt.Errorf("unary - requires a singleton operand"))
			return
		}
		if isEmpty {
			e.result = value.Empty()
			return
		}
		switch v := item.(type) {
		case int64:
			e.result = value.Single(-v)
		case float64:
			e.result = value.Single(-v)
		default:
			e.fail(fmt.Errorf("unary - requires a numeric operand, got %T", item))
		}
	case "not":
		entry, _ := e.in.reg.Lookup("not")
		notCtx := opCtx.WithFocus(operand)
		out, err := entry.Impl(notCtx, nil)
		if err != nil {
			e.fail(err)
			return
		}
		e.result = out
	default:
		e.fail(fmt.Errorf("unknown unary operator %q", n.Operator))
	}
}

func (e *eval) VisitBinary(n *ast.Binary) {
	left, leftCtx, err := e.evalChild(n.Left, e.ctx)
	if err != nil {
		e.fail(err)
		return
	}
	if n.Operator == "." {
		childCtx := leftCtx.WithFocus(left)
		out, rightCtx, err := e.evalChild(n.Right, childCtx)
		if err != nil {
			e.fail(err)
			return
		}
		e.result = out
		e.outCtx = rightCtx
		return
	}
	right, rightCtx, err := e.evalChild(n.Right, leftCtx)
	if err != nil {
		e.fail(err)
		return
	}
	e.outCtx = rightCtx
	entry, ok := e.in.reg.Lookup(n.Operator)
	if !ok {
		e.fail(fmt.Errorf("unknown operator %q", n.Operator))
		return
	}
	out, err := entry.Impl(rightCtx, []value.Sequence{left, right})
	if err != nil {
		e.fail(err)
		return
	}
	e.result = out
}

func (e *eval) VisitUnion(n *ast.Union) {
	entry, _ := e.in.reg.Lookup("|")
	// Fold pairwise through the "|" thunk so duplicate removal matches
	// the binary operator's own semantics exactly.
	result := value.Empty()
	ctx := e.ctx
	for _, op := range n.Operands {
		v, nextCtx, err := e.evalChild(op, ctx)
		if err != nil {
			e.fail(err)
			return
		}
		ctx = nextCtx
		out, err := entry.Impl(ctx, []value.Sequence{result, v})
		if err != nil {
			e.fail(err)
			return
		}
		result = out
	}
	e.result = result
	e.outCtx = ctx
}

func (e *eval) VisitIndex(n *ast.Index) {
	target, targetCtx, err := e.evalChild(n.Target, e.ctx)
	if err != nil {
		e.fail(err)
		return
	}
	idxSeq, idxCtx, err := e.evalChild(n.Index, targetCtx)
	if err != nil {
		e.fail(err)
		return
	}
	e.outCtx = idxCtx
	item, isEmpty, multi := value.PromoteSingleton(idxSeq)
	if multi {
		e.fail(fmt.Errorf("[] requires a singleton integer index"))
		return
	}
	if isEmpty {
		e.result = value.Empty()
		return
	}
	i, ok := item.(int64)
	if !ok || i < 0 || int(i) >= len(target) {
		e.result = value.Empty()
		return
	}
	e.result = value.Single(target[i])
}

func (e *eval) VisitFunction(n *ast.Function) {
	entry, ok := e.in.reg.Lookup(n.Name.Name)
	if !ok {
		e.fail(fmt.Errorf("unknown function %q", n.Name.Name))
		return
	}
	if iter, handled := e.evalIterationFunction(n.Name.Name, n.Arguments); handled {
		e.result, e.err = iter()
		return
	}
	args := make([]value.Sequence, 0, len(n.Arguments))
	ctx := e.ctx
	for _, a := range n.Arguments {
		if ref, ok := a.(*ast.TypeReference); ok {
			args = append(args, value.Single(ref.TypeName))
			continue
		}
		v, nextCtx, err := e.evalChild(a, ctx)
		if err != nil {
			e.fail(err)
			return
		}
		ctx = nextCtx
		args = append(args, v)
	}
	e.outCtx = ctx
	out, err := entry.Impl(ctx, args)
	if err != nil {
		e.fail(err)
		return
	}
	e.result = out
}

// evalIterationFunction implements the functions whose arguments are
// subexpressions evaluated once per focus item with $this/$index rebound
// (where/select/all/exists/repeat/iif/trace), plus defineVariable, which
// needs to thread a rebound Context out to whatever evaluates after it —
// none of these can be ordinary registry.Thunks, since Thunks receive
// already-evaluated Sequences, not unevaluated ast.Node arguments or a
// Context to rebind (spec.md §4.4, §9).
func (e *eval) evalIterationFunction(name string, args []ast.Node) (func() (value.Sequence, error), bool) {
	switch name {
	case "where":
		return func() (value.Sequence, error) { return e.filter(args[0]) }, len(args) == 1
	case "select":
		return func() (value.Sequence, error) { return e.mapSelect(args[0]) }, len(args) == 1
	case "all":
		return func() (value.Sequence, error) {
			items, err := e.filter(args[0])
			if err != nil {
				return nil, err
			}
			return value.Single(len(items) == len(e.ctx.Focus())), nil
		}, len(args) == 1
	case "exists":
		if len(args) == 0 {
			return func() (value.Sequence, error) { return value.Single(!e.ctx.Focus().IsEmpty()), nil }, true
		}
		return func() (value.Sequence, error) {
			items, err := e.filter(args[0])
			if err != nil {
				return nil, err
			}
			return value.Single(len(items) > 0), nil
		}, len(args) == 1
	case "iif":
		return func() (value.Sequence, error) { return e.iif(args) }, len(args) >= 2 && len(args) <= 3
	case "repeat":
		return func() (value.Sequence, error) { return e.repeat(args[0]) }, len(args) == 1
	case "trace":
		return func() (value.Sequence, error) { return e.trace(args) }, len(args) >= 1
	case "defineVariable":
		return func() (value.Sequence, error) { return e.defineVariable(args) }, len(args) == 2
	default:
		return nil, false
	}
}

func (e *eval) filter(pred ast.Node) (value.Sequence, error) {
	focus := e.ctx.Focus()
	var out value.Sequence
	for i, item := range focus {
		itemCtx := e.ctx.WithFocus(value.Single(item)).WithThis(value.Single(item)).WithIndex(i)
		res, _, err := e.evalChild(pred, itemCtx)
		if err != nil {
			return nil, err
		}
		b, err := value.ToBool3(res)
		if err != nil {
			return nil, err
		}
		if b != nil && *b {
			out = append(out, item)
		}
	}
	return out, nil
}

func (e *eval) mapSelect(expr ast.Node) (value.Sequence, error) {
	focus := e.ctx.Focus()
	var out value.Sequence
	for i, item := range focus {
		itemCtx := e.ctx.WithFocus(value.Single(item)).WithThis(value.Single(item)).WithIndex(i)
		res, _, err := e.evalChild(expr, itemCtx)
		if err != nil {
			return nil, err
		}
		out = value.Concat(out, res)
	}
	return out, nil
}

// defineVariable binds %name to expr's value for the rest of the
// enclosing evaluation and returns the current focus unchanged, so a
// trailing `.member` access keeps navigating from the same point
// (spec.md §8 scenario 8: `defineVariable('x', value).value + %x`).
func (e *eval) defineVariable(args []ast.Node) (value.Sequence, error) {
	nameSeq, ctx1, err := e.evalChild(args[0], e.ctx)
	if err != nil {
		return nil, err
	}
	nameItem, isEmpty, multi := value.PromoteSingleton(nameSeq)
	if isEmpty || multi {
		return nil, fmt.Errorf("defineVariable requires a singleton string name")
	}
	name, ok := nameItem.(string)
	if !ok {
		return nil, fmt.Errorf("defineVariable requires a string name, got %T", nameItem)
	}
	val, ctx2, err := e.evalChild(args[1], ctx1)
	if err != nil {
		return nil, err
	}
	e.outCtx = ctx2.WithVariable(name, val)
	return ctx2.Focus(), nil
}

func (e *eval) iif(args []ast.Node) (value.Sequence, error) {
	cond, ctx1, err := e.evalChild(args[0], e.ctx)
	if err != nil {
		return nil, err
	}
	b, err := value.ToBool3(cond)
	if err != nil {
		return nil, err
	}
	if b != nil && *b {
		v, ctx2, err := e.evalChild(args[1], ctx1)
		e.outCtx = ctx2
		return v, err
	}
	if len(args) == 3 {
		v, ctx2, err := e.evalChild(args[2], ctx1)
		e.outCtx = ctx2
		return v, err
	}
	e.outCtx = ctx1
	return value.Empty(), nil
}

func (e *eval) repeat(expr ast.Node) (value.Sequence, error) {
	seen := map[string]bool{}
	frontier := append(value.Sequence(nil), e.ctx.Focus()...)
	var out value.Sequence
	for len(frontier) > 0 {
		next := value.Empty()
		for i, item := range frontier {
			itemCtx := e.ctx.WithFocus(value.Single(item)).WithThis(value.Single(item)).WithIndex(i)
			res, _, err := e.evalChild(expr, itemCtx)
			if err != nil {
				return nil, err
			}
			for _, r := range res {
				key := fmt.Sprintf("%v", r)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, r)
				next = append(next, r)
			}
		}
		frontier = next
	}
	return out, nil
}

func (e *eval) trace(args []ast.Node) (value.Sequence, error) {
	nameSeq, ctx1, err := e.evalChild(args[0], e.ctx)
	if err != nil {
		return nil, err
	}
	name, _, _ := value.PromoteSingleton(nameSeq)
	nameStr, _ := name.(string)
	projected := ctx1.Focus()
	if len(args) > 1 {
		projected, _, err = e.evalChild(args[1], ctx1.WithThis(ctx1.Focus()))
		if err != nil {
			return nil, err
		}
	}
	ctx1.Trace(nameStr, projected)
	e.outCtx = ctx1
	return ctx1.Focus(), nil
}

func (e *eval) VisitMembershipTest(n *ast.MembershipTest) {
	v, childCtx, err := e.evalChild(n.Expr, e.ctx)
	if err != nil {
		e.fail(err)
		return
	}
	e.outCtx = childCtx
	item, isEmpty, multi := value.PromoteSingleton(v)
	if isEmpty {
		e.result = value.Empty()
		return
	}
	if multi {
		e.fail(fmt.Errorf("'is' requires a singleton operand"))
		return
	}
	mp := childCtx.ModelProvider()
	if mp == nil {
		e.result = value.Single(false)
		return
	}
	typeName := dynamicTypeName(item)
	e.result = value.Single(mp.IsSubtype(typeName, n.TypeName))
}

func (e *eval) VisitTypeCast(n *ast.TypeCast) {
	v, childCtx, err := e.evalChild(n.Expr, e.ctx)
	if err != nil {
		e.fail(err)
		return
	}
	e.outCtx = childCtx
	item, isEmpty, multi := value.PromoteSingleton(v)
	if isEmpty {
		e.result = value.Empty()
		return
	}
	if multi {
		e.fail(fmt.Errorf("'as' requires a singleton operand"))
		return
	}
	mp := childCtx.ModelProvider()
	if mp == nil {
		e.result = value.Single(item)
		return
	}
	typeName := dynamicTypeName(item)
	if mp.IsSubtype(typeName, n.TypeName) {
		e.result = value.Single(item)
		return
	}
	e.result = value.Empty()
}

func (e *eval) VisitTypeReference(n *ast.TypeReference) {
	e.result = value.Single(n.TypeName)
}

func dynamicTypeName(item any) string {
	return registry.DynamicTypeName(item)
}

func (e *eval) VisitError(n *ast.Error) {
	e.fail(fmt.Errorf("%s", n.Message))
}

func (e *eval) VisitIncomplete(n *ast.Incomplete) {
	e.fail(fmt.Errorf("incomplete expression"))
}
