// Package analyzer performs bottom-up static type checking over a parsed
// AST, grounded on the teacher's dispatch-by-node-kind structure
// (internal/analyzer/analyzer.go), producing the diagnostics named in
// spec.md §4.5.
package analyzer

import (
	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/source"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// Strictness controls whether an unresolved property/function is a
// diagnosed error (Strict) or silently typed Any (Lenient) — spec.md
// §4.5's two analysis modes, needed because a Model Provider is optional.
type Strictness int

const (
	Lenient Strictness = iota
	Strict
)

// Analyzer walks an AST bottom-up, assigning a typesystem.Type to every
// node and collecting diagnostics along the way.
type Analyzer struct {
	reg        *registry.Registry
	model      model.Provider
	strictness Strictness
	diags      []diagnostics.Diagnostic
}

// New builds an Analyzer. model may be nil; in Strict mode a nil model
// raises ConfigMissingModelProvider once per Analyze call.
func New(reg *registry.Registry, mp model.Provider, strictness Strictness) *Analyzer {
	return &Analyzer{reg: reg, model: mp, strictness: strictness}
}

// Analyze assigns types through the whole tree, rooted at inputType (the
// static type of the expression's initial focus, typically resolved from
// the Model Provider for the resource type being evaluated against).
func (a *Analyzer) Analyze(root ast.Node, inputType typesystem.Type) []diagnostics.Diagnostic {
	a.diags = nil
	if a.strictness == Strict && a.model == nil {
		a.diags = append(a.diags, diagnostics.New(source.Range{}, diagnostics.SeverityError, diagnostics.ConfigMissingModelProvider, "fhirpath-analyzer"))
	}
	if root != nil {
		root.Accept(&visit{a: a, input: inputType})
	}
	return a.diags
}

// visit implements ast.Visitor, carrying the static input type the
// current node sees (rule: `.` propagates the left side's result type as
// the right side's input type — spec.md §4.5 rule 4).
type visit struct {
	a     *Analyzer
	input typesystem.Type
}

func (v *visit) sub(input typesystem.Type) *visit { return &visit{a: v.a, input: input} }

func (v *visit) report(n ast.Node, code diagnostics.Code, args ...interface{}) {
	d := diagnostics.New(n.Range(), diagnostics.SeverityError, code, "fhirpath-analyzer", args...)
	v.a.diags = append(v.a.diags, d)
}

func (v *visit) VisitLiteral(n *ast.Literal) {
	switch n.ValueKind {
	case ast.ValueNumber:
		if isDecimalLiteral(n.Value) {
			n.SetType(typesystem.SingletonOf(typesystem.Decimal))
		} else {
			n.SetType(typesystem.SingletonOf(typesystem.Integer))
		}
	case ast.ValueString:
		n.SetType(typesystem.SingletonOf(typesystem.String))
	case ast.ValueBool:
		n.SetType(typesystem.SingletonOf(typesystem.Boolean))
	case ast.ValueDate:
		n.SetType(typesystem.SingletonOf(typesystem.Date))
	case ast.ValueTime:
		n.SetType(typesystem.SingletonOf(typesystem.Time))
	case ast.ValueDateTime:
		n.SetType(typesystem.SingletonOf(typesystem.DateTime))
	case ast.ValueNull:
		n.SetType(typesystem.Type{Primary: typesystem.Void, Singleton: false})
	}
}

func isDecimalLiteral(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, c := range s {
		if c == '.' {
			return true
		}
	}
	return false
}

func (v *visit) VisitCollection(n *ast.Collection) {
	var elemType typesystem.Type
	for i, e := range n.Elements {
		e.Accept(v)
		if i == 0 {
			elemType = e.Type()
		} else {
			elemType = typesystem.Unify(elemType, e.Type())
		}
	}
	n.SetType(elemType.AsCollection())
}

func (v *visit) VisitIdentifier(n *ast.Identifier) {
	v.resolveProperty(n, n.Name)
}

func (v *visit) VisitTypeOrIdentifier(n *ast.TypeOrIdentifier) {
	// Resolved as a property first (spec.md §4.2); a Model Provider that
	// doesn't know the property but does know the type name lets this
	// stand as a type reference, typed as that domain type.
	if v.a.model != nil && v.input.Model != nil {
		if _, ok := v.a.model.ResolveElement(v.input.Model.TypeName, n.Name); !ok {
			if t, ok := v.a.model.ResolveType(n.Name); ok {
				n.SetType(t)
				return
			}
		}
	}
	v.resolveProperty(n, n.Name)
}

func (v *visit) resolveProperty(n ast.Node, name string) {
	if v.input.Model == nil || v.a.model == nil {
		n.SetType(typesystem.Wildcard)
		return
	}
	el, ok := v.a.model.ResolveElement(v.input.Model.TypeName, name)
	if !ok {
		if v.a.strictness == Strict {
			v.report(n, diagnostics.UnknownProperty, name, v.input.Model.TypeName)
		}
		n.SetType(typesystem.Wildcard)
		return
	}
	n.SetType(el.Type)
}

func (v *visit) VisitVariable(n *ast.Variable) {
	switch n.Kind {
	case ast.VarThis:
		n.SetType(v.input)
	case ast.VarIndex:
		n.SetType(typesystem.SingletonOf(typesystem.Integer))
	case ast.VarTotal:
		n.SetType(typesystem.Wildcard)
	case ast.VarEnvironment:
		n.SetType(typesystem.Wildcard)
	}
}

func (v *visit) VisitUnary(n *ast.Unary) {
	n.Operand.Accept(v)
	switch n.Operator {
	case "not":
		n.SetType(typesystem.SingletonOf(typesystem.Boolean))
	default:
		n.SetType(n.Operand.Type())
	}
}

func (v *visit) VisitBinary(n *ast.Binary) {
	n.Left.Accept(v)
	if n.Operator == "." {
		n.Right.Accept(v.sub(n.Left.Type()))
		n.SetType(n.Right.Type().AsCollection())
		return
	}
	n.Right.Accept(v)
	switch n.Operator {
	case "=", "!=", "~", "!~", "<", "<=", ">", ">=", "and", "or", "xor", "implies", "in", "contains":
		n.SetType(typesystem.SingletonOf(typesystem.Boolean))
	case "&":
		n.SetType(typesystem.SingletonOf(typesystem.String))
	case "+", "-", "*", "/", "div", "mod":
		result := typesystem.Unify(n.Left.Type(), n.Right.Type())
		if !typesystem.Equivalent(n.Left.Type().Primary, n.Right.Type().Primary) {
			v.report(n, diagnostics.OperatorTypeMismatch, n.Operator, n.Left.Type().Primary, n.Right.Type().Primary)
		}
		n.SetType(result.WithSingleton(true))
	case "|":
		n.SetType(typesystem.Unify(n.Left.Type(), n.Right.Type()))
	default:
		n.SetType(typesystem.Wildcard)
	}
}

func (v *visit) VisitUnion(n *ast.Union) {
	var t typesystem.Type
	for i, op := range n.Operands {
		op.Accept(v)
		if i == 0 {
			t = op.Type()
		} else {
			t = typesystem.Unify(t, op.Type())
		}
	}
	n.SetType(t.AsCollection())
}

func (v *visit) VisitIndex(n *ast.Index) {
	n.Target.Accept(v)
	n.Index.Accept(v.sub(v.input))
	if n.Index.Type().Primary != typesystem.Integer && !n.Index.Type().IsWildcard() {
		v.report(n, diagnostics.ArgumentTypeMismatch, 0, "[]", n.Index.Type().Primary, typesystem.Integer)
	}
	n.SetType(n.Target.Type().WithSingleton(true))
}

func (v *visit) VisitFunction(n *ast.Function) {
	entry, ok := v.a.reg.Lookup(n.Name.Name)
	if !ok {
		if v.a.strictness == Strict {
			v.report(n, diagnostics.UnknownFunction, n.Name.Name)
		}
		for _, arg := range n.Arguments {
			if _, isTypeRef := arg.(*ast.TypeReference); !isTypeRef {
				arg.Accept(v)
			}
		}
		n.SetType(typesystem.Wildcard)
		return
	}
	if len(n.Arguments) < entry.Arity.Min {
		v.report(n, diagnostics.TooFewArgs, n.Name.Name, entry.Arity.Min, len(n.Arguments))
	}
	if entry.Arity.Max >= 0 && len(n.Arguments) > entry.Arity.Max {
		v.report(n, diagnostics.TooManyArgs, n.Name.Name, entry.Arity.Max, len(n.Arguments))
	}
	for _, arg := range n.Arguments {
		switch a := arg.(type) {
		case *ast.TypeReference:
			a.Accept(v)
		default:
			// Subexpression arguments (where/select/...) are analyzed with
			// $this's type as their input, per spec.md §4.5 rule 7.
			arg.Accept(v.sub(v.input))
		}
	}
	if len(entry.Signatures) > 0 {
		n.SetType(entry.Signatures[0].Result)
	} else {
		n.SetType(typesystem.Wildcard)
	}
}

func (v *visit) VisitMembershipTest(n *ast.MembershipTest) {
	n.Expr.Accept(v)
	n.SetType(typesystem.SingletonOf(typesystem.Boolean))
}

func (v *visit) VisitTypeCast(n *ast.TypeCast) {
	n.Expr.Accept(v)
	if v.a.model != nil {
		if t, ok := v.a.model.ResolveType(n.TypeName); ok {
			n.SetType(t)
			return
		}
	}
	n.SetType(typesystem.Wildcard)
}

func (v *visit) VisitTypeReference(n *ast.TypeReference) {
	n.SetType(typesystem.Wildcard)
	if v.a.model != nil {
		if _, ok := v.a.model.ResolveType(n.TypeName); !ok {
			v.report(n, diagnostics.InvalidTypeFilter, n.TypeName)
		}
	}
}

func (v *visit) VisitError(n *ast.Error) {
	n.SetType(typesystem.Wildcard)
}

func (v *visit) VisitIncomplete(n *ast.Incomplete) {
	if n.Partial != nil {
		n.Partial.Accept(v)
	}
	n.SetType(typesystem.Wildcard)
}
