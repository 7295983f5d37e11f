// Package ast defines the FHIRPath abstract syntax tree: a closed,
// discriminated set of node kinds (spec.md §3) with a total Visitor so
// that adding a kind is a compile-time break everywhere it isn't handled
// (spec.md §9 "Polymorphic tree with exhaustive dispatch").
package ast

import (
	"github.com/lschmierer/fhirpath-go/internal/source"
	"github.com/lschmierer/fhirpath-go/internal/token"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// Node is the base interface every AST node implements.
type Node interface {
	// Token returns the node's primary/anchor token, for error reporting.
	Token() token.Token
	// Range returns the node's source range. Populated only in diagnostic
	// parse mode; zero-value otherwise (spec.md §4.2).
	Range() source.Range
	SetRange(source.Range)
	// Type returns the descriptor the analyzer assigned to this node.
	// Before analysis, or for nodes the analyzer could not resolve, this
	// is typesystem.Wildcard (spec.md §3 invariants).
	Type() typesystem.Type
	SetType(typesystem.Type)
	Accept(v Visitor)
}

// base is embedded by every concrete node to supply the common
// Token/Range/Type bookkeeping, mirroring the teacher's per-node
// TokenLiteral/GetToken/Accept triad (internal/ast/ast_core.go) collapsed
// into one reusable struct since every FHIRPath node needs exactly the
// same three fields.
type base struct {
	tok   token.Token
	rng   source.Range
	typ   typesystem.Type
}

func (b *base) Token() token.Token         { return b.tok }
func (b *base) Range() source.Range        { return b.rng }
func (b *base) SetRange(r source.Range)    { b.rng = r }
func (b *base) Type() typesystem.Type      { return b.typ }
func (b *base) SetType(t typesystem.Type)  { b.typ = t }

// ValueKind tags which Go representation a Literal node's Value holds.
type ValueKind int

const (
	ValueNumber ValueKind = iota
	ValueString
	ValueBool
	ValueDate
	ValueTime
	ValueDateTime
	ValueNull
)

// Literal is a constant: number, string, bool, date/time/datetime, or the
// null literal (the empty collection at evaluation time).
type Literal struct {
	base
	ValueKind ValueKind
	Value     any // int64, float64, bool, or the raw ISO text for temporals
}

func NewLiteral(tok token.Token, kind ValueKind, val any) *Literal {
	return &Literal{base: base{tok: tok}, ValueKind: kind, Value: val}
}
func (n *Literal) Accept(v Visitor) { v.VisitLiteral(n) }

// Collection is an ordered literal sequence: `(a, b, c)`.
type Collection struct {
	base
	Elements []Node
}

func NewCollection(tok token.Token, elems []Node) *Collection {
	return &Collection{base: base{tok: tok}, Elements: elems}
}
func (n *Collection) Accept(v Visitor) { v.VisitCollection(n) }

// Identifier is a property/accessor reference, lowercase-led.
type Identifier struct {
	base
	Name string
}

func NewIdentifier(tok token.Token, name string) *Identifier {
	return &Identifier{base: base{tok: tok}, Name: name}
}
func (n *Identifier) Accept(v Visitor) { v.VisitIdentifier(n) }

// TypeOrIdentifier is an uppercase-led identifier: ambiguous between a
// property reference and a type reference until the analyzer resolves it
// (spec.md §4.2).
type TypeOrIdentifier struct {
	base
	Name string
}

func NewTypeOrIdentifier(tok token.Token, name string) *TypeOrIdentifier {
	return &TypeOrIdentifier{base: base{tok: tok}, Name: name}
}
func (n *TypeOrIdentifier) Accept(v Visitor) { v.VisitTypeOrIdentifier(n) }

// VariableKind distinguishes the three variable forms.
type VariableKind int

const (
	VarThis VariableKind = iota
	VarIndex
	VarTotal
	VarEnvironment
)

// Variable is a lookup: `$this`, `$index`, `$total`, or `%name`.
type Variable struct {
	base
	Kind VariableKind
	Name string // the ENV token's Lexeme for VarEnvironment; unused otherwise
}

func NewVariable(tok token.Token, kind VariableKind, name string) *Variable {
	return &Variable{base: base{tok: tok}, Kind: kind, Name: name}
}
func (n *Variable) Accept(v Visitor) { v.VisitVariable(n) }

// Unary is a prefix operator: `+ - not`.
type Unary struct {
	base
	Operator string
	Operand  Node
}

func NewUnary(tok token.Token, op string, operand Node) *Unary {
	return &Unary{base: base{tok: tok}, Operator: op, Operand: operand}
}
func (n *Unary) Accept(v Visitor) { v.VisitUnary(n) }

// Binary is an infix operator, including `.` (pipeline/navigation).
type Binary struct {
	base
	Operator string
	Left     Node
	Right    Node
}

func NewBinary(tok token.Token, op string, left, right Node) *Binary {
	return &Binary{base: base{tok: tok}, Operator: op, Left: left, Right: right}
}
func (n *Binary) Accept(v Visitor) { v.VisitBinary(n) }

// Union is `a | b | c`: ordered operands, order and duplicates preserved.
type Union struct {
	base
	Operands []Node
}

func NewUnion(tok token.Token, operands []Node) *Union {
	return &Union{base: base{tok: tok}, Operands: operands}
}
func (n *Union) Accept(v Visitor) { v.VisitUnion(n) }

// Index is 0-based element access: `expr[i]`.
type Index struct {
	base
	Target Node
	Index  Node
}

func NewIndex(tok token.Token, target, index Node) *Index {
	return &Index{base: base{tok: tok}, Target: target, Index: index}
}
func (n *Index) Accept(v Visitor) { v.VisitIndex(n) }

// Function is a registered-operation call: `name(args...)`.
type Function struct {
	base
	Name      *Identifier
	Arguments []Node
}

func NewFunction(tok token.Token, name *Identifier, args []Node) *Function {
	return &Function{base: base{tok: tok}, Name: name, Arguments: args}
}
func (n *Function) Accept(v Visitor) { v.VisitFunction(n) }

// MembershipTest is `x is T`.
type MembershipTest struct {
	base
	Expr     Node
	TypeName string
}

func NewMembershipTest(tok token.Token, expr Node, typeName string) *MembershipTest {
	return &MembershipTest{base: base{tok: tok}, Expr: expr, TypeName: typeName}
}
func (n *MembershipTest) Accept(v Visitor) { v.VisitMembershipTest(n) }

// TypeCast is `x as T`.
type TypeCast struct {
	base
	Expr     Node
	TypeName string
}

func NewTypeCast(tok token.Token, expr Node, typeName string) *TypeCast {
	return &TypeCast{base: base{tok: tok}, Expr: expr, TypeName: typeName}
}
func (n *TypeCast) Accept(v Visitor) { v.VisitTypeCast(n) }

// TypeReference appears only as the argument to `ofType(...)`, recognized
// at parse time (spec.md §4.2) so the analyzer never has to disambiguate
// it from a property access.
type TypeReference struct {
	base
	TypeName string
}

func NewTypeReference(tok token.Token, typeName string) *TypeReference {
	return &TypeReference{base: base{tok: tok}, TypeName: typeName}
}
func (n *TypeReference) Accept(v Visitor) { v.VisitTypeReference(n) }

// Error is planted at a parser recovery point: it records the token set
// the parser expected, the token it actually found, and the diagnostic
// that was raised.
type Error struct {
	base
	Expected []token.Kind
	Actual   token.Token
	Message  string
}

func NewError(tok token.Token, expected []token.Kind, actual token.Token, message string) *Error {
	return &Error{base: base{tok: tok}, Expected: expected, Actual: actual, Message: message}
}
func (n *Error) Accept(v Visitor) { v.VisitError(n) }

// Incomplete wraps whatever was parsed before an unclosed delimiter or
// other recovery point cut parsing short.
type Incomplete struct {
	base
	Partial Node // nil if nothing could be parsed at all
	Missing []string
}

func NewIncomplete(tok token.Token, partial Node, missing []string) *Incomplete {
	return &Incomplete{base: base{tok: tok}, Partial: partial, Missing: missing}
}
func (n *Incomplete) Accept(v Visitor) { v.VisitIncomplete(n) }

// Visitor is total over the node catalog: every concrete node type has a
// corresponding method, so a new node kind breaks every implementation
// at compile time until handled (spec.md §9).
type Visitor interface {
	VisitLiteral(*Literal)
	VisitCollection(*Collection)
	VisitIdentifier(*Identifier)
	VisitTypeOrIdentifier(*TypeOrIdentifier)
	VisitVariable(*Variable)
	VisitUnary(*Unary)
	VisitBinary(*Binary)
	VisitUnion(*Union)
	VisitIndex(*Index)
	VisitFunction(*Function)
	VisitMembershipTest(*MembershipTest)
	VisitTypeCast(*TypeCast)
	VisitTypeReference(*TypeReference)
	VisitError(*Error)
	VisitIncomplete(*Incomplete)
}
