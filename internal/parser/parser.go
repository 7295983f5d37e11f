// Package parser implements a Pratt (precedence-climbing) parser over
// the FHIRPath token stream, grounded on the teacher's
// parseExpression(precedence)/curPrecedence/peekPrecedence structure
// (internal/parser/expressions_core.go), generalized to FHIRPath's own
// grammar and three parse modes (spec.md §4.2).
package parser

import (
	"fmt"

	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/lexer"
	"github.com/lschmierer/fhirpath-go/internal/source"
	"github.com/lschmierer/fhirpath-go/internal/token"
)

// Mode selects how the parser reacts to a syntax error.
type Mode int

const (
	// ModeFailFast returns the first error immediately, no AST.
	ModeFailFast Mode = iota
	// ModeStandard recovers at statement-like boundaries and keeps
	// collecting diagnostics, returning a best-effort tree.
	ModeStandard
	// ModeDiagnostic additionally populates Range on every node, for
	// tooling use (completion, inspection). Both ModeStandard and
	// ModeDiagnostic plant ast.Error/ast.Incomplete nodes at recovery
	// points.
	ModeDiagnostic
)

// precedence levels, lowest to highest, per spec.md §4.2's grammar.
const (
	_ int = iota
	precImplies
	precOrXor
	precAnd
	precMembership // in/contains
	precEquality
	precComparison
	precUnion
	precType // is/as
	precAdditive
	precMultiplicative
	precUnary
	precInvocation // `.`, `[]`, function call
)

var binaryPrecedence = map[token.Kind]int{
	token.IMPLIES: precImplies,
	token.OR:      precOrXor,
	token.XOR:     precOrXor,
	token.AND:     precAnd,
	token.IS:      precType,
	token.AS:      precType,
	token.IN:      precMembership,
	token.CONTAINS: precMembership,
	token.EQ:      precEquality,
	token.NEQ:     precEquality,
	token.EQUIV:   precEquality,
	token.NEQUIV:  precEquality,
	token.LT:      precComparison,
	token.LTE:     precComparison,
	token.GT:      precComparison,
	token.GTE:     precComparison,
	token.PIPE:    precUnion,
	token.PLUS:    precAdditive,
	token.MINUS:   precAdditive,
	token.AMP:     precAdditive,
	token.STAR:    precMultiplicative,
	token.SLASH:   precMultiplicative,
	token.DIV:     precMultiplicative,
	token.MOD:     precMultiplicative,
	token.DOT:     precInvocation,
	token.LBRACKET: precInvocation,
}

// rightAssociative operators recurse at precedence-1 on the right so a
// chain like `a implies b implies c` groups as `a implies (b implies c)`.
var rightAssociative = map[token.Kind]bool{
	token.IMPLIES: true,
}

// Parser consumes tokens from a Lexer and builds an ast.Node tree.
type Parser struct {
	toks         []token.Token
	pos          int
	mode         Mode
	srcMap       *source.Map
	diags        []diagnostics.Diagnostic
	hasRecovered bool
}

// New builds a Parser over the given source text in the given mode.
func New(text string, mode Mode) *Parser {
	lx := lexer.New(text, lexer.Options{})
	toks := lx.All()
	p := &Parser{toks: toks, mode: mode, srcMap: source.NewMap(text)}
	p.diags = append(p.diags, lx.Diagnostics()...)
	return p
}

// Diagnostics returns every diagnostic raised while parsing (lexical and
// syntactic).
func (p *Parser) Diagnostics() []diagnostics.Diagnostic { return p.diags }

// IsPartial reports whether the parser had to recover from a syntax
// error somewhere in the source, planting an ast.Error node in place of
// the malformed subtree (spec.md §8 scenario 10).
func (p *Parser) IsPartial() bool { return p.hasRecovered }

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peek() token.Token {
	if p.pos+1 >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos+1]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) curPrecedence() int {
	if prec, ok := binaryPrecedence[p.cur().Kind]; ok {
		return prec
	}
	return 0
}

// Parse parses a complete FHIRPath expression. In ModeFailFast the first
// error returns (nil, err); otherwise it returns a best-effort tree plus
// collected diagnostics (retrievable via Diagnostics()).
func (p *Parser) Parse() (ast.Node, error) {
	expr, err := p.parseExpression(0)
	if err != nil {
		if p.mode == ModeFailFast {
			return nil, err
		}
		return expr, nil
	}
	if p.cur().Kind != token.EOF {
		tok := p.cur()
		d := diagnostics.New(p.rangeOf(tok), diagnostics.SeverityError, diagnostics.SynUnexpectedToken, "fhirpath-parser", tok.Lexeme, []token.Kind{token.EOF})
		p.diags = append(p.diags, d)
		if p.mode == ModeFailFast {
			return nil, fmt.Errorf("unexpected trailing token %q", tok.Lexeme)
		}
	}
	return expr, nil
}

func (p *Parser) rangeOf(t token.Token) source.Range {
	if p.mode != ModeDiagnostic {
		return source.Range{}
	}
	return p.srcMap.Range(t.Offset, t.End())
}

func (p *Parser) setRange(n ast.Node, start token.Token) {
	if p.mode != ModeDiagnostic {
		return
	}
	endOffset := p.toks[p.pos-1].End()
	if p.pos == 0 {
		endOffset = start.End()
	}
	n.SetRange(p.srcMap.Range(start.Offset, endOffset))
}

func (p *Parser) errorf(tok token.Token, code diagnostics.Code, msg string, args ...interface{}) error {
	d := diagnostics.New(p.rangeOf(tok), diagnostics.SeverityError, code, "fhirpath-parser", args...)
	p.diags = append(p.diags, d)
	return fmt.Errorf("%s", msg)
}

// recover is called at a syntax-error recovery point. In ModeFailFast it
// behaves like errorf, returning (nil, err) so the caller aborts. In the
// recoverable modes it instead plants an ast.Error node and returns it
// with a nil error, so the caller can splice it into the best-effort
// tree and keep going rather than discarding everything parsed so far
// (spec.md §4.2, §8 scenario 10).
func (p *Parser) recover(tok token.Token, code diagnostics.Code, msg string, args ...interface{}) (ast.Node, error) {
	err := p.errorf(tok, code, msg, args...)
	if p.mode == ModeFailFast {
		return nil, err
	}
	return p.errNode(tok, msg), nil
}

// errNode builds an ast.Error node for a failure already logged as a
// diagnostic elsewhere (e.g. by parseTypeName), without raising a second
// one.
func (p *Parser) errNode(tok token.Token, msg string) ast.Node {
	p.hasRecovered = true
	n := ast.NewError(tok, nil, tok, msg)
	p.setRange(n, tok)
	return n
}

// parseExpression is the Pratt-parser core: parse one prefix/primary
// expression, then fold in infix operators whose precedence exceeds
// minPrec (grounded on internal/parser/expressions_core.go).
func (p *Parser) parseExpression(minPrec int) (ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return left, err
	}
	for {
		kind := p.cur().Kind
		prec, ok := binaryPrecedence[kind]
		if !ok || prec < minPrec {
			break
		}
		if kind == token.DOT {
			left, err = p.parseInvocation(left)
			if err != nil {
				return left, err
			}
			continue
		}
		if kind == token.LBRACKET {
			left, err = p.parseIndex(left)
			if err != nil {
				return left, err
			}
			continue
		}
		opTok := p.advance()
		nextMin := prec + 1
		if rightAssociative[kind] {
			nextMin = prec
		}
		if kind == token.AS || kind == token.IS {
			left, err = p.parseMembershipOrCast(left, opTok, kind)
			if err != nil {
				return left, err
			}
			continue
		}
		if kind == token.PIPE {
			left, err = p.parseUnionChain(left, opTok)
			if err != nil {
				return left, err
			}
			continue
		}
		right, err := p.parseExpression(nextMin)
		if err != nil {
			return left, err
		}
		bin := ast.NewBinary(opTok, string(kind), left, right)
		p.setRange(bin, startTokenOf(left))
		left = bin
	}
	return left, nil
}

func startTokenOf(n ast.Node) token.Token { return n.Token() }

func (p *Parser) parseUnionChain(left ast.Node, opTok token.Token) (ast.Node, error) {
	operands := []ast.Node{left}
	right, err := p.parseExpression(precUnion + 1)
	if err != nil {
		return left, err
	}
	operands = append(operands, right)
	for p.cur().Kind == token.PIPE {
		p.advance()
		next, err := p.parseExpression(precUnion + 1)
		if err != nil {
			break
		}
		operands = append(operands, next)
	}
	u := ast.NewUnion(opTok, operands)
	p.setRange(u, startTokenOf(left))
	return u, nil
}

func (p *Parser) parseMembershipOrCast(left ast.Node, opTok token.Token, kind token.Kind) (ast.Node, error) {
	typeName, err := p.parseTypeName()
	if err != nil {
		if p.mode == ModeFailFast {
			return left, err
		}
		// parseTypeName already logged its own diagnostic; don't log a
		// second one, just plant the recovery node in place of the
		// malformed is/as expression.
		return p.errNode(opTok, err.Error()), nil
	}
	if kind == token.IS {
		n := ast.NewMembershipTest(opTok, left, typeName)
		p.setRange(n, startTokenOf(left))
		return n, nil
	}
	n := ast.NewTypeCast(opTok, left, typeName)
	p.setRange(n, startTokenOf(left))
	return n, nil
}

func (p *Parser) parseTypeName() (string, error) {
	t := p.cur()
	if t.Kind != token.TYPE_IDENT && t.Kind != token.IDENT {
		return "", p.errorf(t, diagnostics.SynInvalidTypeLiteral, "expected a type name", t.Lexeme)
	}
	p.advance()
	name := t.Lexeme
	for p.cur().Kind == token.DOT {
		p.advance()
		part := p.cur()
		if part.Kind != token.TYPE_IDENT && part.Kind != token.IDENT {
			return "", p.errorf(part, diagnostics.SynInvalidTypeLiteral, "expected a type name segment", part.Lexeme)
		}
		p.advance()
		name += "." + part.Lexeme
	}
	return name, nil
}

func (p *Parser) parseIndex(target ast.Node) (ast.Node, error) {
	lb := p.advance() // [
	idx, err := p.parseExpression(0)
	if err != nil {
		return target, err
	}
	if p.cur().Kind != token.RBRACKET {
		return p.recover(p.cur(), diagnostics.SynUnclosedDelimiter, "unclosed [", "[")
	}
	p.advance()
	n := ast.NewIndex(lb, target, idx)
	p.setRange(n, startTokenOf(target))
	return n, nil
}

// parseInvocation handles `.member`, `.func(...)`, context-sensitive
// keyword-as-identifier (Open Question 1), and `ofType(T)`'s
// TypeReference special case (spec.md §4.2, §9 Open Questions).
func (p *Parser) parseInvocation(left ast.Node) (ast.Node, error) {
	dotTok := p.advance() // .
	t := p.cur()
	if isIdentLike(t.Kind) {
		p.advance()
		if p.cur().Kind == token.LPAREN {
			fn, err := p.parseFunctionCall(t)
			if err != nil {
				return left, err
			}
			bin := ast.NewBinary(dotTok, ".", left, fn)
			p.setRange(bin, startTokenOf(left))
			return bin, nil
		}
		ident := ast.NewIdentifier(t, t.Lexeme)
		p.setRange(ident, t)
		var member ast.Node = ident
		if t.Kind == token.TYPE_IDENT {
			toi := ast.NewTypeOrIdentifier(t, t.Lexeme)
			p.setRange(toi, t)
			member = toi
		}
		bin := ast.NewBinary(dotTok, ".", left, member)
		p.setRange(bin, startTokenOf(left))
		return bin, nil
	}
	if t.Kind == token.THIS || t.Kind == token.INDEX || t.Kind == token.TOTAL {
		v, err := p.parseVariable()
		if err != nil {
			return left, err
		}
		bin := ast.NewBinary(dotTok, ".", left, v)
		p.setRange(bin, startTokenOf(left))
		return bin, nil
	}
	errNode, err := p.recover(t, diagnostics.SynUnexpectedToken, "expected a member name after '.'", t.Lexeme, []token.Kind{token.IDENT})
	if err != nil {
		return left, err
	}
	bin := ast.NewBinary(dotTok, ".", left, errNode)
	p.setRange(bin, startTokenOf(left))
	return bin, nil
}

// isIdentLike reports whether kind can serve as a property/function name
// directly after `.`, including reserved words used as plain identifiers
// there (Open Question 1: `Patient.true` is accepted).
func isIdentLike(kind token.Kind) bool {
	switch kind {
	case token.IDENT, token.TYPE_IDENT, token.DELIMITED_IDENT,
		token.AS, token.CONTAINS, token.IN, token.IS, token.DIV, token.MOD,
		token.AND, token.OR, token.XOR, token.IMPLIES, token.NOT,
		token.TRUE, token.FALSE:
		return true
	default:
		return false
	}
}

func (p *Parser) parseFunctionCall(nameTok token.Token) (ast.Node, error) {
	p.advance() // (
	name := ast.NewIdentifier(nameTok, nameTok.Lexeme)
	p.setRange(name, nameTok)

	if nameTok.Lexeme == "ofType" {
		return p.parseOfTypeCall(nameTok, name)
	}

	var args []ast.Node
	for p.cur().Kind != token.RPAREN {
		arg, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	if p.cur().Kind != token.RPAREN {
		return p.recover(p.cur(), diagnostics.SynUnclosedDelimiter, "unclosed (", "(")
	}
	p.advance()
	fn := ast.NewFunction(nameTok, name, args)
	p.setRange(fn, nameTok)
	return fn, nil
}

// parseOfTypeCall recognizes ofType(TypeName) and produces a
// TypeReference argument node rather than parsing its argument as an
// ordinary expression, since TypeName is not a property/variable
// reference (spec.md §4.2).
func (p *Parser) parseOfTypeCall(nameTok token.Token, name *ast.Identifier) (ast.Node, error) {
	typeTok := p.cur()
	typeName, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	ref := ast.NewTypeReference(typeTok, typeName)
	p.setRange(ref, typeTok)
	if p.cur().Kind != token.RPAREN {
		return p.recover(p.cur(), diagnostics.SynUnclosedDelimiter, "unclosed (", "(")
	}
	p.advance()
	fn := ast.NewFunction(nameTok, name, []ast.Node{ref})
	p.setRange(fn, nameTok)
	return fn, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	t := p.cur()
	switch t.Kind {
	case token.PLUS, token.MINUS:
		p.advance()
		operand, err := p.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		u := ast.NewUnary(t, string(t.Kind), operand)
		p.setRange(u, t)
		return u, nil
	case token.NOT:
		p.advance()
		operand, err := p.parseExpression(precUnary)
		if err != nil {
			return nil, err
		}
		u := ast.NewUnary(t, "not", operand)
		p.setRange(u, t)
		return u, nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	t := p.cur()
	switch t.Kind {
	case token.NUMBER:
		p.advance()
		n, err := p.parseLiteralNumber(t)
		return n, err
	case token.STRING:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueString, t.Lexeme)
		p.setRange(n, t)
		return n, nil
	case token.TRUE:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueBool, true)
		p.setRange(n, t)
		return n, nil
	case token.FALSE:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueBool, false)
		p.setRange(n, t)
		return n, nil
	case token.NULLVALUE:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueNull, nil)
		p.setRange(n, t)
		return n, nil
	case token.DATE:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueDate, t.Lexeme)
		p.setRange(n, t)
		return n, nil
	case token.TIME:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueTime, t.Lexeme)
		p.setRange(n, t)
		return n, nil
	case token.DATETIME:
		p.advance()
		n := ast.NewLiteral(t, ast.ValueDateTime, t.Lexeme)
		p.setRange(n, t)
		return n, nil
	case token.THIS, token.INDEX, token.TOTAL:
		return p.parseVariable()
	case token.ENV:
		p.advance()
		v := ast.NewVariable(t, ast.VarEnvironment, t.Lexeme)
		p.setRange(v, t)
		return v, nil
	case token.IDENT, token.DELIMITED_IDENT:
		p.advance()
		if p.cur().Kind == token.LPAREN {
			return p.parseFunctionCall(t)
		}
		n := ast.NewIdentifier(t, t.Lexeme)
		p.setRange(n, t)
		return n, nil
	case token.TYPE_IDENT:
		p.advance()
		if p.cur().Kind == token.LPAREN {
			return p.parseFunctionCall(t)
		}
		n := ast.NewTypeOrIdentifier(t, t.Lexeme)
		p.setRange(n, t)
		return n, nil
	case token.LPAREN:
		return p.parseParenOrCollection(t)
	default:
		err := p.errorf(t, diagnostics.SynUnexpectedToken, "unexpected token", t.Lexeme, nil)
		if p.mode == ModeFailFast {
			return nil, err
		}
		p.hasRecovered = true
		incomplete := ast.NewIncomplete(t, nil, []string{"expression"})
		p.setRange(incomplete, t)
		if t.Kind != token.EOF {
			p.advance()
		}
		return incomplete, nil
	}
}

func (p *Parser) parseVariable() (ast.Node, error) {
	t := p.advance()
	kind := ast.VarThis
	switch t.Kind {
	case token.INDEX:
		kind = ast.VarIndex
	case token.TOTAL:
		kind = ast.VarTotal
	}
	v := ast.NewVariable(t, kind, "")
	p.setRange(v, t)
	return v, nil
}

func (p *Parser) parseParenOrCollection(open token.Token) (ast.Node, error) {
	p.advance() // (
	var elems []ast.Node
	for p.cur().Kind != token.RPAREN {
		e, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.cur().Kind == token.COMMA {
			p.advance()
			continue
		}
		break
	}
	if p.cur().Kind != token.RPAREN {
		return p.recover(p.cur(), diagnostics.SynUnclosedDelimiter, "unclosed (", "(")
	}
	p.advance()
	if len(elems) == 1 {
		return elems[0], nil
	}
	c := ast.NewCollection(open, elems)
	p.setRange(c, open)
	return c, nil
}

func (p *Parser) parseLiteralNumber(t token.Token) (ast.Node, error) {
	n := ast.NewLiteral(t, ast.ValueNumber, t.Lexeme)
	p.setRange(n, t)
	return n, nil
}
