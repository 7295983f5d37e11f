package lexer

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.Kind)
	}
	return out
}

func TestLexSimpleExpression(t *testing.T) {
	toks := New("Patient.name.given", Options{}).All()
	got := kinds(toks)
	want := []token.Kind{token.TYPE_IDENT, token.DOT, token.IDENT, token.DOT, token.IDENT, token.EOF}
	assertKinds(t, got, want)
}

func TestLexFunctionCall(t *testing.T) {
	toks := New("name.where(use = 'official')", Options{}).All()
	got := kinds(toks)
	want := []token.Kind{
		token.IDENT, token.DOT, token.IDENT, token.LPAREN,
		token.IDENT, token.EQ, token.STRING, token.RPAREN, token.EOF,
	}
	assertKinds(t, got, want)
}

func TestLexNumbers(t *testing.T) {
	toks := New("1 + 2.5", Options{}).All()
	if toks[0].Kind != token.NUMBER || toks[0].Lexeme != "1" {
		t.Fatalf("got %v, want NUMBER 1", toks[0])
	}
	if toks[2].Kind != token.NUMBER || toks[2].Lexeme != "2.5" {
		t.Fatalf("got %v, want NUMBER 2.5", toks[2])
	}
}

func TestLexSpecialAndEnvironmentVariables(t *testing.T) {
	toks := New("$this.count() + %resource.id", Options{}).All()
	if toks[0].Kind != token.THIS {
		t.Fatalf("got %v, want THIS", toks[0])
	}
	foundEnv := false
	for _, tk := range toks {
		if tk.Kind == token.ENV {
			foundEnv = true
		}
	}
	if !foundEnv {
		t.Fatal("expected an ENV token for %resource")
	}
}

func TestLexDelimitedIdentifier(t *testing.T) {
	toks := New("`div`.exists()", Options{}).All()
	if toks[0].Kind != token.DELIMITED_IDENT || toks[0].Lexeme != "div" {
		t.Fatalf("got %v, want DELIMITED_IDENT div", toks[0])
	}
}

func TestLexTemporalLiterals(t *testing.T) {
	toks := New("@2020-01-01 > @T12:00:00 > @2020-01-01T12:00:00Z", Options{}).All()
	if toks[0].Kind != token.DATE {
		t.Fatalf("got %v, want DATE", toks[0])
	}
	if toks[2].Kind != token.TIME {
		t.Fatalf("got %v, want TIME", toks[2])
	}
	if toks[4].Kind != token.DATETIME {
		t.Fatalf("got %v, want DATETIME", toks[4])
	}
}

func TestLexNullLiteral(t *testing.T) {
	toks := New("{}", Options{}).All()
	if toks[0].Kind != token.NULLVALUE {
		t.Fatalf("got %v, want NULL", toks[0])
	}
}

func TestLexUnknownCharacterRecordsDiagnosticWithoutPanicking(t *testing.T) {
	lx := New("a # b", Options{})
	toks := lx.All()
	if len(lx.Diagnostics()) == 0 {
		t.Fatal("expected a diagnostic for '#'")
	}
	if kinds(toks)[len(toks)-1] != token.EOF {
		t.Fatal("lexer should still reach EOF after an unknown character")
	}
}

func TestLexTriviaPreservedWhenRequested(t *testing.T) {
	toks := New("a // comment\n.b", Options{PreserveTrivia: true}).All()
	foundComment := false
	for _, tk := range toks {
		if tk.Kind == token.COMMENT {
			foundComment = true
			if tk.Channel != token.ChannelHidden {
				t.Error("trivia tokens must be on the hidden channel")
			}
		}
	}
	if !foundComment {
		t.Fatal("expected a COMMENT token when PreserveTrivia is set")
	}
}

func assertKinds(t *testing.T, got, want []token.Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d tokens %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
