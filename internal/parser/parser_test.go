package parser

import (
	"fmt"
	"os"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/lschmierer/fhirpath-go/internal/ast"
)

func TestMain(m *testing.M) {
	v := m.Run()
	snaps.Clean(m)
	os.Exit(v)
}

func dumpNode(n ast.Node) string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T(%+v)", n, n)
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"dot_chain", "Patient.name.given"},
		{"arithmetic", "1 + 2 * 3"},
		{"comparison_and", "a = 1 and b = 2"},
		{"implies_right_assoc", "a implies b implies c"},
		{"function_call", "name.where(use = 'official').given.first()"},
		{"union", "a | b | c"},
		{"is_as", "value as Quantity"},
		{"indexer", "name[0].given"},
		{"unary_not", "not a.exists()"},
		{"oftype", "children().ofType(HumanName)"},
		{"reserved_word_as_identifier", "Patient.true"},
		{"this_after_dot", "name.where($this.use = 'official')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.expr, ModeStandard)
			root, err := p.Parse()
			if err != nil {
				t.Fatalf("parse %q: %v", tt.expr, err)
			}
			snaps.MatchSnapshot(t, dumpNode(root))
		})
	}
}

func TestParseFailFastReturnsFirstError(t *testing.T) {
	p := New("Patient..name", ModeFailFast)
	if _, err := p.Parse(); err == nil {
		t.Fatal("expected an error for a double dot")
	}
}

func TestParseStandardRecoversAndCollectsDiagnostics(t *testing.T) {
	p := New("Patient.(", ModeStandard)
	_, _ = p.Parse()
	if len(p.Diagnostics()) == 0 {
		t.Fatal("expected at least one diagnostic from the unclosed paren")
	}
}

func TestParseDiagnosticModePopulatesRanges(t *testing.T) {
	p := New("Patient.name", ModeDiagnostic)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if root.Range().End.Offset == 0 {
		t.Fatal("expected a populated range in diagnostic mode")
	}
}

func TestParseOfTypeProducesTypeReferenceArgument(t *testing.T) {
	p := New("children().ofType(HumanName)", ModeStandard)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	bin, ok := root.(*ast.Binary)
	if !ok || bin.Operator != "." {
		t.Fatalf("expected a '.' binary at the root, got %T", root)
	}
	fn, ok := bin.Right.(*ast.Function)
	if !ok || fn.Name.Name != "ofType" {
		t.Fatalf("expected an ofType function call, got %T", bin.Right)
	}
	if _, ok := fn.Arguments[0].(*ast.TypeReference); !ok {
		t.Fatalf("expected ofType's argument to be a TypeReference, got %T", fn.Arguments[0])
	}
}
