// Package conformance runs the golden end-to-end scenarios from spec.md
// §8 against both evaluation backends, stored as golang.org/x/tools/txtar
// archives under testdata/conformance — the "golden testdata archive"
// convention shared by Go's own tooling (gopls, cmd/compile), which this
// pack's kpumuk-thrift-weaver also pulls golang.org/x/tools in for.
package conformance

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"

	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/backend"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

func TestConformanceFixtures(t *testing.T) {
	paths, err := filepath.Glob("../../testdata/conformance/*.txtar")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no conformance fixtures found")
	}
	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			ar, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatalf("parsing txtar: %v", err)
			}
			sections := make(map[string][]byte, len(ar.Files))
			for _, f := range ar.Files {
				sections[f.Name] = f.Data
			}
			expr := strings.TrimSpace(string(sections["expr.txt"]))
			input := decodeSequence(t, sections["input.json"])
			want := decodeSequence(t, sections["want.json"])

			p := parser.New(expr, parser.ModeStandard)
			root, err := p.Parse()
			if err != nil {
				t.Fatalf("parse %q: %v", expr, err)
			}

			reg := registry.Standard()
			ctx := evalctx.New(input, nil, nil, nil)

			interp := backend.NewInterpreterBackend(reg)
			gotInterp, err := interp.Run(root, ctx)
			if err != nil {
				t.Fatalf("interpreter run: %v", err)
			}
			assertSequenceEqual(t, "interpreter", gotInterp, want)

			closure := backend.NewClosureBackend(reg)
			gotComp, err := closure.Run(root, ctx)
			if err != nil {
				t.Fatalf("compiler run: %v", err)
			}
			assertSequenceEqual(t, "compiler", gotComp, want)
		})
	}
}

// TestDiagnosticModeRecoversPartialExpression is scenario 10 from spec.md
// §8: it doesn't fit the expr/input/want evaluation-triple shape the
// other fixtures share (there's no evaluation, no input, no Sequence — it
// asserts shapes of the parser's own recovery output), so it stays a
// plain Go test rather than a txtar fixture.
func TestDiagnosticModeRecoversPartialExpression(t *testing.T) {
	p := parser.New("Patient.name.where(use =", parser.ModeDiagnostic)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("diagnostic-mode parse should recover, not error: %v", err)
	}
	if root == nil {
		t.Fatal("expected a non-nil AST even for a truncated expression")
	}
	if len(p.Diagnostics()) == 0 {
		t.Fatal("expected at least one diagnostic for the unclosed where(...)")
	}
	if !containsErrorNode(root) {
		t.Fatal("expected at least one ast.Error node in the recovered tree")
	}
}

func containsErrorNode(n ast.Node) bool {
	switch v := n.(type) {
	case nil:
		return false
	case *ast.Error:
		return true
	case *ast.Incomplete:
		return v.Partial != nil && containsErrorNode(v.Partial)
	case *ast.Binary:
		return containsErrorNode(v.Left) || containsErrorNode(v.Right)
	case *ast.Unary:
		return containsErrorNode(v.Operand)
	case *ast.Function:
		for _, a := range v.Arguments {
			if containsErrorNode(a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func assertSequenceEqual(t *testing.T, label string, got, want value.Sequence) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %v (len %d), want %v (len %d)", label, got, len(got), want, len(want))
	}
	for i := range want {
		if !value.Equal(got[i], want[i]) {
			t.Errorf("%s: item %d: got %v (%T), want %v (%T)", label, i, got[i], got[i], want[i], want[i])
		}
	}
}

// decodeSequence parses a JSON array fixture into a Sequence, preserving
// the Integer/Decimal distinction via json.Number rather than collapsing
// every number to float64 the way encoding/json does by default.
func decodeSequence(t *testing.T, data []byte) value.Sequence {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("decoding json fixture: %v", err)
	}
	out := make(value.Sequence, len(raw))
	for i, v := range raw {
		out[i] = convertJSON(v)
	}
	return out
}

func convertJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		s := string(x)
		if strings.ContainsAny(s, ".eE") {
			f, _ := x.Float64()
			return f
		}
		i, err := x.Int64()
		if err != nil {
			f, _ := x.Float64()
			return f
		}
		return i
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, vv := range x {
			m[k] = convertJSON(vv)
		}
		return m
	case []any:
		arr := make([]any, len(x))
		for i, vv := range x {
			arr[i] = convertJSON(vv)
		}
		return arr
	default:
		return x
	}
}
