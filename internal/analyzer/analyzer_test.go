package analyzer

import (
	"fmt"
	"os"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

func TestMain(m *testing.M) {
	v := m.Run()
	snaps.Clean(m)
	os.Exit(v)
}

const patientSchema = `
types:
  - name: Patient
    elements:
      - { name: active, type: Boolean }
      - { name: name, type: HumanName, maxCard: -1 }
  - name: HumanName
    elements:
      - { name: family, type: String }
      - { name: given, type: String, maxCard: -1 }
`

func analyzeExpr(t *testing.T, expr string, mp model.Provider, strictness Strictness) []diagnostics.Diagnostic {
	t.Helper()
	p := parser.New(expr, parser.ModeDiagnostic)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	reg := registry.Standard()
	a := New(reg, mp, strictness)
	inputType := typesystem.Type{Primary: typesystem.Any, Model: &typesystem.ModelContext{TypeName: "Patient"}}
	return a.Analyze(root, inputType)
}

func hasCode(diags []diagnostics.Diagnostic, code diagnostics.Code) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestAnalyzeUnknownPropertyStrict(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(patientSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	diags := analyzeExpr(t, "bogusField", mp, Strict)
	if !hasCode(diags, diagnostics.UnknownProperty) {
		t.Fatalf("expected UNKNOWN_PROPERTY, got %v", diags)
	}
}

func TestAnalyzeUnknownPropertyLenientIsSilent(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(patientSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	diags := analyzeExpr(t, "bogusField", mp, Lenient)
	if hasCode(diags, diagnostics.UnknownProperty) {
		t.Fatalf("lenient mode should not report UNKNOWN_PROPERTY, got %v", diags)
	}
}

func TestAnalyzeUnknownFunctionStrict(t *testing.T) {
	diags := analyzeExpr(t, "name.notARealFunction()", nil, Strict)
	if !hasCode(diags, diagnostics.UnknownFunction) {
		t.Fatalf("expected UNKNOWN_FUNCTION, got %v", diags)
	}
}

func TestAnalyzeArityErrors(t *testing.T) {
	diags := analyzeExpr(t, "where()", nil, Lenient)
	if !hasCode(diags, diagnostics.TooFewArgs) {
		t.Fatalf("expected TOO_FEW_ARGS for where() with no predicate, got %v", diags)
	}
}

func TestAnalyzeStrictWithoutModelProviderReportsConfigError(t *testing.T) {
	diags := analyzeExpr(t, "name", nil, Strict)
	if !hasCode(diags, diagnostics.ConfigMissingModelProvider) {
		t.Fatalf("expected CONFIG_MISSING_MODEL_PROVIDER, got %v", diags)
	}
}

func TestAnalyzeResolvesKnownPropertyType(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(patientSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	p := parser.New("name.given", parser.ModeDiagnostic)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	reg := registry.Standard()
	a := New(reg, mp, Strict)
	inputType := typesystem.Type{Primary: typesystem.Any, Model: &typesystem.ModelContext{TypeName: "Patient"}}
	a.Analyze(root, inputType)
	if root.Type().Primary != typesystem.String {
		t.Fatalf("name.given should resolve to String, got %v", root.Type())
	}
}

// TestAnalyzeDiagnosticSnapshots locks down the exact diagnostic set
// (codes, messages, order) a representative sample of expressions
// produces, so a change to analyzer wording or ordering shows up as a
// snapshot diff instead of silently passing whatever hasCode happens to
// check for.
func TestAnalyzeDiagnosticSnapshots(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(patientSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	tests := []struct {
		name       string
		expr       string
		mp         model.Provider
		strictness Strictness
	}{
		{"unknown_property_strict", "bogusField", mp, Strict},
		{"unknown_function_strict", "name.notARealFunction()", nil, Strict},
		{"where_too_few_args", "where()", nil, Lenient},
		{"strict_without_model_provider", "name", nil, Strict},
		{"known_property_resolves_clean", "name.given.where(family.exists())", mp, Strict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := analyzeExpr(t, tt.expr, tt.mp, tt.strictness)
			snaps.MatchSnapshot(t, fmt.Sprintf("%+v", diags))
		})
	}
}
