package inspect

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/analyzer"
	"github.com/lschmierer/fhirpath-go/internal/backend"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

func TestInspectRunsAnalyzeAndEvaluateAndReportsCounts(t *testing.T) {
	reg := registry.Standard()
	p := parser.New("1 + 2", parser.ModeStandard)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	an := analyzer.New(reg, nil, analyzer.Lenient)
	be := backend.NewInterpreterBackend(reg)
	ins := New(an, be)

	ctx := evalctx.New(value.Empty(), nil, nil, nil)
	report := ins.Inspect(root, typesystem.Type{}, ctx)

	if report.RunID == "" {
		t.Fatal("expected a non-empty run id")
	}
	if report.Err != nil {
		t.Fatalf("unexpected evaluation error: %v", report.Err)
	}
	if !value.Equal(report.Result, value.Single(int64(3))) {
		t.Fatalf("got %v, want 3", report.Result)
	}
	// 1 + 2 parses to one Binary node over two Literal nodes.
	if report.NodesVisited != 3 {
		t.Fatalf("got %d nodes, want 3", report.NodesVisited)
	}
}

func TestInspectReportsTwoDistinctRunIDsAcrossCalls(t *testing.T) {
	reg := registry.Standard()
	p := parser.New("1", parser.ModeStandard)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	an := analyzer.New(reg, nil, analyzer.Lenient)
	be := backend.NewInterpreterBackend(reg)
	ins := New(an, be)
	ctx := evalctx.New(value.Empty(), nil, nil, nil)

	r1 := ins.Inspect(root, typesystem.Type{}, ctx)
	r2 := ins.Inspect(root, typesystem.Type{}, ctx)
	if r1.RunID == r2.RunID {
		t.Fatal("expected distinct run ids across separate Inspect calls")
	}
}

func TestInspectSurfacesAnalysisDiagnosticsAlongsideEvaluation(t *testing.T) {
	reg := registry.Standard()
	p := parser.New("bogusField", parser.ModeStandard)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mpType := typesystem.Type{Primary: typesystem.Any, Model: &typesystem.ModelContext{TypeName: "Patient"}}
	mp, err := model.LoadStaticProvider([]byte("types:\n  - name: Patient\n    elements: []\n"))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	an := analyzer.New(reg, mp, analyzer.Strict)
	be := backend.NewInterpreterBackend(reg)
	ins := New(an, be)
	ctx := evalctx.New(value.Empty(), nil, nil, nil)

	report := ins.Inspect(root, mpType, ctx)
	if len(report.Diagnostics) == 0 {
		t.Fatal("expected a diagnostic for an unknown property in strict mode")
	}
}
