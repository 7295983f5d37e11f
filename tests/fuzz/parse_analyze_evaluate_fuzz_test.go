// Package fuzz carries the module's fuzz targets, mirroring the
// teacher's tests/fuzz/targets layout (e.g. tests/fuzz/targets/
// parser_fuzz_test.go), generalized to FHIRPath's three-stage
// parse/analyze/evaluate pipeline.
package fuzz

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/analyzer"
	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/interpreter"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// FuzzParseAnalyzeEvaluate drives raw source strings through Parse
// (standard mode), Analyze (lenient), and Eval, asserting only that the
// pipeline never panics — matching spec.md §7's "never throws" lexer
// contract extended across the whole pipeline (SPEC_FULL.md §8).
func FuzzParseAnalyzeEvaluate(f *testing.F) {
	f.Add("Patient.name.given")
	f.Add("name.where(use = 'official').given")
	f.Add("1 + 2 * 3")
	f.Add("(1 | 2 | 3).first()")
	f.Add("iif(true, 'yes', 'no')")
	f.Add("defineVariable('x', 5).value + %x")
	f.Add("Patient.name.where(use =")
	f.Add("..")
	f.Add("")
	f.Add("'unterminated")

	reg := registry.Standard()
	in := interpreter.New(reg)

	f.Fuzz(func(t *testing.T, src string) {
		p := parser.New(src, parser.ModeStandard)
		root, err := p.Parse()
		if err != nil || root == nil {
			return
		}

		a := analyzer.New(reg, nil, analyzer.Lenient)
		a.Analyze(root, typesystem.Type{Primary: typesystem.Any})

		ctx := evalctx.New(nil, nil, nil, nil)
		// Result/error are not asserted on: arbitrary fuzzed source is
		// expected to fail evaluation often. Only a panic is a failure.
		_, _ = in.Eval(root, ctx)
	})
}
