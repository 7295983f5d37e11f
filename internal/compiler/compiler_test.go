package compiler

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/interpreter"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

// TestInterpreterCompilerParity is the property from spec.md §8 and §9:
// interpret(e, c) must equal compile(e).Invoke(c) for every expression,
// since both evaluate through the same registry.Thunk implementations.
func TestInterpreterCompilerParity(t *testing.T) {
	exprs := []string{
		"1 + 2 * 3",
		"name.given",
		"name.where(use = 'official').given",
		"name.given.first()",
		"(1 | 2 | 1 | 3)",
		"name.given[1]",
		"name.exists()",
		"iif(1 < 2, 'yes', 'no')",
		"true and false",
		"true and {}",
		"not name.empty()",
		"name.select(given)",
		"name.all(use = 'official')",
		"-(2 + 3)",
		"defineVariable('x', 5).value + %x",
		"name.where(defineVariable('u', use).use = %u)",
	}
	patient := value.Single(map[string]any{
		"resourceType": "Patient",
		"value":        int64(5),
		"name": []any{
			map[string]any{"use": "official", "given": []any{"Jim", "James"}},
			map[string]any{"use": "nickname", "given": []any{"Jimmy"}},
		},
	})

	reg := registry.Standard()
	in := interpreter.New(reg)
	comp := New(reg)

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			p := parser.New(expr, parser.ModeStandard)
			root, err := p.Parse()
			if err != nil {
				t.Fatalf("parse: %v", err)
			}

			interpCtx := evalctx.New(patient, nil, nil, nil)
			interpResult, interpErr := in.Eval(root, interpCtx)

			prog, err := comp.Compile(root)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			compCtx := evalctx.New(patient, nil, nil, nil)
			compResult, compErr := prog.Invoke(compCtx)

			if (interpErr == nil) != (compErr == nil) {
				t.Fatalf("error parity mismatch: interpreter=%v, compiler=%v", interpErr, compErr)
			}
			if interpErr != nil {
				return
			}
			if len(interpResult) != len(compResult) {
				t.Fatalf("length mismatch: interpreter=%v, compiler=%v", interpResult, compResult)
			}
			for i := range interpResult {
				if !value.Equal(interpResult[i], compResult[i]) {
					t.Errorf("item %d mismatch: interpreter=%v, compiler=%v", i, interpResult[i], compResult[i])
				}
			}
		})
	}
}
