package backend

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

func TestInterpreterAndClosureBackendsAgree(t *testing.T) {
	reg := registry.Standard()
	p := parser.New("1 + 2", parser.ModeStandard)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	interp := NewInterpreterBackend(reg)
	closure := NewClosureBackend(reg)

	if interp.Name() != "interpreter" {
		t.Fatalf("got %q, want interpreter", interp.Name())
	}
	if closure.Name() != "compiler" {
		t.Fatalf("got %q, want compiler", closure.Name())
	}

	ctx := evalctx.New(value.Empty(), nil, nil, nil)
	got1, err := interp.Run(root, ctx)
	if err != nil {
		t.Fatalf("interpreter run: %v", err)
	}
	got2, err := closure.Run(root, ctx)
	if err != nil {
		t.Fatalf("closure run: %v", err)
	}
	if !value.Equal(got1, got2) {
		t.Fatalf("backends disagree: %v vs %v", got1, got2)
	}
	if !value.Equal(got1, value.Single(int64(3))) {
		t.Fatalf("got %v, want 3", got1)
	}
}

func TestClosureBackendCompileIsReusable(t *testing.T) {
	reg := registry.Standard()
	p := parser.New("2 * 3", parser.ModeStandard)
	root, err := p.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	closure := NewClosureBackend(reg)
	prog, err := closure.Compile(root)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx := evalctx.New(value.Empty(), nil, nil, nil)
	for i := 0; i < 3; i++ {
		got, err := prog.Invoke(ctx)
		if err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
		if !value.Equal(got, value.Single(int64(6))) {
			t.Fatalf("invoke %d: got %v, want 6", i, got)
		}
	}
}
