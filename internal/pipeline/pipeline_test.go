package pipeline

import (
	"errors"
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/diagnostics"
)

func stageAppending(code diagnostics.Code) Processor {
	return ProcessorFunc(func(ctx *Context) *Context {
		ctx.AddDiagnostics(diagnostics.Diagnostic{Code: code})
		return ctx
	})
}

func TestRunChainsStagesInOrder(t *testing.T) {
	var order []string
	a := ProcessorFunc(func(ctx *Context) *Context {
		order = append(order, "a")
		return ctx
	})
	b := ProcessorFunc(func(ctx *Context) *Context {
		order = append(order, "b")
		return ctx
	})
	p := New(a, b)
	p.Run(&Context{})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("got %v, want [a b]", order)
	}
}

func TestRunAccumulatesDiagnosticsAcrossStages(t *testing.T) {
	p := New(stageAppending(diagnostics.LexUnknownChar), stageAppending(diagnostics.UnknownFunction))
	ctx := p.Run(&Context{})
	if len(ctx.Diagnostics) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(ctx.Diagnostics), ctx.Diagnostics)
	}
}

func TestRunStopsEarlyOnFatalError(t *testing.T) {
	ranSecond := false
	failing := ProcessorFunc(func(ctx *Context) *Context {
		ctx.FatalErr = errors.New("boom")
		return ctx
	})
	second := ProcessorFunc(func(ctx *Context) *Context {
		ranSecond = true
		return ctx
	})
	p := New(failing, second)
	ctx := p.Run(&Context{})
	if ranSecond {
		t.Fatal("second stage should not run after a fatal error")
	}
	if ctx.FatalErr == nil {
		t.Fatal("expected FatalErr to propagate")
	}
}

func TestRunContinuesPastNonFatalDiagnostics(t *testing.T) {
	ranSecond := false
	first := stageAppending(diagnostics.LexUnknownChar)
	second := ProcessorFunc(func(ctx *Context) *Context {
		ranSecond = true
		return ctx
	})
	p := New(first, second)
	p.Run(&Context{})
	if !ranSecond {
		t.Fatal("stages after a non-fatal diagnostic should still run")
	}
}
