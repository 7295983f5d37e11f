package evalctx

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/value"
)

func TestNewSeedsFocusFromInput(t *testing.T) {
	in := value.Single(int64(42))
	c := New(in, nil, nil, nil)
	if !value.Equal(c.Input(), c.Focus()) {
		t.Fatalf("focus should start identical to input: %v vs %v", c.Input(), c.Focus())
	}
}

func TestWithFocusLeavesOriginalUnchanged(t *testing.T) {
	c := New(value.Single(int64(1)), nil, nil, nil)
	c2 := c.WithFocus(value.Single(int64(2)))
	if !value.Equal(c.Focus(), value.Single(int64(1))) {
		t.Fatalf("original context's focus mutated: %v", c.Focus())
	}
	if !value.Equal(c2.Focus(), value.Single(int64(2))) {
		t.Fatalf("new context should carry the updated focus: %v", c2.Focus())
	}
}

func TestThisFallsBackToFocusWhenUnbound(t *testing.T) {
	c := New(value.Single(int64(7)), nil, nil, nil)
	got, bound := c.This()
	if bound {
		t.Fatal("expected no explicit $this binding")
	}
	if !value.Equal(got, value.Single(int64(7))) {
		t.Fatalf("$this should fall back to focus, got %v", got)
	}
}

func TestWithThisBindsExplicitly(t *testing.T) {
	c := New(value.Single(int64(7)), nil, nil, nil)
	c2 := c.WithThis(value.Single(int64(99)))
	got, bound := c2.This()
	if !bound {
		t.Fatal("expected $this to be bound")
	}
	if !value.Equal(got, value.Single(int64(99))) {
		t.Fatalf("got %v, want 99", got)
	}
}

func TestWithIndexAndTotal(t *testing.T) {
	c := New(value.Empty(), nil, nil, nil)
	if _, ok := c.Index(); ok {
		t.Fatal("expected $index unbound on a fresh context")
	}
	c2 := c.WithIndex(3).WithTotal(value.Single(int64(10)))
	idx, ok := c2.Index()
	if !ok || idx != 3 {
		t.Fatalf("got index=%d ok=%v, want 3 true", idx, ok)
	}
	total, ok := c2.Total()
	if !ok || !value.Equal(total, value.Single(int64(10))) {
		t.Fatalf("got total=%v ok=%v, want 10 true", total, ok)
	}
}

func TestWithVariableDoesNotMutateParentBindings(t *testing.T) {
	c := New(value.Empty(), map[string]value.Sequence{"a": value.Single(int64(1))}, nil, nil)
	c2 := c.WithVariable("b", value.Single(int64(2)))

	if _, ok := c.Variable("b"); ok {
		t.Fatal("parent context should not see the child's new binding")
	}
	if v, ok := c2.Variable("a"); !ok || !value.Equal(v, value.Single(int64(1))) {
		t.Fatalf("child should still see inherited binding a, got %v ok=%v", v, ok)
	}
	if v, ok := c2.Variable("b"); !ok || !value.Equal(v, value.Single(int64(2))) {
		t.Fatalf("child should see its own new binding b, got %v ok=%v", v, ok)
	}
}

func TestTraceInvokesSinkWhenConfigured(t *testing.T) {
	var gotName string
	var gotVals value.Sequence
	sink := func(name string, vals value.Sequence) {
		gotName = name
		gotVals = vals
	}
	c := New(value.Empty(), nil, nil, sink)
	c.Trace("checkpoint", value.Single(int64(5)))
	if gotName != "checkpoint" {
		t.Fatalf("got name %q, want checkpoint", gotName)
	}
	if !value.Equal(gotVals, value.Single(int64(5))) {
		t.Fatalf("got %v, want 5", gotVals)
	}
}

func TestTraceWithoutSinkIsANoop(t *testing.T) {
	c := New(value.Empty(), nil, nil, nil)
	c.Trace("ignored", value.Single(int64(1)))
}
