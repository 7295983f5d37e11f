package registry

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/evalctx"
	"github.com/lschmierer/fhirpath-go/internal/value"
)

func TestStandardRegistryHasCoreOperators(t *testing.T) {
	r := Standard()
	for _, name := range []string{"+", "-", "*", "/", "div", "mod", "=", "!=", "<", ">", "and", "or", "not", "|", "in", "contains"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("expected %q to be registered", name)
		}
	}
}

func TestArithmeticThunkEmptyPropagation(t *testing.T) {
	r := Standard()
	entry, _ := r.Lookup("+")
	ctx := evalctx.New(nil, nil, nil, nil)
	out, err := entry.Impl(ctx, []value.Sequence{value.Empty(), value.Single(int64(1))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsEmpty() {
		t.Fatalf("got %v, want empty", out)
	}
}

func TestComparisonThunkRejectsNonSingleton(t *testing.T) {
	r := Standard()
	entry, _ := r.Lookup("<")
	ctx := evalctx.New(nil, nil, nil, nil)
	_, err := entry.Impl(ctx, []value.Sequence{value.Of(int64(1), int64(2)), value.Single(int64(3))})
	if err == nil {
		t.Fatal("expected an error for a non-singleton operand")
	}
}

func TestCandidatesForInputFallsBackToWildcard(t *testing.T) {
	r := New()
	r.Register(&Entry{Name: "alwaysApplicable"})
	cands := r.CandidatesForInput("AnythingAtAll")
	found := false
	for _, c := range cands {
		if c.Name == "alwaysApplicable" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the wildcard entry to be a candidate for every input kind")
	}
}
