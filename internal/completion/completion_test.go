package completion

import (
	"testing"

	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

const completionSchema = `
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

func patientInputType() typesystem.Type {
	return typesystem.Type{Primary: typesystem.Any, Model: &typesystem.ModelContext{TypeName: "Patient"}}
}

func labels(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func contains(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}

func TestCompleteTopLevelAfterTrailingDotListsElements(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(completionSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	c := New(registry.Standard(), mp)
	result := c.Complete("name.", 5, patientInputType())
	ls := labels(result.Items)
	if !contains(ls, "family") || !contains(ls, "given") {
		t.Fatalf("expected family/given among completions, got %v", ls)
	}
}

func TestCompletePartialPropertyNameFiltersByPrefix(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(completionSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	c := New(registry.Standard(), mp)
	result := c.Complete("name.fam", 8, patientInputType())
	ls := labels(result.Items)
	if !contains(ls, "family") {
		t.Fatalf("expected family among completions for prefix fam, got %v", ls)
	}
	if contains(ls, "given") {
		t.Fatalf("given should not match prefix fam, got %v", ls)
	}
}

func TestCompleteRootLevelProposesPatientElements(t *testing.T) {
	mp, err := model.LoadStaticProvider([]byte(completionSchema))
	if err != nil {
		t.Fatalf("loading schema: %v", err)
	}
	c := New(registry.Standard(), mp)
	result := c.Complete("", 0, patientInputType())
	ls := labels(result.Items)
	if !contains(ls, "active") || !contains(ls, "name") {
		t.Fatalf("expected active/name among completions, got %v", ls)
	}
}

func TestCompleteAssignsAFreshIDPerCall(t *testing.T) {
	c := New(registry.Standard(), nil)
	r1 := c.Complete("", 0, patientInputType())
	r2 := c.Complete("", 0, patientInputType())
	if r1.ID == "" || r2.ID == "" || r1.ID == r2.ID {
		t.Fatalf("expected distinct non-empty IDs, got %q and %q", r1.ID, r2.ID)
	}
}
