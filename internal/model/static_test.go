package model

import "testing"

const schema = `
types:
  - name: Resource
    elements:
      - { name: id, type: String }
  - name: Patient
    base: Resource
    elements:
      - { name: active, type: Boolean }
      - { name: name, type: HumanName, maxCard: -1 }
  - name: HumanName
    elements:
      - { name: family, type: String }
      - { name: given, type: String, maxCard: -1 }
`

func TestStaticProviderResolveElement(t *testing.T) {
	p, err := LoadStaticProvider([]byte(schema))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	el, ok := p.ResolveElement("Patient", "active")
	if !ok {
		t.Fatal("expected Patient.active to resolve")
	}
	if el.Type.Primary != "Boolean" {
		t.Fatalf("got %v, want Boolean", el.Type.Primary)
	}
}

func TestStaticProviderInheritsBaseElements(t *testing.T) {
	p, err := LoadStaticProvider([]byte(schema))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	el, ok := p.ResolveElement("Patient", "id")
	if !ok {
		t.Fatal("expected Patient to inherit Resource.id")
	}
	if el.Name != "id" {
		t.Fatalf("got %v, want id", el.Name)
	}
}

func TestStaticProviderIsSubtype(t *testing.T) {
	p, err := LoadStaticProvider([]byte(schema))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if !p.IsSubtype("Patient", "Resource") {
		t.Fatal("expected Patient to be a subtype of Resource")
	}
	if p.IsSubtype("Patient", "HumanName") {
		t.Fatal("Patient should not be a subtype of HumanName")
	}
}

func TestStaticProviderElementsListsInDeclarationOrderAcrossHierarchy(t *testing.T) {
	p, err := LoadStaticProvider([]byte(schema))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	els, ok := p.Elements("Patient")
	if !ok {
		t.Fatal("expected Patient elements")
	}
	names := make([]string, len(els))
	for i, e := range els {
		names[i] = e.Name
	}
	want := []string{"active", "name", "id"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("element %d: got %s, want %s", i, names[i], want[i])
		}
	}
}

func TestStaticProviderUnknownTypeIsNotFound(t *testing.T) {
	p, err := LoadStaticProvider([]byte(schema))
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if _, ok := p.ResolveType("NoSuchType"); ok {
		t.Fatal("expected NoSuchType to be unresolved")
	}
}
