package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// staticElement mirrors the YAML shape of one element declaration.
type staticElement struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Namespace string   `yaml:"namespace"`
	MaxCard   int      `yaml:"maxCard"`
	Choices   []string `yaml:"choices"`
}

// staticType mirrors the YAML shape of one type declaration.
type staticType struct {
	Name     string          `yaml:"name"`
	Base     string          `yaml:"base"`
	Elements []staticElement `yaml:"elements"`
}

type staticSchema struct {
	Types []staticType `yaml:"types"`
}

// StaticProvider is a Model Provider backed by a fixed, in-memory schema
// loaded once from YAML — used for tests and for embedding small,
// hand-maintained schemas without a code generator (spec.md §4.5's
// "Model Provider" component, pluggable-implementation requirement).
type StaticProvider struct {
	types map[string]staticType
	// hierarchy[name] is the base-type chain, most-derived first,
	// precomputed at load time so IsSubtype is O(1) amortized.
	hierarchy map[string][]string
}

// LoadStaticProvider parses a YAML schema document of the shape given
// by staticSchema, staticType and staticElement, and builds a
// StaticProvider from it.
func LoadStaticProvider(yamlDoc []byte) (*StaticProvider, error) {
	var schema staticSchema
	if err := yaml.Unmarshal(yamlDoc, &schema); err != nil {
		return nil, fmt.Errorf("model: parsing static schema: %w", err)
	}
	p := &StaticProvider{
		types:     make(map[string]staticType, len(schema.Types)),
		hierarchy: make(map[string][]string, len(schema.Types)),
	}
	for _, t := range schema.Types {
		p.types[t.Name] = t
	}
	for name := range p.types {
		p.hierarchy[name] = p.buildChain(name)
	}
	return p, nil
}

func (p *StaticProvider) buildChain(name string) []string {
	var chain []string
	seen := map[string]bool{}
	cur := name
	for cur != "" && !seen[cur] {
		seen[cur] = true
		chain = append(chain, cur)
		t, ok := p.types[cur]
		if !ok {
			break
		}
		cur = t.Base
	}
	return chain
}

func (p *StaticProvider) ResolveType(name string) (typesystem.Type, bool) {
	t, ok := p.types[name]
	if !ok {
		return typesystem.Type{}, false
	}
	return typesystem.Type{
		Primary:      typesystem.Any,
		Singleton:    true,
		OriginalName: name,
		Model: &typesystem.ModelContext{
			TypeName:  name,
			Hierarchy: p.hierarchy[name],
		},
	}, true
}

func (p *StaticProvider) ResolveElement(typeName, elementName string) (Element, bool) {
	for _, name := range p.hierarchy[typeName] {
		t, ok := p.types[name]
		if !ok {
			continue
		}
		for _, el := range t.Elements {
			if el.Name == elementName {
				return toElement(el), true
			}
		}
	}
	return Element{}, false
}

func (p *StaticProvider) Elements(typeName string) ([]Element, bool) {
	chain, ok := p.hierarchy[typeName]
	if !ok {
		return nil, false
	}
	var out []Element
	seen := map[string]bool{}
	for _, name := range chain {
		t := p.types[name]
		for _, el := range t.Elements {
			if seen[el.Name] {
				continue
			}
			seen[el.Name] = true
			out = append(out, toElement(el))
		}
	}
	return out, true
}

func (p *StaticProvider) IsSubtype(sub, base string) bool {
	for _, name := range p.hierarchy[sub] {
		if name == base {
			return true
		}
	}
	return false
}

func toElement(el staticElement) Element {
	maxCard := el.MaxCard
	if maxCard == 0 {
		maxCard = 1
	}
	primary := typesystem.Primary(el.Type)
	typ := typesystem.Type{
		Primary:      primary,
		Singleton:    maxCard == 1,
		Namespace:    el.Namespace,
		OriginalName: el.Name,
	}
	if !typesystem.IsCanonicalPrimary(primary) {
		// A domain/complex type reference (e.g. "HumanName") rather than
		// one of FHIRPath's own scalars: the static type is the wildcard,
		// with the concrete type name carried in Model so further
		// property navigation can resolve against it.
		typ.Primary = typesystem.Any
		typ.Model = &typesystem.ModelContext{TypeName: el.Type}
	}
	if len(el.Choices) > 0 {
		typ.Model = &typesystem.ModelContext{IsUnion: true, Choices: el.Choices}
	}
	return Element{Name: el.Name, Type: typ, MaxCard: maxCard}
}
