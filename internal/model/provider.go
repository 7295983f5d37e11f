// Package model defines the Model Provider contract FHIRPath consults to
// resolve domain type names, element types, and polymorphic (choice)
// element expansion (spec.md §2, §4.5).
package model

import "github.com/lschmierer/fhirpath-go/internal/typesystem"

// Element describes one property of a domain type.
type Element struct {
	Name     string
	Type     typesystem.Type
	MaxCard  int // -1 means unbounded ("*")
}

// Provider resolves domain-schema information. Every method is
// synchronous and is expected to hit a pre-warmed in-memory cache — the
// analyzer calls it on every property access, so anything
// that blocks on I/O belongs behind a separate warm-up step, not inside
// these calls (spec.md §5).
type Provider interface {
	// ResolveType returns the descriptor for a named domain type (e.g.
	// "Patient", "HumanName"), or ok=false if unknown.
	ResolveType(name string) (typesystem.Type, bool)

	// ResolveElement returns the descriptor for typeName.elementName, or
	// ok=false if the type or element is unknown.
	ResolveElement(typeName, elementName string) (Element, bool)

	// Elements lists every element of typeName, in declaration order —
	// the backbone of completion.
	Elements(typeName string) ([]Element, bool)

	// IsSubtype reports whether sub is sub.TypeName or derives from
	// base, per the type's Hierarchy (used by `is`/`as`/`ofType`).
	IsSubtype(sub, base string) bool
}
