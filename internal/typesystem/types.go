// Package typesystem defines FHIRPath's canonical primary types, the
// singleton/collection cardinality, and the type descriptor every AST node
// carries after analysis (spec.md §3, §4.5).
package typesystem

// Primary is one of FHIRPath's canonical scalar type names, or Any for the
// analyzer's wildcard.
type Primary string

const (
	String   Primary = "String"
	Integer  Primary = "Integer"
	Decimal  Primary = "Decimal"
	Boolean  Primary = "Boolean"
	Date     Primary = "Date"
	Time     Primary = "Time"
	DateTime Primary = "DateTime"
	Quantity Primary = "Quantity"
	Any      Primary = "Any" // wildcard: unknown / polymorphic / error-recovery

	// Void marks "no value at all" for pure-side-effect operations.
	Void Primary = "Void"
)

// ModelContext carries domain-schema hierarchy information for a type that
// originates from a Model Provider, including whether the node's static
// type is a polymorphic (union/choice) type and, if so, its choices.
type ModelContext struct {
	TypeName    string   // e.g. "Patient", "HumanName"
	IsUnion     bool     // true for choice types, e.g. Patient.deceased[x]
	Choices     []string // possible concrete type names when IsUnion
	Hierarchy   []string // base type chain, most-derived first
}

// Type is the descriptor attached to every AST node after analysis:
// {canonical primary type name, singleton boolean, optional namespace,
// optional original name, optional model context} per spec.md §3.
type Type struct {
	Primary      Primary
	Singleton    bool
	Namespace    string // e.g. "FHIR", "System" — empty for canonical types
	OriginalName string // the domain type name before canonicalization, if any
	Model        *ModelContext
}

// Wildcard is the type assigned to Error/Incomplete nodes and to any node
// whose type could not be determined.
var Wildcard = Type{Primary: Any, Singleton: false}

// SingletonOf returns the singleton-cardinality descriptor for p.
func SingletonOf(p Primary) Type { return Type{Primary: p, Singleton: true} }

// CollectionOf returns the collection-cardinality descriptor for p.
func CollectionOf(p Primary) Type { return Type{Primary: p, Singleton: false} }

// IsWildcard reports whether t is the Any wildcard type.
func (t Type) IsWildcard() bool { return t.Primary == Any }

// canonicalPrimaries is the set of FHIRPath's own scalar primary types, as
// opposed to domain/complex type names a Model Provider resolves (e.g.
// "HumanName", "Patient").
var canonicalPrimaries = map[Primary]bool{
	String: true, Integer: true, Decimal: true, Boolean: true,
	Date: true, Time: true, DateTime: true, Quantity: true,
}

// IsCanonicalPrimary reports whether name is one of FHIRPath's built-in
// scalar primary type names.
func IsCanonicalPrimary(name Primary) bool { return canonicalPrimaries[name] }

// WithSingleton returns a copy of t with the given cardinality.
func (t Type) WithSingleton(singleton bool) Type {
	t.Singleton = singleton
	return t
}

// AsCollection returns a copy of t forced to collection cardinality —
// used at `.` (pipeline) and union boundaries where cardinality is the OR
// of operands (spec.md §4.5 rule 4) or always-collection (rule 5).
func (t Type) AsCollection() Type { return t.WithSingleton(false) }

// Unify implements the union-type-node unification rule from spec.md
// §4.5 rule 5: same primary on both sides yields that primary; otherwise
// the wildcard. Cardinality of a union result is always collection.
func Unify(a, b Type) Type {
	if a.Primary == b.Primary && a.Namespace == b.Namespace {
		return Type{Primary: a.Primary, Namespace: a.Namespace, Singleton: false}
	}
	return Type{Primary: Any, Singleton: false}
}

// Equivalent reports whether two primary types are interchangeable for
// the purposes of operator/function applicability checks (Any matches
// anything).
func Equivalent(a, b Primary) bool {
	return a == Any || b == Any || a == b
}
