// Package config holds version information and stable constants shared
// across the FHIRPath core.
package config

// Version is the current fhirpath-go engine version.
var Version = "0.1.0"

// DefaultMaxCompletions is a suggested cap on completion items. Complete
// does not read it and returns every candidate it finds.
const DefaultMaxCompletions = 200

// Source names attached to diagnostics, per the wire shape in spec.md §6.
const (
	SourceParser   = "fhirpath-parser"
	SourceAnalyzer = "fhirpath-analyzer"
)
