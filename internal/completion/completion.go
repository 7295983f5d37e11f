// Package completion implements position-aware completion over a
// parsed-in-diagnostic-mode expression, per spec.md §4.8. It reuses the
// existing parse/analyze pipeline rather than re-implementing lookup —
// grounded on how the teacher's internal/ext/inspector.go instruments an
// existing pipeline instead of re-parsing from scratch.
package completion

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lschmierer/fhirpath-go/internal/analyzer"
	"github.com/lschmierer/fhirpath-go/internal/ast"
	"github.com/lschmierer/fhirpath-go/internal/model"
	"github.com/lschmierer/fhirpath-go/internal/parser"
	"github.com/lschmierer/fhirpath-go/internal/registry"
	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// Kind tags what an Item completes: a property, a function, or a type
// name (for `is`/`as`/`ofType`).
type Kind int

const (
	KindProperty Kind = iota
	KindFunction
	KindType
)

// Item is one completion candidate.
type Item struct {
	Label string
	Kind  Kind
	Type  typesystem.Type
	Doc   string
}

// Result is the response to one Complete call, correlated with a fresh
// id so callers can match async completion requests to responses
// (spec.md §4.8).
type Result struct {
	ID    string
	Items []Item
}

// Completer resolves completion candidates at a cursor offset.
type Completer struct {
	reg   *registry.Registry
	model model.Provider
}

// New builds a Completer over the given registry and optional model.
func New(reg *registry.Registry, mp model.Provider) *Completer {
	return &Completer{reg: reg, model: mp}
}

// Complete parses source in diagnostic mode and returns candidates
// applicable at byte offset cursor, given the static type of the
// expression's root input.
func (c *Completer) Complete(source string, cursor int, inputType typesystem.Type) Result {
	id := uuid.NewString()
	truncated := source
	if cursor < len(source) {
		truncated = source[:cursor]
	}
	p := parser.New(truncated, parser.ModeDiagnostic)
	root, _ := p.Parse()
	if root != nil {
		analyzer.New(c.reg, c.model, analyzer.Lenient).Analyze(root, inputType)
	}

	prefix, contextType := c.resolveContext(root, truncated, inputType)
	items := c.candidatesFor(contextType)
	items = filterByPrefix(items, prefix)
	return Result{ID: id, Items: items}
}

// resolveContext determines the prefix fragment being typed and the
// static type completion should enumerate members of. If the source ends
// right after a `.`, that's the left-hand expression's type; otherwise
// it's a partial identifier and the context type is the root input type
// with whatever prefix was typed before the cursor.
func (c *Completer) resolveContext(root ast.Node, truncated string, inputType typesystem.Type) (prefix string, contextType typesystem.Type) {
	trimmed := strings.TrimRight(truncated, " \t\n")
	if strings.HasSuffix(trimmed, ".") {
		// The dangling dot parses as a `.` Binary whose right side is a
		// recovery node, so the left operand carries the type to complete.
		if left, ok := lastDotLeft(root); ok {
			return "", left.Type()
		}
		if root != nil {
			return "", root.Type()
		}
		return "", inputType
	}
	idx := strings.LastIndexAny(trimmed, ".([,| ")
	prefix = trimmed[idx+1:]
	if bin, ok := lastDotLeft(root); ok {
		return prefix, bin.Type()
	}
	return prefix, inputType
}

// lastDotLeft finds the left operand's type of the outermost trailing `.`
// binary node, if the parsed root is (or ends with) one.
func lastDotLeft(root ast.Node) (ast.Node, bool) {
	bin, ok := root.(*ast.Binary)
	if !ok || bin.Operator != "." {
		return nil, false
	}
	return bin.Left, true
}

func (c *Completer) candidatesFor(t typesystem.Type) []Item {
	var items []Item
	if c.model != nil && t.Model != nil {
		if els, ok := c.model.Elements(t.Model.TypeName); ok {
			for _, el := range els {
				items = append(items, Item{Label: el.Name, Kind: KindProperty, Type: el.Type})
			}
		}
	}
	for _, e := range c.reg.CandidatesForInput(t.Primary) {
		items = append(items, Item{Label: e.Name, Kind: KindFunction, Doc: e.Doc})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func filterByPrefix(items []Item, prefix string) []Item {
	if prefix == "" {
		return items
	}
	var out []Item
	for _, it := range items {
		if strings.HasPrefix(it.Label, prefix) {
			out = append(out, it)
		}
	}
	return out
}
