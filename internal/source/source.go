// Package source converts byte offsets into line/column positions and
// derives ranges for tokens and AST nodes, per spec.md §3's "Source
// position" and "range" data model.
package source

import "sort"

// Position is a 0-based line/character pair plus the absolute byte offset
// it was derived from.
type Position struct {
	Line      int
	Character int
	Offset    int
}

// Range is a start/end pair of positions, end-exclusive.
type Range struct {
	Start Position
	End   Position
}

// Map converts byte offsets within a fixed source string into Positions.
// It is built once per source and is safe for concurrent read-only use.
type Map struct {
	text        string
	lineOffsets []int // byte offset of the first byte of each line
}

// NewMap scans text once for newlines and builds the line-offset table.
func NewMap(text string) *Map {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return &Map{text: text, lineOffsets: offsets}
}

// Position converts a byte offset into a Position. Offsets past the end of
// the source clamp to the final position.
func (m *Map) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(m.text) {
		offset = len(m.text)
	}
	// Find the last line whose start offset is <= offset.
	line := sort.Search(len(m.lineOffsets), func(i int) bool {
		return m.lineOffsets[i] > offset
	}) - 1
	if line < 0 {
		line = 0
	}
	lineStart := m.lineOffsets[line]
	character := utf16Len(m.text[lineStart:offset])
	return Position{Line: line, Character: character, Offset: offset}
}

// Range builds a Range covering [start, end) of the source.
func (m *Map) Range(start, end int) Range {
	return Range{Start: m.Position(start), End: m.Position(end)}
}

// utf16Len counts UTF-16 code units in s, matching the LSP-style character
// offsets used by the diagnostic wire shape in spec.md §6.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}
