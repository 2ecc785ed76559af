// Package hosts models a hosts file as an ordered sequence of lines.
//
// A document is parsed losslessly: every physical line becomes either an
// Entry (an address-to-name mapping, possibly disabled by a leading "#") or
// a Comment holding the original text verbatim. Serialize is the inverse of
// Parse, and the mutation functions in this package are pure: they always
// return a new Document and never modify their input.
package hosts

import (
	"fmt"
	"slices"
	"time"
)

// Line is one physical line of a hosts file. It is implemented only by
// Entry and Comment.
type Line interface {
	// Number returns the 0-based physical line number.
	Number() int

	isLine()
}

// Entry is a parsed address mapping.
type Entry struct {
	Address string
	Name    string
	Enabled bool
	Aliases []string

	// Comment is the trailing comment including its leading "#", or "".
	Comment string

	// Raw is the text of the line as last read from disk.
	Raw string

	LineNumber int
}

// Number implements Line.
func (e Entry) Number() int { return e.LineNumber }

func (Entry) isLine() {}

// Names returns the primary name followed by the aliases.
func (e Entry) Names() []string {
	names := make([]string, 0, 1+len(e.Aliases))
	names = append(names, e.Name)
	return append(names, e.Aliases...)
}

// clone returns a copy that shares no memory with e.
func (e Entry) clone() Entry {
	e.Aliases = slices.Clone(e.Aliases)
	return e
}

// Comment is any line that is not a recognized mapping, including blank
// lines. Raw is emitted unchanged on serialization.
type Comment struct {
	Raw        string
	LineNumber int
}

// Number implements Line.
func (c Comment) Number() int { return c.LineNumber }

func (Comment) isLine() {}

// EntryFields are the caller-supplied fields of a new entry. The line
// number is assigned by AddEntry.
type EntryFields struct {
	Address string
	Name    string
	Enabled bool
	Aliases []string
	Comment string
}

// Stats summarizes a document.
type Stats struct {
	Entries  int
	Enabled  int
	Disabled int
	Comments int
}

// Document is an ordered hosts file model.
//
// The line sequence is authoritative for serialization; the entry sequence
// is always the Entry subset of it in the same relative order. Accessors
// return copies so callers never alias a document's internal state.
type Document struct {
	// Path is the file the document was read from.
	Path string

	// ModTime is the file modification time observed when it was read.
	ModTime time.Time

	// TrailingNewline records whether the text ended with a line
	// terminator. The terminator does not produce a line of its own.
	TrailingNewline bool

	lines   []Line
	entries []Entry
}

// NewDocument builds a document from lines, deriving the entry sequence.
// The lines are copied.
func NewDocument(path string, modTime time.Time, lines []Line) *Document {
	doc := &Document{
		Path:    path,
		ModTime: modTime,
		lines:   make([]Line, 0, len(lines)),
	}
	for _, line := range lines {
		doc.lines = append(doc.lines, cloneLine(line))
	}
	doc.deriveEntries()
	return doc
}

func (d *Document) deriveEntries() {
	d.entries = d.entries[:0]
	for _, line := range d.lines {
		if e, ok := line.(Entry); ok {
			d.entries = append(d.entries, e.clone())
		}
	}
}

// Lines returns a copy of the line sequence in storage order.
func (d *Document) Lines() []Line {
	lines := make([]Line, len(d.lines))
	for i, line := range d.lines {
		lines[i] = cloneLine(line)
	}
	return lines
}

// Entries returns a copy of the entry sequence.
func (d *Document) Entries() []Entry {
	entries := make([]Entry, len(d.entries))
	for i, e := range d.entries {
		entries[i] = e.clone()
	}
	return entries
}

// Len returns the number of lines.
func (d *Document) Len() int { return len(d.lines) }

// Line returns the line with the given number.
func (d *Document) Line(n int) (Line, bool) {
	for _, line := range d.lines {
		if line.Number() == n {
			return cloneLine(line), true
		}
	}
	return nil, false
}

// Entry returns the entry with the given line number.
func (d *Document) Entry(n int) (Entry, bool) {
	for _, e := range d.entries {
		if e.LineNumber == n {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

// FindByName returns every entry whose primary name or alias equals name.
func (d *Document) FindByName(name string) []Entry {
	var found []Entry
	for _, e := range d.entries {
		if slices.Contains(e.Names(), name) {
			found = append(found, e.clone())
		}
	}
	return found
}

// MaxLineNumber returns the highest line number, or -1 for an empty document.
func (d *Document) MaxLineNumber() int {
	max := -1
	for _, line := range d.lines {
		if n := line.Number(); n > max {
			max = n
		}
	}
	return max
}

// Stats counts entries and comment lines.
func (d *Document) Stats() Stats {
	var s Stats
	for _, line := range d.lines {
		switch l := line.(type) {
		case Entry:
			s.Entries++
			if l.Enabled {
				s.Enabled++
			} else {
				s.Disabled++
			}
		case Comment:
			s.Comments++
		default:
			panic(fmt.Sprintf("hosts: unknown line type %T", line))
		}
	}
	return s
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := NewDocument(d.Path, d.ModTime, d.lines)
	c.TrailingNewline = d.TrailingNewline
	return c
}

// withLines returns a document sharing d's metadata with the given lines.
// The lines slice is owned by the result.
func (d *Document) withLines(lines []Line) *Document {
	doc := &Document{
		Path:            d.Path,
		ModTime:         d.ModTime,
		TrailingNewline: d.TrailingNewline,
		lines:           lines,
	}
	doc.deriveEntries()
	return doc
}

func cloneLine(line Line) Line {
	switch l := line.(type) {
	case Entry:
		return l.clone()
	case Comment:
		return l
	default:
		panic(fmt.Sprintf("hosts: unknown line type %T", line))
	}
}
