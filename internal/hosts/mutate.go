package hosts

import (
	"fmt"
	"slices"
)

// AddEntry appends a new entry numbered one past the highest existing line
// number (0 for an empty document).
func AddEntry(doc *Document, f EntryFields) (*Document, error) {
	if err := ValidateFields(f); err != nil {
		return nil, &LineError{Op: "add", Line: -1, Err: err}
	}

	e := Entry{
		Address:    f.Address,
		Name:       f.Name,
		Enabled:    f.Enabled,
		Aliases:    slices.Clone(f.Aliases),
		Comment:    canonicalComment(f.Comment),
		LineNumber: doc.MaxLineNumber() + 1,
	}
	e.Raw = renderEntry(e)

	lines := doc.Lines()
	lines = append(lines, e)
	return doc.withLines(lines), nil
}

// UpdateEntry replaces the line carrying e.LineNumber with e, leaving every
// other line untouched. It returns ErrNotFound if no such line exists.
func UpdateEntry(doc *Document, e Entry) (*Document, error) {
	if err := ValidateFields(e.fields()); err != nil {
		return nil, &LineError{Op: "update", Line: e.LineNumber, Err: err}
	}

	lines := doc.Lines()
	i := slices.IndexFunc(lines, func(l Line) bool { return l.Number() == e.LineNumber })
	if i < 0 {
		return nil, &LineError{Op: "update", Line: e.LineNumber, Err: ErrNotFound}
	}
	e = e.clone()
	e.Comment = canonicalComment(e.Comment)
	lines[i] = e
	return doc.withLines(lines), nil
}

// RemoveEntry drops the line with number n. Removing a number that is not
// present is not an error; the returned document is an unchanged copy.
func RemoveEntry(doc *Document, n int) *Document {
	lines := slices.DeleteFunc(doc.Lines(), func(l Line) bool { return l.Number() == n })
	return doc.withLines(lines)
}

// ToggleEntry flips the enabled flag of the entry at line n. It returns
// ErrNotFound if line n is absent or is not an entry.
func ToggleEntry(doc *Document, n int) (*Document, error) {
	e, ok := doc.Entry(n)
	if !ok {
		return nil, &LineError{Op: "toggle", Line: n, Err: ErrNotFound}
	}
	e.Enabled = !e.Enabled
	return UpdateEntry(doc, e)
}

// SetEnabled enables or disables the entry at line n. It is a no-op copy
// when the entry is already in the requested state.
func SetEnabled(doc *Document, n int, enabled bool) (*Document, error) {
	e, ok := doc.Entry(n)
	if !ok {
		return nil, &LineError{Op: fmt.Sprintf("set enabled=%t", enabled), Line: n, Err: ErrNotFound}
	}
	if e.Enabled == enabled {
		return doc.Clone(), nil
	}
	return ToggleEntry(doc, n)
}
