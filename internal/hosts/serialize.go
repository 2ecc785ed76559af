package hosts

import (
	"fmt"
	"slices"
	"strings"
)

// Serialize renders a document back to text. Lines are emitted in line
// number order regardless of storage order and joined with "\n". A final
// terminator is appended when the document had one and still has lines.
func Serialize(doc *Document) string {
	lines := slices.Clone(doc.lines)
	slices.SortStableFunc(lines, func(a, b Line) int {
		return a.Number() - b.Number()
	})

	rendered := make([]string, len(lines))
	for i, line := range lines {
		rendered[i] = renderLine(line)
	}
	text := strings.Join(rendered, "\n")
	if doc.TrailingNewline && len(rendered) > 0 {
		text += "\n"
	}
	return text
}

func renderLine(line Line) string {
	switch l := line.(type) {
	case Comment:
		return l.Raw
	case Entry:
		return renderEntry(l)
	default:
		panic(fmt.Sprintf("hosts: unknown line type %T", line))
	}
}

func renderEntry(e Entry) string {
	var b strings.Builder
	if !e.Enabled {
		b.WriteString("# ")
	}
	b.WriteString(e.Address)
	b.WriteByte('\t')
	b.WriteString(e.Name)
	if len(e.Aliases) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(e.Aliases, " "))
	}
	if e.Comment != "" {
		b.WriteByte(' ')
		if !strings.HasPrefix(e.Comment, "#") {
			b.WriteString("# ")
		}
		b.WriteString(e.Comment)
	}
	return b.String()
}
