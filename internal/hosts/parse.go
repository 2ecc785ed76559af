package hosts

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/hostkeep/internal/vfs"
)

// Parse turns hosts file text into a Document. It never fails: any line
// that is not confidently an address mapping is kept verbatim as a Comment.
func Parse(text, path string) *Document {
	return parse(text, path, time.Time{})
}

// ParseFile reads and parses the file at path. Only I/O can fail.
func ParseFile(fsys vfs.FS, path string) (*Document, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat hosts file: %w", err)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	return parse(string(data), path, info.ModTime()), nil
}

func parse(text, path string, modTime time.Time) *Document {
	doc := &Document{Path: path, ModTime: modTime}
	if text == "" {
		return doc.withLines(nil)
	}
	text, doc.TrailingNewline = strings.CutSuffix(text, "\n")

	physical := strings.Split(text, "\n")
	lines := make([]Line, 0, len(physical))
	for n, raw := range physical {
		raw = strings.TrimSuffix(raw, "\r")
		lines = append(lines, parseLine(raw, n))
	}
	return doc.withLines(lines)
}

// parseLine classifies one physical line.
func parseLine(raw string, n int) Line {
	content := strings.TrimSpace(raw)
	enabled := true
	if rest, ok := strings.CutPrefix(content, "#"); ok {
		enabled = false
		content = strings.TrimLeft(rest, " \t")
	}

	tokens := strings.Fields(content)
	if len(tokens) < 2 || !IsAddress(tokens[0]) || strings.HasPrefix(tokens[1], "#") {
		return Comment{Raw: raw, LineNumber: n}
	}

	e := Entry{
		Address:    tokens[0],
		Name:       tokens[1],
		Enabled:    enabled,
		Raw:        raw,
		LineNumber: n,
	}
	for i, tok := range tokens[2:] {
		if strings.HasPrefix(tok, "#") {
			e.Comment = strings.Join(tokens[2+i:], " ")
			break
		}
		e.Aliases = append(e.Aliases, tok)
	}
	return e
}
