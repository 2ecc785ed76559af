package hosts

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/hostkeep/internal/vfs"
)

const sampleHosts = "127.0.0.1\tlocalhost\n#192.168.1.1 example.com www.example.com  # site\n"

func TestParse_DisabledEntryWithAliases(t *testing.T) {
	doc := Parse(sampleHosts, "/etc/hosts")

	if doc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", doc.Len())
	}
	if !doc.TrailingNewline {
		t.Error("TrailingNewline = false, want true")
	}
	entries := doc.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}

	want := Entry{
		Address:    "192.168.1.1",
		Name:       "example.com",
		Enabled:    false,
		Aliases:    []string{"www.example.com"},
		Comment:    "# site",
		Raw:        "#192.168.1.1 example.com www.example.com  # site",
		LineNumber: 1,
	}
	if diff := cmp.Diff(want, entries[1]); diff != "" {
		t.Errorf("second entry mismatch (-want +got):\n%s", diff)
	}
	if !entries[0].Enabled || entries[0].Address != "127.0.0.1" || entries[0].Name != "localhost" {
		t.Errorf("first entry = %+v", entries[0])
	}
}

func TestParse_Classification(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		isEntry bool
		enabled bool
	}{
		{"blank", "", false, false},
		{"whitespace only", "   \t", false, false},
		{"plain comment", "# This is a comment", false, false},
		{"double marker", "## 10.0.0.1 host", false, false},
		{"ipv4", "10.0.0.1 host", true, true},
		{"ipv6", "::1 localhost ip6-localhost", true, true},
		{"ipv6 full", "fe80::1%lo0 localhost", true, true},
		{"localhost literal", "localhost myname", true, true},
		{"disabled", "# 10.0.0.1 host", true, false},
		{"disabled no space", "#10.0.0.1 host", true, false},
		{"indented", "   10.0.0.1   host  ", true, true},
		{"address only", "10.0.0.1", false, false},
		{"bad address", "999.0.0.1 host", false, false},
		{"hostname first", "host 10.0.0.1", false, false},
		{"name is comment", "10.0.0.1 #host", false, false},
		{"leading zeros", "010.0.0.1 host", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := parseLine(tt.line, 7)
			if line.Number() != 7 {
				t.Errorf("Number() = %d, want 7", line.Number())
			}
			e, isEntry := line.(Entry)
			if isEntry != tt.isEntry {
				t.Fatalf("parseLine(%q) entry = %v, want %v", tt.line, isEntry, tt.isEntry)
			}
			if !isEntry {
				c := line.(Comment)
				if c.Raw != tt.line {
					t.Errorf("Comment.Raw = %q, want %q", c.Raw, tt.line)
				}
				return
			}
			if e.Enabled != tt.enabled {
				t.Errorf("Enabled = %v, want %v", e.Enabled, tt.enabled)
			}
			if e.Raw != tt.line {
				t.Errorf("Raw = %q, want %q", e.Raw, tt.line)
			}
		})
	}
}

func TestParse_AliasesAndComment(t *testing.T) {
	e := parseLine("10.0.0.1 a b c #x   y  z", 0).(Entry)
	if diff := cmp.Diff([]string{"b", "c"}, e.Aliases); diff != "" {
		t.Errorf("Aliases mismatch (-want +got):\n%s", diff)
	}
	if e.Comment != "#x y z" {
		t.Errorf("Comment = %q, want %q", e.Comment, "#x y z")
	}

	e = parseLine("10.0.0.1 a", 0).(Entry)
	if e.Aliases != nil || e.Comment != "" {
		t.Errorf("bare entry got aliases=%v comment=%q", e.Aliases, e.Comment)
	}
}

func TestParse_CRLF(t *testing.T) {
	doc := Parse("127.0.0.1 localhost\r\n# note\r\n", "hosts")
	lines := doc.Lines()
	if len(lines) != 2 {
		t.Fatalf("len(Lines()) = %d, want 2", len(lines))
	}
	if e := lines[0].(Entry); e.Raw != "127.0.0.1 localhost" {
		t.Errorf("Raw = %q, want CR stripped", e.Raw)
	}
	if c := lines[1].(Comment); c.Raw != "# note" {
		t.Errorf("Comment.Raw = %q", c.Raw)
	}
}

func TestParse_Terminators(t *testing.T) {
	tests := []struct {
		text     string
		lines    int
		trailing bool
	}{
		{"", 0, false},
		{"\n", 1, true},
		{"# a", 1, false},
		{"# a\n", 1, true},
		{"# a\n\n", 2, true},
		{"10.0.0.1 h\r\n", 1, true},
	}
	for _, tt := range tests {
		doc := Parse(tt.text, "hosts")
		if doc.Len() != tt.lines || doc.TrailingNewline != tt.trailing {
			t.Errorf("Parse(%q) Len() = %d TrailingNewline = %v, want %d %v",
				tt.text, doc.Len(), doc.TrailingNewline, tt.lines, tt.trailing)
		}
	}
}

func TestParse_LineNumbersAreIndexes(t *testing.T) {
	doc := Parse("a\n\n10.0.0.1 h\n# c", "hosts")
	for i, line := range doc.Lines() {
		if line.Number() != i {
			t.Errorf("line %d Number() = %d", i, line.Number())
		}
	}
}

func TestParseFile(t *testing.T) {
	m := vfs.NewMemFS()
	m.MkdirAll("/etc")
	_ = m.WriteFile("/etc/hosts", []byte(sampleHosts), 0644)
	mod := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m.SetModTime("/etc/hosts", mod)

	doc, err := ParseFile(m, "/etc/hosts")
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if !doc.ModTime.Equal(mod) {
		t.Errorf("ModTime = %v, want %v", doc.ModTime, mod)
	}
	if doc.Path != "/etc/hosts" {
		t.Errorf("Path = %q", doc.Path)
	}
	if len(doc.Entries()) != 2 {
		t.Errorf("len(Entries()) = %d, want 2", len(doc.Entries()))
	}

	if _, err := ParseFile(m, "/etc/missing"); err == nil {
		t.Error("ParseFile() on missing file returned nil error")
	}
}
