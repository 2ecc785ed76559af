package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/hostkeep/internal/hosts"
)

// Output formats for list.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// printer writes human-readable output, coloured only on a terminal.
type printer struct {
	out io.Writer

	header  *color.Color
	enabled *color.Color
	off     *color.Color
	dim     *color.Color
	added   *color.Color
	removed *color.Color
	failed  *color.Color
}

func newPrinter(out io.Writer) *printer {
	p := &printer{
		out:     out,
		header:  color.New(color.Bold),
		enabled: color.New(color.FgGreen),
		off:     color.New(color.FgYellow),
		dim:     color.New(color.Faint),
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
		failed:  color.New(color.FgRed, color.Bold),
	}
	if !isTerminal(out) {
		for _, c := range []*color.Color{p.header, p.enabled, p.off, p.dim, p.added, p.removed, p.failed} {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// cell is one table field with an optional colour.
type cell struct {
	text  string
	color *color.Color
}

// table pads cells on their plain width so escape codes never skew the
// columns.
func (p *printer) table(rows [][]cell) {
	var widths []int
	for _, row := range rows {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(c.text))
		}
	}

	for _, row := range rows {
		var b strings.Builder
		for i, c := range row {
			text := c.text
			if i < len(row)-1 {
				text += strings.Repeat(" ", widths[i]-utf8.RuneCountInString(c.text)+2)
			}
			if c.color != nil {
				text = c.color.Sprint(text)
			}
			b.WriteString(text)
		}
		fmt.Fprintln(p.out, strings.TrimRight(b.String(), " "))
	}
}

// diff prints a line diff between the file content before and after a
// change.
func (p *printer) diff(path, before, after string) {
	dmp := diffpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	changed := false
	for _, d := range diffs {
		if d.Type != diffpatch.DiffEqual {
			changed = true
			break
		}
	}
	if !changed {
		p.printf("no changes to %s\n", path)
		return
	}

	p.printf("%s\n", p.header.Sprintf("--- %s", path))
	p.printf("%s\n", p.header.Sprintf("+++ %s (dry run)", path))
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffpatch.DiffInsert:
				p.printf("%s\n", p.added.Sprint("+"+line))
			case diffpatch.DiffDelete:
				p.printf("%s\n", p.removed.Sprint("-"+line))
			default:
				p.printf(" %s\n", line)
			}
		}
	}
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}

// lineView is the list representation of one hosts line.
type lineView struct {
	Line    int      `json:"line" yaml:"line"`
	Type    string   `json:"type" yaml:"type"`
	Address string   `json:"address,omitempty" yaml:"address,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Comment string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	Raw     string   `json:"raw,omitempty" yaml:"raw,omitempty"`
}

func viewOf(line hosts.Line) lineView {
	switch l := line.(type) {
	case hosts.Entry:
		enabled := l.Enabled
		return lineView{
			Line:    l.LineNumber,
			Type:    "entry",
			Address: l.Address,
			Name:    l.Name,
			Aliases: l.Aliases,
			Enabled: &enabled,
			Comment: l.Comment,
		}
	case hosts.Comment:
		return lineView{Line: l.LineNumber, Type: "comment", Raw: l.Raw}
	default:
		panic(fmt.Sprintf("cli: unknown line type %T", line))
	}
}

func encodeViews(w io.Writer, format string, views []lineView) error {
	if views == nil {
		views = []lineView{}
	}
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case formatYAML:
		data, err := yaml.Marshal(views)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
