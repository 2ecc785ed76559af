package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/hostkeep/internal/app"
	"github.com/dshills/hostkeep/internal/hosts"
)

func (r *Runner) newListCmd(flags *globalFlags) *cobra.Command {
	var (
		format string
		all    bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List hosts entries",
		Args:    cobra.NoArgs,
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, _ []string) error {
			doc, err := a.Engine().Load(cmd.Context())
			if err != nil {
				return err
			}

			var lines []hosts.Line
			for _, line := range doc.Lines() {
				if _, ok := line.(hosts.Entry); ok || all {
					lines = append(lines, line)
				}
			}

			if format != formatText {
				views := make([]lineView, 0, len(lines))
				for _, line := range lines {
					views = append(views, viewOf(line))
				}
				return encodeViews(r.Out, format, views)
			}
			r.printLines(doc, lines)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json, yaml")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include comment and blank lines")
	return cmd
}

func (r *Runner) printLines(doc *hosts.Document, lines []hosts.Line) {
	p := newPrinter(r.Out)
	rows := [][]cell{{
		{text: "LINE", color: p.header},
		{text: "STATE", color: p.header},
		{text: "ADDRESS", color: p.header},
		{text: "NAMES", color: p.header},
		{text: "COMMENT", color: p.header},
	}}
	for _, line := range lines {
		n := strconv.Itoa(line.Number())
		switch l := line.(type) {
		case hosts.Entry:
			state := cell{text: "on", color: p.enabled}
			if !l.Enabled {
				state = cell{text: "off", color: p.off}
			}
			rows = append(rows, []cell{
				{text: n},
				state,
				{text: l.Address},
				{text: strings.Join(l.Names(), " ")},
				{text: l.Comment, color: p.dim},
			})
		case hosts.Comment:
			rows = append(rows, []cell{{text: n}, {text: "-", color: p.dim}, {}, {}, {text: l.Raw, color: p.dim}})
		}
	}
	p.table(rows)

	s := doc.Stats()
	p.printf("\n%d entries (%d enabled, %d disabled), %d other lines\n", s.Entries, s.Enabled, s.Disabled, s.Comments)
}
