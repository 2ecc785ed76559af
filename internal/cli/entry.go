package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/hostkeep/internal/app"
	"github.com/dshills/hostkeep/internal/hosts"
	"github.com/dshills/hostkeep/internal/writer"
)

// ErrAmbiguous is returned when a name selects more than one entry.
var ErrAmbiguous = errors.New("ambiguous selector")

// resolve finds the entry a selector names: a line number or a hostname
// that appears exactly once.
func resolve(doc *hosts.Document, selector string) (hosts.Entry, error) {
	if n, err := strconv.Atoi(selector); err == nil {
		e, ok := doc.Entry(n)
		if !ok {
			return hosts.Entry{}, fmt.Errorf("%w: no entry on line %d", hosts.ErrNotFound, n)
		}
		return e, nil
	}

	found := doc.FindByName(selector)
	switch len(found) {
	case 0:
		return hosts.Entry{}, fmt.Errorf("%w: no entry named %q", hosts.ErrNotFound, selector)
	case 1:
		return found[0], nil
	default:
		lines := make([]string, len(found))
		for i, e := range found {
			lines[i] = strconv.Itoa(e.LineNumber)
		}
		return hosts.Entry{}, fmt.Errorf("%w: %q is on lines %s; use a line number", ErrAmbiguous, selector, strings.Join(lines, ", "))
	}
}

// mutation runs fn against the engine and reports the write.
func (r *Runner) mutation(ctx context.Context, a *app.Application, fn func(doc *hosts.Document) (writer.Result, error)) error {
	doc, err := a.Engine().Load(ctx)
	if err != nil {
		return err
	}

	var before string
	if a.DryRun() {
		if data, err := a.FS().ReadFile(a.HostsPath()); err == nil {
			before = string(data)
		}
	}

	res, err := fn(doc)
	if err != nil {
		return err
	}
	r.report(a, res, before)
	return nil
}

// report prints the outcome of a successful write, or the diff of a
// dry run.
func (r *Runner) report(a *app.Application, res writer.Result, before string) {
	p := newPrinter(r.Out)
	if a.DryRun() {
		p.diff(res.Path, before, res.Content)
		return
	}
	p.printf("updated %s\n", res.Path)
	if res.BackupPath != "" {
		p.printf("%s\n", p.dim.Sprintf("backup: %s", res.BackupPath))
	}
}

func (r *Runner) newAddCmd(flags *globalFlags) *cobra.Command {
	var (
		comment  string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add <address> <name> [alias...]",
		Short: "Add an entry",
		Args:  cobra.MinimumNArgs(2),
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, args []string) error {
			f := hosts.EntryFields{
				Address: args[0],
				Name:    args[1],
				Enabled: !disabled,
				Aliases: args[2:],
				Comment: comment,
			}
			return r.mutation(cmd.Context(), a, func(doc *hosts.Document) (writer.Result, error) {
				if existing := doc.FindByName(f.Name); len(existing) > 0 {
					a.Logger().Warn("%s already mapped on line %d", f.Name, existing[0].LineNumber)
				}
				return a.Engine().AddEntry(cmd.Context(), f)
			})
		}),
	}
	cmd.Flags().StringVar(&comment, "comment", "", "trailing comment")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add the entry commented out")
	return cmd
}

func (r *Runner) newUpdateCmd(flags *globalFlags) *cobra.Command {
	var (
		address string
		name    string
		aliases []string
		comment string
	)

	cmd := &cobra.Command{
		Use:   "update <line|name>",
		Short: "Change the fields of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, args []string) error {
			fs := cmd.Flags()
			if !fs.Changed("address") && !fs.Changed("name") && !fs.Changed("aliases") && !fs.Changed("comment") {
				return errors.New("nothing to update: set --address, --name, --aliases or --comment")
			}
			return r.mutation(cmd.Context(), a, func(doc *hosts.Document) (writer.Result, error) {
				e, err := resolve(doc, args[0])
				if err != nil {
					return writer.Result{}, err
				}
				if fs.Changed("address") {
					e.Address = address
				}
				if fs.Changed("name") {
					e.Name = name
				}
				if fs.Changed("aliases") {
					e.Aliases = aliases
				}
				if fs.Changed("comment") {
					e.Comment = comment
				}
				return a.Engine().UpdateEntry(cmd.Context(), e)
			})
		}),
	}
	cmd.Flags().StringVar(&address, "address", "", "new address")
	cmd.Flags().StringVar(&name, "name", "", "new primary name")
	cmd.Flags().StringSliceVar(&aliases, "aliases", nil, "new aliases, comma separated; empty clears them")
	cmd.Flags().StringVar(&comment, "comment", "", "new trailing comment; empty clears it")
	return cmd
}

func (r *Runner) newRemoveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <line|name>",
		Aliases: []string{"rm"},
		Short:   "Remove an entry",
		Args:    cobra.ExactArgs(1),
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, args []string) error {
			return r.mutation(cmd.Context(), a, func(doc *hosts.Document) (writer.Result, error) {
				e, err := resolve(doc, args[0])
				if err != nil {
					return writer.Result{}, err
				}
				return a.Engine().RemoveEntry(cmd.Context(), e.LineNumber)
			})
		}),
	}
}

// enableMode selects how the enable, disable and toggle commands change
// an entry.
type enableMode int

const (
	setOn enableMode = iota
	setOff
	setToggle
)

func (r *Runner) newSetEnabledCmd(flags *globalFlags, use, short string, mode enableMode) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <line|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, args []string) error {
			return r.mutation(cmd.Context(), a, func(doc *hosts.Document) (writer.Result, error) {
				e, err := resolve(doc, args[0])
				if err != nil {
					return writer.Result{}, err
				}
				switch mode {
				case setOn:
					return a.Engine().SetEnabled(cmd.Context(), e.LineNumber, true)
				case setOff:
					return a.Engine().SetEnabled(cmd.Context(), e.LineNumber, false)
				default:
					return a.Engine().ToggleEntry(cmd.Context(), e.LineNumber)
				}
			})
		}),
	}
}
