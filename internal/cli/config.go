package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/hostkeep/internal/app"
	"github.com/dshills/hostkeep/internal/config"
)

func (r *Runner) newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: r.withApp(flags, func(_ *cobra.Command, a *app.Application, _ []string) error {
			return config.Encode(r.Out, a.Config())
		}),
	})
	return cmd
}
