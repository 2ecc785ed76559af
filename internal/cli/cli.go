// Package cli implements the hostkeep command tree on top of
// internal/app.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/hostkeep/internal/app"
)

// Runner builds and executes the command tree.
type Runner struct {
	Out io.Writer
	Err io.Writer

	// Build information shown by the version command.
	Version string
	Commit  string
	Date    string

	// Base is copied into every Application before flags are applied.
	Base app.Options
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	hostsPath  string
	logLevel   string
	elevate    bool
	noBackup   bool
	dryRun     bool
}

// Execute runs the command line in args and returns the process exit code.
func (r *Runner) Execute(ctx context.Context, args []string) int {
	if r.Out == nil {
		r.Out = os.Stdout
	}
	if r.Err == nil {
		r.Err = os.Stderr
	}

	var flags globalFlags
	rootCmd := r.newRootCmd(&flags)
	rootCmd.AddCommand(
		r.newListCmd(&flags),
		r.newAddCmd(&flags),
		r.newUpdateCmd(&flags),
		r.newRemoveCmd(&flags),
		r.newSetEnabledCmd(&flags, "enable", "Enable an entry", setOn),
		r.newSetEnabledCmd(&flags, "disable", "Disable an entry", setOff),
		r.newSetEnabledCmd(&flags, "toggle", "Flip an entry between enabled and disabled", setToggle),
		r.newWatchCmd(&flags),
		r.newBackupCmd(&flags),
		r.newConfigCmd(&flags),
		r.newVersionCmd(),
	)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(r.Out)
	rootCmd.SetErr(r.Err)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(r.Err, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (r *Runner) newRootCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostkeep",
		Short: "Inspect and edit the system hosts file",
		Long: `hostkeep reads, edits and watches the system hosts file.

Edits are written atomically and a timestamped backup of the previous
content is kept next to the file. Comments, blank lines and unrecognised
lines are preserved exactly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.DisableAutoGenTag = true

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "configuration file (default $HOSTKEEP_CONFIG or the user config dir)")
	pf.StringVar(&flags.hostsPath, "hosts", "", "hosts file to manage (default from config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.elevate, "elevate", false, "write through the configured privilege command")
	pf.BoolVar(&flags.noBackup, "no-backup", false, "skip the backup before writing")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "show the resulting changes without writing")
	return cmd
}

// withApp builds the Application for one command invocation and shuts it
// down when fn returns.
func (r *Runner) withApp(flags *globalFlags, fn func(cmd *cobra.Command, a *app.Application, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		opts := r.Base
		opts.ConfigPath = flags.configPath
		opts.HostsPath = flags.hostsPath
		opts.LogLevel = flags.logLevel
		opts.Elevate = flags.elevate
		opts.NoBackup = flags.noBackup
		opts.DryRun = flags.dryRun
		if opts.LogOutput == nil {
			opts.LogOutput = r.Err
		}

		a, err := app.New(opts)
		if err != nil {
			return err
		}
		defer a.Shutdown()
		return fn(cmd, a, args)
	}
}

func (r *Runner) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(r.Out, "hostkeep %s\n", valueOr(r.Version, "dev"))
			fmt.Fprintf(r.Out, "Commit: %s\n", valueOr(r.Commit, "unknown"))
			fmt.Fprintf(r.Out, "Built: %s\n", valueOr(r.Date, "unknown"))
		},
	}
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
