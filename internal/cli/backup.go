package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/hostkeep/internal/app"
)

func (r *Runner) newBackupCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage hosts file backups",
	}
	cmd.AddCommand(
		r.newBackupListCmd(flags),
		r.newBackupPruneCmd(flags),
		r.newBackupRestoreCmd(flags),
	)
	return cmd
}

func (r *Runner) newBackupListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: r.withApp(flags, func(_ *cobra.Command, a *app.Application, _ []string) error {
			backups, err := a.Backups().List(a.HostsPath())
			if err != nil {
				return err
			}
			p := newPrinter(r.Out)
			if len(backups) == 0 {
				p.printf("no backups of %s\n", a.HostsPath())
				return nil
			}
			rows := [][]cell{{
				{text: "NAME", color: p.header},
				{text: "TAKEN", color: p.header},
				{text: "SIZE", color: p.header},
			}}
			for _, b := range backups {
				rows = append(rows, []cell{
					{text: b.Name},
					{text: b.Taken.Local().Format(time.DateTime)},
					{text: strconv.FormatInt(b.Size, 10)},
				})
			}
			p.table(rows)
			return nil
		}),
	}
}

func (r *Runner) newBackupPruneCmd(flags *globalFlags) *cobra.Command {
	var (
		maxCount int
		maxAge   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete backups beyond the retention policy",
		Args:  cobra.NoArgs,
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, _ []string) error {
			policy := a.Policy()
			if cmd.Flags().Changed("max-count") {
				policy.MaxCount = maxCount
			}
			if cmd.Flags().Changed("max-age") {
				policy.MaxAge = maxAge
			}

			removed, err := a.Backups().Prune(cmd.Context(), a.HostsPath(), policy)
			p := newPrinter(r.Out)
			for _, b := range removed {
				p.printf("removed %s\n", b.Name)
			}
			if err != nil {
				return err
			}
			p.printf("%d backups removed\n", len(removed))
			return nil
		}),
	}
	cmd.Flags().IntVar(&maxCount, "max-count", 0, "keep at most this many backups (0 keeps all)")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "delete backups older than this (0 keeps all)")
	return cmd
}

func (r *Runner) newBackupRestoreCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name>",
		Short: "Write a backup back to the hosts file",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, args []string) error {
			var before string
			if a.DryRun() {
				if data, err := a.FS().ReadFile(a.HostsPath()); err == nil {
					before = string(data)
				}
			}
			res, err := a.Backups().Restore(cmd.Context(), a.HostsPath(), args[0], a.WriteOptions())
			if err != nil {
				return err
			}
			r.report(a, res, before)
			return nil
		}),
	}
}
