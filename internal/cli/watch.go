package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/hostkeep/internal/app"
	"github.com/dshills/hostkeep/internal/engine"
)

func (r *Runner) newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow changes to the hosts file until interrupted",
		Args:  cobra.NoArgs,
		RunE: r.withApp(flags, func(cmd *cobra.Command, a *app.Application, _ []string) error {
			// Shutdown delivers queued events before the command returns.
			p := newPrinter(r.Out)
			a.Engine().Subscribe(func(ev engine.Event) {
				r.printEvent(p, ev)
			})

			if _, err := a.Engine().Load(cmd.Context()); err != nil {
				return err
			}
			if !a.Engine().StartWatching() {
				return fmt.Errorf("cannot watch %s", a.HostsPath())
			}
			a.Logger().Info("watching %s", a.HostsPath())

			<-cmd.Context().Done()
			a.Engine().StopWatching()
			return nil
		}),
	}
}

func (r *Runner) printEvent(p *printer, ev engine.Event) {
	stamp := p.dim.Sprint(time.Now().Format(time.TimeOnly))
	switch ev.Kind {
	case engine.KindChanged:
		s := ev.Document.Stats()
		p.printf("%s %s %d entries (%d enabled, %d disabled)\n",
			stamp, p.enabled.Sprint(ev.Kind), s.Entries, s.Enabled, s.Disabled)
	case engine.KindWriteSucceeded:
		p.printf("%s %s %s\n", stamp, p.enabled.Sprint(ev.Kind), ev.Result.Path)
	case engine.KindWriteFailed, engine.KindWatchError:
		p.printf("%s %s %v\n", stamp, p.failed.Sprint(ev.Kind), ev.Err)
	}
}
