package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gobwas/glob"
	"github.com/smallnest/taskhub/bus"
	"github.com/smallnest/taskhub/config"
	"github.com/smallnest/taskhub/cron"
	"github.com/smallnest/taskhub/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		pattern  string
		noSweep  bool
		sweepNow bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream task events and run the overdue sweep until interrupted",
		Long: `watch subscribes to the event bus and prints every task event.
When the scheduler is enabled it also runs the overdue sweep on its schedule.
Edits to the config file adjust the log level without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := glob.Compile(pattern, '.')
			if err != nil {
				return fmt.Errorf("invalid --events pattern %q: %w", pattern, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sub := a.bus.Subscribe()
			defer sub.Unsubscribe()

			if opts.cfg.Scheduler.Enabled && !noSweep {
				scheduler := cron.NewScheduler()
				sweeper := cron.NewOverdueSweeper(a.svc, a.bus, opts.cfg.Scheduler.SweepLimit)
				if err := scheduler.AddJob(sweeper.Job(opts.cfg.Scheduler.OverdueSweep)); err != nil {
					return fmt.Errorf("failed to schedule overdue sweep: %w", err)
				}
				if err := scheduler.Start(ctx); err != nil {
					return err
				}
				defer scheduler.Stop()
				if sweepNow {
					if err := scheduler.RunNow(ctx, cron.OverdueJobID); err != nil {
						logger.Warn("Initial overdue sweep failed", zap.Error(err))
					}
				}
			}

			if path := config.LoadedFrom(); path != "" {
				if _, err := os.Stat(path); err == nil {
					err := config.Watch(ctx, path, config.DefaultWatchDebounce, func(cfg *config.Config) {
						logger.SetLevel(cfg.Log.Level)
					})
					if err != nil {
						logger.Warn("Config hot reload disabled", zap.Error(err))
					}
				}
			}

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case evt, ok := <-sub.Events:
					if !ok {
						return nil
					}
					if !match.Match(evt.Name) {
						continue
					}
					if err := opts.printEvent(out, evt); err != nil {
						return err
					}
				}
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&pattern, "events", "task.*", "glob over event names, e.g. task.{assigned,overdue}")
	f.BoolVar(&noSweep, "no-sweep", false, "do not run the overdue sweep")
	f.BoolVar(&sweepNow, "sweep-now", false, "run one overdue sweep immediately")
	return cmd
}

// printEvent writes one line per event: JSON lines for -o json, a short
// summary otherwise.
func (o *rootOptions) printEvent(w io.Writer, evt *bus.Event) error {
	if o.output == "json" {
		data, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	actor := evt.ActorID
	if evt.IsSystemEvent() {
		actor = "system"
	}
	_, err := fmt.Fprintf(w, "%s  %-22s  %-10s  %s\n",
		evt.Timestamp.Format("15:04:05"), evt.Name, actor, strings.Join(evt.TaskIDs, ","))
	return err
}
