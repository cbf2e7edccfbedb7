package cli

import (
	"fmt"
	"os"

	"github.com/smallnest/taskhub/config"
	"github.com/smallnest/taskhub/internal/logger"
	"github.com/spf13/cobra"
)

// version is the application version.
var version = "0.1.0"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	as         string
	role       string
	output     string

	cfg *config.Config
}

// Execute builds the command tree and runs it. Called by main.main().
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "taskhub",
		Short:   "Task tracking with cached queries and an audit trail",
		Version: version,
		Long: `taskhub manages project tasks from the command line: create, filter,
assign and track tasks; every change is recorded in an activity log and
announced on the event bus.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default is ./.taskhub/config.json or ~/.taskhub/config.json)")
	flags.StringVar(&opts.as, "as", os.Getenv("TASKHUB_USER"), "acting user id")
	flags.StringVar(&opts.role, "role", "", "act with a lower role than the stored one, e.g. admin acting as developer")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format: table, json or yaml")

	cmd.AddCommand(
		newTaskCmd(opts),
		newUserCmd(opts),
		newProjectCmd(opts),
		newConfigCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

func (o *rootOptions) init() error {
	switch o.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	o.cfg = cfg
	return nil
}

// open builds the app for one command run; callers must Close it.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	return newApp(cmd.Context(), o.cfg)
}
