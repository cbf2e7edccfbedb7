package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/smallnest/taskhub/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				var err error
				if target, err = config.GetDefaultConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", target)
			}
			if err := config.Save(config.Default(), target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", target)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "where to write the file (default ~/.taskhub/config.json)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			return opts.render(cmd, cfg, func(w io.Writer) {
				fmt.Fprintf(w, "database.path\t%s\n", config.DatabasePath(cfg))
				fmt.Fprintf(w, "cache.backend\t%s\n", cfg.Cache.Backend)
				if cfg.Cache.Backend == "redis" {
					fmt.Fprintf(w, "cache.redis.addr\t%s\n", cfg.Cache.Redis.Addr)
				}
				fmt.Fprintf(w, "cache.default_ttl\t%s\n", cfg.Cache.DefaultTTL)
				fmt.Fprintf(w, "events.buffer_size\t%d\n", cfg.Events.BufferSize)
				fmt.Fprintf(w, "scheduler.enabled\t%t\n", cfg.Scheduler.Enabled)
				fmt.Fprintf(w, "scheduler.overdue_sweep\t%s\n", cfg.Scheduler.OverdueSweep)
				fmt.Fprintf(w, "service.operation_timeout\t%s\n", cfg.Service.OperationTimeout)
				fmt.Fprintf(w, "log.level\t%s\n", cfg.Log.Level)
			})
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
