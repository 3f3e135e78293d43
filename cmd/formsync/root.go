package main

import (
	"github.com/goliatone/go-formsync/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

const envPrefix = "FORMSYNC_"

// rootOptions holds global flags. Flags win over FORMSYNC_* variables.
type rootOptions struct {
	driver string
	dsn    string
	debug  bool

	config         core.Config
	loggerProvider glog.LoggerProvider
	logger         glog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "formsync",
		Short:         "Form builder backed by an external record store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "database driver (sqlite3|postgres)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database connection string")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log SQL queries")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	runtime := core.Config{
		Database: core.DatabaseConfig{
			Driver: o.driver,
			DSN:    o.dsn,
			Debug:  o.debug,
		},
	}
	cfg, err := core.ResolveConfig(cmd.Context(), envConfigLoader{prefix: envPrefix}, runtime)
	if err != nil {
		return err
	}
	o.config = cfg
	o.loggerProvider, o.logger = glog.Resolve(cfg.ServiceName, nil, nil)
	o.logger = glog.Ensure(o.logger)
	return nil
}
