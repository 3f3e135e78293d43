package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := openDatabase(cmd.Context(), opts.config.Database, true)
			if err != nil {
				return err
			}
			defer client.Close()
			opts.logger.Info("migrations applied", "driver", opts.config.Database.Driver)
			return nil
		},
	}
}
