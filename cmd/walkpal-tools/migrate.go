package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/walkpal/internal/db"
)

func newMigrateCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the journal schema",
	}

	open := func() (*db.DB, error) {
		cfg, err := flags.serviceConfig()
		if err != nil {
			return nil, err
		}
		return db.OpenDB(cfg.Paths.Database)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := open()
			if err != nil {
				return err
			}
			defer journal.Close()
			if err := journal.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, journal)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := open()
			if err != nil {
				return err
			}
			defer journal.Close()
			if err := journal.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, journal)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := open()
			if err != nil {
				return err
			}
			defer journal.Close()
			return printVersion(cmd, journal)
		},
	})

	return cmd
}

func printVersion(cmd *cobra.Command, journal *db.DB) error {
	version, dirty, err := journal.MigrateVersion()
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
