package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/version"
)

type rootFlags struct {
	configPath string
	dbPath     string
	server     string
}

// serviceConfig loads the service configuration with the --db override
// applied.
func (f *rootFlags) serviceConfig() (config.ServiceConfig, error) {
	cfg, err := config.LoadServiceConfig(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.dbPath != "" {
		cfg.Paths.Database = f.dbPath
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "walkpal-tools",
		Short:         "Walkpal maintenance tools",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "/etc/walkpal/walkpal.toml", "Service configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite journal path (overrides the configuration)")
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "Base URL of a running daemon")

	rootCmd.AddCommand(newReportCommand(flags))
	rootCmd.AddCommand(newReplayCommand())
	rootCmd.AddCommand(newMigrateCommand(flags))
	rootCmd.AddCommand(newSendCommand(flags))
	rootCmd.AddCommand(newStatusCommand(flags))

	return rootCmd
}
