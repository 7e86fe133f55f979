package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lirads-audit-server/internal/config"
	"github.com/lirads-audit-server/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var (
		configPath string
		dbURL      string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL audit schema",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config-dir", "", "Directory holding config.yaml")
	cmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "postgres:// URL; overrides the configuration")

	open := func() (*database.MigrationRunner, error) {
		logger := logrus.New()
		logger.SetOutput(os.Stderr)

		var opts []config.Option
		if configPath != "" {
			opts = append(opts, config.WithConfigPaths(configPath))
		}
		m, err := config.NewManager(opts...)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		url := dbURL
		if url == "" {
			if m.GetConfig().Database.Driver != "postgres" {
				return nil, fmt.Errorf("migrations apply to the postgres driver only (configured: %s)", m.GetConfig().Database.Driver)
			}
			url = m.GetDatabaseURL()
		}
		return database.NewMigrationRunner(url, m.GetConfig().Database.MigrationsPath, logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := open()
			if err != nil {
				return err
			}
			defer runner.Close()
			return runner.Up(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := open()
			if err != nil {
				return err
			}
			defer runner.Close()
			return runner.Down(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := open()
			if err != nil {
				return err
			}
			defer runner.Close()
			v, dirty, err := runner.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty: %t\n", v, dirty)
			return nil
		},
	})
	return cmd
}
