package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lirads-audit-server/internal/setup"
)

func newSetupCmd(opts *rootOptions) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Client config file (default: platform location)")

	var (
		binary  string
		dataDir string
	)
	configure := &cobra.Command{
		Use:   "claude-desktop",
		Short: "Add or update the server entry in the desktop client config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := setup.Configure(setup.Options{
				ConfigPath:  configPath,
				BinaryPath:  binary,
				DataDir:     dataDir,
				AuditSecret: os.Getenv(secretEnv),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", setup.ServerKey, path)
			fmt.Fprintln(cmd.OutOrStdout(), "Restart the client to load the server.")
			return nil
		},
	}
	configure.Flags().StringVar(&binary, "binary", "", "Path to "+setup.BinaryName+" (default: search PATH)")
	configure.Flags().StringVar(&dataDir, "data-dir", "", "Data directory passed as LIRADS_DATA_DIR")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is registered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := setup.GetStatus(configPath)
			if err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), st)
		},
	}

	cmd.AddCommand(configure, status)
	return cmd
}
