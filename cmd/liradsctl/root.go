package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	output string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "liradsctl",
		Short:         "LI-RADS classification and audit pack tooling",
		Long:          "liradsctl runs the LI-RADS v2018 classifier on finding files,\nverifies signed audit packs and manages the audit database.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != "json" && opts.output != "yaml" {
				return fmt.Errorf("unsupported output format %q (want json or yaml)", opts.output)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "Output format: json or yaml")

	cmd.AddCommand(newClassifyCmd(opts))
	cmd.AddCommand(newExtractCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSetupCmd(opts))
	return cmd
}

// write renders v in the chosen format. YAML goes through the JSON form so
// both outputs share field names.
func (o *rootOptions) write(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if o.output == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// readInput reads the -f argument, with "-" meaning stdin.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
