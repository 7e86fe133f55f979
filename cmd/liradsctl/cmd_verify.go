package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lirads-audit-server/pkg/auditpack"
)

const secretEnv = "LIRADS_AUDIT_SECRET"

// errTampered makes the process exit 1 after the report is printed.
var errTampered = errors.New("audit pack is TAMPERED")

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		file  string
		chain bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an audit pack, or a version history with --chain",
		Long: "Verify recomputes the canonical hashes and HMAC signature of an audit pack.\n" +
			"The signing secret is read from " + secretEnv + ". The command exits 1 when\nthe pack is TAMPERED.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv(secretEnv)
			if secret == "" {
				return fmt.Errorf("%s is not set: %w", secretEnv, auditpack.ErrMissingSecret)
			}
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			if chain {
				res := verifyHistory([]byte(secret), data)
				if err := opts.write(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if res.Status != auditpack.StatusValid {
					return errTampered
				}
				return nil
			}

			res := auditpack.VerifyJSON([]byte(secret), data)
			if err := opts.write(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid() {
				return errTampered
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Audit pack JSON file (- for stdin)")
	cmd.Flags().BoolVar(&chain, "chain", false, "Treat the file as a JSON array of versions and verify the hash chain")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// verifyHistory verifies a JSON array of pack versions. A document that is
// not an array verifies as a TAMPERED empty chain.
func verifyHistory(secret, data []byte) auditpack.ChainResult {
	var docs []json.RawMessage
	if err := json.Unmarshal(data, &docs); err != nil || len(docs) == 0 {
		return auditpack.ChainResult{
			Status:   auditpack.StatusTampered,
			Reasons:  []auditpack.Reason{auditpack.ReasonHashMismatch},
			Versions: []auditpack.VersionResult{},
		}
	}
	history := make([]*auditpack.Pack, len(docs))
	for i, doc := range docs {
		history[i], _ = auditpack.ParsePack(doc)
	}
	return auditpack.VerifyChain(secret, history)
}
