package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/pkg/lirads"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a finding DSL file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			dsl, err := lirads.DecodeDSL(data)
			if err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), lirads.Classify(dsl))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Finding DSL JSON file (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type extractResult struct {
	DSL       lirads.DSL            `json:"dsl"`
	RiskScore int                   `json:"risk_score"`
	Decision  lirads.DecisionResult `json:"decision"`
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Derive a finding DSL from extracted clinical data and classify it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var cd domain.ClinicalData
			if err := json.Unmarshal(data, &cd); err != nil {
				return fmt.Errorf("decode clinical data: %w", err)
			}
			dsl := lirads.ExtractDSL(cd)
			return opts.write(cmd.OutOrStdout(), extractResult{
				DSL:       dsl,
				RiskScore: lirads.RiskScore(dsl),
				Decision:  lirads.Classify(dsl),
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Clinical data JSON file (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
