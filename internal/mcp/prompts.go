package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const structuredReportPrompt = "structured_liver_report"

func (s *LiteServer) registerPrompts() {
	s.mcpServer.AddPrompt(&sdkmcp.Prompt{
		Name:        structuredReportPrompt,
		Description: "Guide the drafting of a liver MRI/CT report whose findings can be stored as a signed audit pack.",
		Arguments: []*sdkmcp.PromptArgument{
			{Name: "case_id", Description: "case identifier to store the report under", Required: true},
			{Name: "modality", Description: "MRI or CT (default MRI)"},
			{Name: "language", Description: "report language (default English)"},
		},
	}, s.getReportPrompt)
}

func (s *LiteServer) getReportPrompt(ctx context.Context, req *sdkmcp.GetPromptRequest) (*sdkmcp.GetPromptResult, error) {
	args := req.Params.Arguments
	caseID := strings.TrimSpace(args["case_id"])
	if caseID == "" {
		return nil, fmt.Errorf("case_id is required")
	}
	modality := args["modality"]
	if modality == "" {
		modality = "MRI"
	}
	language := args["language"]
	if language == "" {
		language = "English"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are drafting a %s liver report for case %s in %s.\n\n", modality, caseID, language)
	b.WriteString("1. For each observation record size in mm, arterial phase enhancement (non-rim APHE, rim APHE or none), ")
	b.WriteString("washout, enhancing capsule, tumor in vein and any ancillary features.\n")
	b.WriteString("2. Pick the highest-risk observation and express it as a finding DSL ")
	fmt.Fprintf(&b, "(see resource %s).\n", schemaURI)
	b.WriteString("3. Call classify_lesion to preview the category, then analyze_case to store the signed version.\n")
	b.WriteString("4. Quote the returned category label and verify_url in the impression. Do not invent a category ")
	b.WriteString("that the classifier did not return.\n")

	return &sdkmcp.GetPromptResult{
		Description: "Structured liver report for " + caseID,
		Messages: []*sdkmcp.PromptMessage{
			{Role: "user", Content: &sdkmcp.TextContent{Text: b.String()}},
		},
	}, nil
}
