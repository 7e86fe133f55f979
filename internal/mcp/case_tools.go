package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/lirads-audit-server/internal/domain"
	"github.com/lirads-audit-server/internal/export"
	"github.com/lirads-audit-server/internal/service"
	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

type classifyInput struct {
	Finding map[string]any `json:"finding" jsonschema:"finding DSL: arterial_phase.hyperenhancement, portal_phase.washout, delayed_phase.capsule, lesion_size_mm (0-500), cirrhosis, rim_aphe, peripheral_washout, delayed_central_enhancement, infiltrative, tumor_in_vein, ancillary_features"`
}

type extractInput struct {
	ClinicalData map[string]any `json:"clinical_data" jsonschema:"clinical form: cirrhosis flag plus lesions with size_mm, arterial_enhancement, washout, capsule, dwi_restriction, additional notes"`
}

type extractOutput struct {
	DSL       lirads.DSL            `json:"dsl"`
	RiskScore int                   `json:"risk_score"`
	Decision  lirads.DecisionResult `json:"decision"`
}

type verifyPackInput struct {
	Pack map[string]any `json:"pack" jsonschema:"audit pack JSON as exported by export_case or get_case"`
}

type analyzeInput struct {
	CaseID  string         `json:"case_id" jsonschema:"case identifier"`
	Finding map[string]any `json:"finding" jsonschema:"finding DSL, same shape as classify_lesion"`
}

type getCaseInput struct {
	CaseID  string `json:"case_id" jsonschema:"case identifier"`
	Version int    `json:"version,omitempty" jsonschema:"version to fetch; latest when omitted"`
}

type verifyCaseInput struct {
	CaseID    string `json:"case_id" jsonschema:"case identifier"`
	Signature string `json:"sig,omitempty" jsonschema:"signature from the verify link, compared with the stored one"`
}

type exportInput struct {
	CaseID string `json:"case_id" jsonschema:"case identifier"`
	Format string `json:"format,omitempty" jsonschema:"json, markdown or html (default json)"`
}

type exportOutput struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

func (s *LiteServer) registerCaseTools() {
	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "classify_lesion",
		Description: "Classify a liver observation with LI-RADS v2018. Returns category, label, rule and applied criteria. Nothing is stored.",
	}, s.handleClassify)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "extract_dsl",
		Description: "Convert clinical form data into the finding DSL of its highest-risk lesion and classify it. Nothing is stored.",
	}, s.handleExtract)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "verify_pack",
		Description: "Verify an audit pack: hashes, signature and schema. Returns VALID or TAMPERED with reasons.",
	}, s.handleVerifyPack)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "analyze_case",
		Description: "Classify a finding and store it as the next signed version of a case.",
	}, s.handleAnalyze)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "get_case",
		Description: "Fetch the latest or a specific version of a stored audit pack.",
	}, s.handleGetCase)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "verify_case",
		Description: "Re-verify the latest stored pack of a case, optionally checking a presented signature.",
	}, s.handleVerifyCase)

	sdkmcp.AddTool(s.mcpServer, &sdkmcp.Tool{
		Name:        "export_case",
		Description: "Write the latest pack of a case to the export directory as JSON, Markdown or HTML.",
	}, s.handleExport)
}

// decodeFinding round-trips loosely typed tool arguments through the DSL schema.
func decodeFinding(finding map[string]any) (lirads.DSL, error) {
	if finding == nil {
		return lirads.DSL{}, fmt.Errorf("finding is required")
	}
	raw, err := json.Marshal(finding)
	if err != nil {
		return lirads.DSL{}, fmt.Errorf("encoding finding: %w", err)
	}
	return lirads.DecodeDSL(raw)
}

func (s *LiteServer) handleClassify(ctx context.Context, _ *sdkmcp.CallToolRequest, in classifyInput) (*sdkmcp.CallToolResult, lirads.DecisionResult, error) {
	dsl, err := decodeFinding(in.Finding)
	if err != nil {
		return nil, lirads.DecisionResult{}, err
	}
	res := lirads.Classify(dsl)
	s.logger.WithFields(logrus.Fields{"category": res.Category, "rule": res.Rule}).Debug("Lesion classified")
	return nil, res, nil
}

func (s *LiteServer) handleExtract(ctx context.Context, _ *sdkmcp.CallToolRequest, in extractInput) (*sdkmcp.CallToolResult, extractOutput, error) {
	raw, err := json.Marshal(in.ClinicalData)
	if err != nil {
		return nil, extractOutput{}, fmt.Errorf("encoding clinical data: %w", err)
	}
	var cd domain.ClinicalData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, extractOutput{}, fmt.Errorf("decoding clinical data: %w", err)
	}
	dsl := lirads.ExtractDSL(cd)
	return nil, extractOutput{
		DSL:       dsl,
		RiskScore: lirads.RiskScore(dsl),
		Decision:  lirads.Classify(dsl),
	}, nil
}

func (s *LiteServer) handleVerifyPack(ctx context.Context, _ *sdkmcp.CallToolRequest, in verifyPackInput) (*sdkmcp.CallToolResult, auditpack.VerificationResult, error) {
	raw, err := json.Marshal(in.Pack)
	if err != nil {
		return nil, auditpack.VerificationResult{}, fmt.Errorf("encoding pack: %w", err)
	}
	p, fault := auditpack.ParsePack(raw)
	res := auditpack.Verify(s.secret, p)
	if fault != nil {
		s.logger.WithError(fault).Warn("Presented pack does not decode faithfully")
	}
	s.logger.WithFields(logrus.Fields{
		"case_id": p.CaseID,
		"version": p.Version,
		"status":  res.Status,
	}).Info("Pack verified")
	return nil, res, nil
}

func (s *LiteServer) handleAnalyze(ctx context.Context, _ *sdkmcp.CallToolRequest, in analyzeInput) (*sdkmcp.CallToolResult, auditpack.Pack, error) {
	dsl, err := decodeFinding(in.Finding)
	if err != nil {
		return nil, auditpack.Pack{}, err
	}
	p, err := s.cases.Analyze(ctx, in.CaseID, dsl)
	if err != nil {
		return nil, auditpack.Pack{}, err
	}
	return nil, *p, nil
}

func (s *LiteServer) handleGetCase(ctx context.Context, _ *sdkmcp.CallToolRequest, in getCaseInput) (*sdkmcp.CallToolResult, auditpack.Pack, error) {
	var (
		p   *auditpack.Pack
		err error
	)
	if in.Version > 0 {
		p, err = s.repo.Version(ctx, in.CaseID, in.Version)
	} else {
		p, err = s.cases.Get(ctx, in.CaseID)
	}
	if err != nil {
		return nil, auditpack.Pack{}, fmt.Errorf("case %q: %w", in.CaseID, err)
	}
	return nil, *p, nil
}

func (s *LiteServer) handleVerifyCase(ctx context.Context, _ *sdkmcp.CallToolRequest, in verifyCaseInput) (*sdkmcp.CallToolResult, service.VerifyResult, error) {
	res, err := s.cases.Verify(ctx, in.CaseID, in.Signature)
	if err != nil {
		return nil, service.VerifyResult{}, fmt.Errorf("case %q: %w", in.CaseID, err)
	}
	return nil, *res, nil
}

func (s *LiteServer) handleExport(ctx context.Context, _ *sdkmcp.CallToolRequest, in exportInput) (*sdkmcp.CallToolResult, exportOutput, error) {
	p, err := s.cases.Get(ctx, in.CaseID)
	if err != nil {
		return nil, exportOutput{}, fmt.Errorf("case %q: %w", in.CaseID, err)
	}

	var (
		buf bytes.Buffer
		ext string
	)
	switch in.Format {
	case "", "json":
		ext = "json"
		err = export.WriteJSON(&buf, p)
	case "markdown", "md":
		ext = "md"
		var md string
		md, err = export.Markdown(p)
		buf.WriteString(md)
	case "html":
		ext = "html"
		var html string
		html, err = export.HTML(p)
		buf.WriteString(html)
	default:
		return nil, exportOutput{}, fmt.Errorf("unsupported format %q", in.Format)
	}
	if err != nil {
		return nil, exportOutput{}, err
	}

	path := filepath.Join(s.config.ExportDir(), export.Filename(p.CaseID, ext))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, exportOutput{}, fmt.Errorf("writing export: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"case_id": p.CaseID, "path": path}).Info("Case exported")
	return nil, exportOutput{Path: path, Bytes: buf.Len()}, nil
}
