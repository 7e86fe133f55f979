package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lirads-audit-server/internal/service"
	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

const (
	rulesURI   = "lirads://rules"
	schemaURI  = "lirads://schema/finding-dsl"
	schemasURI = "lirads://schema/audit-pack-versions"

	checklistsURI = "lirads://checklists"
)

type ruleInfo struct {
	Order    int    `json:"order"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Label    string `json:"label"`
}

func (s *LiteServer) registerResources() {
	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         rulesURI,
		Name:        "lirads-rules",
		Description: "LI-RADS v2018 decision cascade in evaluation order; the first matching rule wins.",
		MIMEType:    "application/json",
	}, s.readRules)

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         schemaURI,
		Name:        "finding-dsl-schema",
		Description: "JSON Schema accepted by classify_lesion and analyze_case.",
		MIMEType:    "application/schema+json",
	}, s.readDSLSchema)

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         schemasURI,
		Name:        "audit-pack-schemas",
		Description: "Audit pack schema versions accepted by verify_pack.",
		MIMEType:    "application/json",
	}, s.readPackSchemas)

	s.mcpServer.AddResource(&sdkmcp.Resource{
		URI:         checklistsURI,
		Name:        "review-checklists",
		Description: "Systematic review checklists keyed by body region. Unknown regions use the abdomen list.",
		MIMEType:    "application/json",
	}, s.readChecklists)
}

func jsonResource(uri string, v any) (*sdkmcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{{URI: uri, MIMEType: "application/json", Text: string(data)}},
	}, nil
}

func (s *LiteServer) readRules(ctx context.Context, _ *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	rules := lirads.Rules()
	out := make([]ruleInfo, 0, len(rules))
	for i, r := range rules {
		out = append(out, ruleInfo{Order: i + 1, Name: r.Name, Category: string(r.Category), Label: r.Category.Label()})
	}
	return jsonResource(rulesURI, map[string]any{
		"version":  "v2018",
		"rules":    out,
		"fallback": string(lirads.LR2),
	})
}

func (s *LiteServer) readDSLSchema(ctx context.Context, _ *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	return &sdkmcp.ReadResourceResult{
		Contents: []*sdkmcp.ResourceContents{{URI: schemaURI, MIMEType: "application/schema+json", Text: lirads.DSLSchema}},
	}, nil
}

func (s *LiteServer) readPackSchemas(ctx context.Context, _ *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	return jsonResource(schemasURI, map[string]any{
		"current":   auditpack.CurrentSchema,
		"supported": auditpack.SupportedSchemas(),
	})
}

func (s *LiteServer) readChecklists(ctx context.Context, _ *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
	regions := service.ChecklistRegions()
	out := make(map[string]service.Checklist, len(regions))
	for _, r := range regions {
		out[r] = service.GetChecklist(r)
	}
	return jsonResource(checklistsURI, map[string]any{
		"default":    service.DefaultChecklistRegion,
		"checklists": out,
	})
}
