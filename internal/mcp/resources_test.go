package mcp

import (
	"encoding/json"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirads-audit-server/internal/service"
	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

func TestRulesResource(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	res, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: rulesURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	var body struct {
		Rules    []ruleInfo `json:"rules"`
		Fallback string     `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &body))
	assert.Equal(t, string(lirads.LR2), body.Fallback)
	require.Len(t, body.Rules, len(lirads.Rules()))
	assert.Equal(t, 1, body.Rules[0].Order)
	assert.Equal(t, string(lirads.Rules()[0].Category), body.Rules[0].Category)
}

func TestSchemaResources(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	res, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: schemaURI})
	require.NoError(t, err)
	assert.Equal(t, "application/schema+json", res.Contents[0].MIMEType)
	assert.JSONEq(t, lirads.DSLSchema, res.Contents[0].Text)

	res, err = session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: schemasURI})
	require.NoError(t, err)
	var body struct {
		Current   string   `json:"current"`
		Supported []string `json:"supported"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &body))
	assert.Equal(t, auditpack.CurrentSchema, body.Current)
	assert.Contains(t, body.Supported, auditpack.CurrentSchema)
}

func TestChecklistsResource(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	res, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: checklistsURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	var body struct {
		Default    string                       `json:"default"`
		Checklists map[string]service.Checklist `json:"checklists"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &body))
	assert.Equal(t, "abdomen", body.Default)
	assert.Len(t, body.Checklists, len(service.ChecklistRegions()))
	assert.Equal(t, service.GetChecklist("pelvis"), body.Checklists["pelvis"])
}

func TestReportPrompt(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	res, err := session.GetPrompt(ctx, &sdkmcp.GetPromptParams{
		Name:      structuredReportPrompt,
		Arguments: map[string]string{"case_id": "case-9", "modality": "CT"},
	})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text, ok := res.Messages[0].Content.(*sdkmcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "CT liver report for case case-9")
	assert.Contains(t, text.Text, schemaURI)

	_, err = session.GetPrompt(ctx, &sdkmcp.GetPromptParams{Name: structuredReportPrompt, Arguments: map[string]string{}})
	assert.Error(t, err)
}

func TestAuditMiddleware_LogsToolCalls(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	srv, err := NewLiteServer(testLiteConfig(t),
		WithLogger(logger),
		WithClock(fixedClock{time.Date(2026, 3, 14, 6, 26, 53, 0, time.UTC)}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	session, ctx := connect(t, srv)

	var out map[string]any
	callTool(t, ctx, session, "classify_lesion", map[string]any{"finding": lr5Finding}, &out)
	callToolError(t, ctx, session, "get_case", map[string]any{"case_id": "missing"})

	var handled, failed *logrus.Entry
	for _, e := range hook.AllEntries() {
		switch e.Message {
		case "MCP request handled":
			if e.Data["tool"] == "classify_lesion" {
				handled = e
			}
		case "MCP tool returned an error":
			if e.Data["tool"] == "get_case" {
				failed = e
			}
		}
	}
	require.NotNil(t, handled)
	require.NotNil(t, failed)
	assert.NotEmpty(t, handled.Data["correlation_id"])
	assert.Contains(t, handled.Data, "duration_ms")
	assert.NotContains(t, handled.Data, "finding")
}
