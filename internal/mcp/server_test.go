package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirads-audit-server/internal/config"
	"github.com/lirads-audit-server/pkg/auditpack"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var lr5Finding = map[string]any{
	"arterial_phase": map[string]any{"hyperenhancement": true},
	"portal_phase":   map[string]any{"washout": true},
	"delayed_phase":  map[string]any{"capsule": true},
	"lesion_size_mm": 25,
	"cirrhosis":      true,
}

func testLiteConfig(t *testing.T) *config.LiteConfig {
	t.Helper()
	return &config.LiteConfig{
		DataDir:       t.TempDir(),
		CacheMaxItems: 10,
		CacheTTL:      time.Minute,
		AuditSecret:   "mcp-test-secret",
		VerifyBaseURL: "https://audit.example.org",
		LogLevel:      "error",
		LogFormat:     "json",
	}
}

func newTestServer(t *testing.T, cfg *config.LiteConfig) *LiteServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	srv, err := NewLiteServer(cfg,
		WithLogger(logger),
		WithClock(fixedClock{time.Date(2026, 3, 14, 6, 26, 53, 0, time.UTC)}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func connect(t *testing.T, srv *LiteServer) (*sdkmcp.ClientSession, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	t1, t2 := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(ctx, t1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session, ctx
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	text := resultText(t, res)
	require.False(t, res.IsError, "%s failed: %s", name, text)
	require.NoError(t, json.Unmarshal([]byte(text), out), text)
}

func callToolError(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.True(t, res.IsError, "expected %s to fail", name)
	return resultText(t, res)
}

func resultText(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in tool result")
	return ""
}

func TestNewLiteServer_RequiresSecret(t *testing.T) {
	cfg := testLiteConfig(t)
	cfg.AuditSecret = ""
	_, err := NewLiteServer(cfg)
	assert.ErrorIs(t, err, auditpack.ErrMissingSecret)
}

func TestNewLiteServer_CreatesDataFiles(t *testing.T) {
	cfg := testLiteConfig(t)
	newTestServer(t, cfg)

	assert.FileExists(t, cfg.PacksDBPath())
	assert.FileExists(t, cfg.SecondReadingsDBPath())
	assert.DirExists(t, cfg.ExportDir())
}

func TestListTools(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.Subset(t, names, []string{
		"classify_lesion", "extract_dsl", "verify_pack", "analyze_case", "get_case",
		"verify_case", "export_case", "request_second_reading", "complete_second_reading",
		"list_second_readings", "export_second_readings", "import_second_readings",
	})
}

func TestClassifyLesion(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	var out struct {
		Category string `json:"category"`
		Label    string `json:"label"`
	}
	callTool(t, ctx, session, "classify_lesion", map[string]any{"finding": lr5Finding}, &out)
	assert.Equal(t, "LR-5", out.Category)
	assert.Equal(t, "LR-5 (Definite HCC)", out.Label)

	var empty struct {
		Category string `json:"category"`
	}
	callTool(t, ctx, session, "classify_lesion", map[string]any{"finding": map[string]any{}}, &empty)
	assert.Equal(t, "LR-2", empty.Category)

	msg := callToolError(t, ctx, session, "classify_lesion", map[string]any{
		"finding": map[string]any{"lesion_size_mm": 900},
	})
	assert.Contains(t, msg, "lesion_size_mm")
}

func TestExtractDSL(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	var out extractOutput
	callTool(t, ctx, session, "extract_dsl", map[string]any{
		"clinical_data": map[string]any{
			"cirrhosis": "true",
			"lesions": []any{
				map[string]any{"size_mm": "8"},
				map[string]any{"size_mm": "22", "arterial_enhancement": "rim", "tumor_in_vein": true},
			},
		},
	}, &out)
	assert.True(t, out.DSL.TumorInVein)
	assert.True(t, out.DSL.RimAPHE)
	assert.Equal(t, 22, out.DSL.LesionSizeMM)
	assert.Equal(t, "LR-TIV", string(out.Decision.Category))
}

func TestAnalyzeGetVerify(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	var v1 auditpack.Pack
	callTool(t, ctx, session, "analyze_case", map[string]any{"case_id": "mcp-1", "finding": lr5Finding}, &v1)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, "2026-03-14T06:26:53Z", v1.GeneratedAt)

	var v2 auditpack.Pack
	callTool(t, ctx, session, "analyze_case", map[string]any{
		"case_id": "mcp-1",
		"finding": map[string]any{"lesion_size_mm": 9},
	}, &v2)
	assert.Equal(t, 2, v2.Version)

	var got auditpack.Pack
	callTool(t, ctx, session, "get_case", map[string]any{"case_id": "mcp-1", "version": 1}, &got)
	assert.Equal(t, v1.Signature, got.Signature)

	callTool(t, ctx, session, "get_case", map[string]any{"case_id": "mcp-1"}, &got)
	assert.Equal(t, 2, got.Version)

	var verified struct {
		Status   string `json:"status"`
		SigMatch *bool  `json:"sig_match"`
	}
	callTool(t, ctx, session, "verify_case", map[string]any{"case_id": "mcp-1", "sig": v2.Signature}, &verified)
	assert.Equal(t, "VALID", verified.Status)
	require.NotNil(t, verified.SigMatch)
	assert.True(t, *verified.SigMatch)

	callToolError(t, ctx, session, "get_case", map[string]any{"case_id": "missing"})
}

func TestVerifyPack(t *testing.T) {
	session, ctx := connect(t, newTestServer(t, testLiteConfig(t)))

	var p auditpack.Pack
	callTool(t, ctx, session, "analyze_case", map[string]any{"case_id": "mcp-v", "finding": lr5Finding}, &p)

	asMap := func(p auditpack.Pack) map[string]any {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	}

	var res auditpack.VerificationResult
	callTool(t, ctx, session, "verify_pack", map[string]any{"pack": asMap(p)}, &res)
	assert.Equal(t, auditpack.StatusValid, res.Status)

	tampered := p
	tampered.Content.DSL.LesionSizeMM = 9
	callTool(t, ctx, session, "verify_pack", map[string]any{"pack": asMap(tampered)}, &res)
	assert.Equal(t, auditpack.StatusTampered, res.Status)
	assert.NotEmpty(t, res.Reasons)

	recased := asMap(p)
	content := recased["content"].(map[string]any)
	content["Decision"] = content["decision"]
	content["decision"] = "LR-2 (Probably benign)"
	var shadowed auditpack.VerificationResult
	callTool(t, ctx, session, "verify_pack", map[string]any{"pack": recased}, &shadowed)
	assert.Equal(t, auditpack.StatusTampered, shadowed.Status)
	assert.Contains(t, shadowed.Reasons, auditpack.ReasonHashMismatch)

	wrongType := asMap(p)
	wrongType["version"] = "2"
	var typed auditpack.VerificationResult
	callTool(t, ctx, session, "verify_pack", map[string]any{"pack": wrongType}, &typed)
	assert.Equal(t, auditpack.StatusTampered, typed.Status)
}

func TestExportCase(t *testing.T) {
	cfg := testLiteConfig(t)
	session, ctx := connect(t, newTestServer(t, cfg))

	var p auditpack.Pack
	callTool(t, ctx, session, "analyze_case", map[string]any{"case_id": "mcp-e", "finding": lr5Finding}, &p)

	var out exportOutput
	callTool(t, ctx, session, "export_case", map[string]any{"case_id": "mcp-e", "format": "markdown"}, &out)
	assert.Equal(t, filepath.Join(cfg.ExportDir(), "mcp-e.md"), out.Path)
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Radiology Audit Pack")
	assert.Equal(t, len(data), out.Bytes)

	callToolError(t, ctx, session, "export_case", map[string]any{"case_id": "mcp-e", "format": "docx"})
}

func TestSecondReadingTools(t *testing.T) {
	cfg := testLiteConfig(t)
	session, ctx := connect(t, newTestServer(t, cfg))

	var p auditpack.Pack
	callTool(t, ctx, session, "analyze_case", map[string]any{"case_id": "mcp-r", "finding": lr5Finding}, &p)

	var r readingView
	callTool(t, ctx, session, "request_second_reading", map[string]any{"case_id": "mcp-r", "reader_username": "dr.mori"}, &r)
	assert.Equal(t, "pending", r.Status)
	assert.Equal(t, "LR-5", r.OriginalCategory)

	callToolError(t, ctx, session, "request_second_reading", map[string]any{"case_id": "mcp-r", "reader_username": "dr.mori"})

	var done readingView
	callTool(t, ctx, session, "complete_second_reading", map[string]any{"id": r.ID, "agreement": "agree"}, &done)
	assert.Equal(t, "completed", done.Status)
	assert.NotEmpty(t, done.CompletedAt)

	var list listReadingsOutput
	callTool(t, ctx, session, "list_second_readings", map[string]any{"case_id": "mcp-r"}, &list)
	assert.Equal(t, int64(1), list.Total)

	var exported exportReadingsOutput
	callTool(t, ctx, session, "export_second_readings", map[string]any{}, &exported)
	assert.Equal(t, int64(1), exported.Count)
	assert.FileExists(t, exported.Path)

	var imported importReadingsOutput
	callTool(t, ctx, session, "import_second_readings", map[string]any{"file": filepath.Base(exported.Path)}, &imported)
	assert.Equal(t, 0, imported.Imported)
	assert.Equal(t, 1, imported.Skipped)
}
