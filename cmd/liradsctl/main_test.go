package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lirads-audit-server/pkg/auditpack"
	"github.com/lirads-audit-server/pkg/lirads"
)

const testSecret = "cli-test-secret"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func lr5DSL() lirads.DSL {
	return lirads.DSL{
		ArterialPhase: lirads.ArterialPhase{Hyperenhancement: true},
		PortalPhase:   lirads.PortalPhase{Washout: true},
		DelayedPhase:  lirads.DelayedPhase{Capsule: true},
		LesionSizeMM:  22,
		Cirrhosis:     true,
	}
}

func buildPack(t *testing.T, prev *auditpack.Pack) *auditpack.Pack {
	t.Helper()
	p, err := auditpack.Build([]byte(testSecret), auditpack.BuildRequest{
		CaseID:        "case-1",
		Content:       auditpack.NewContent(lr5DSL()),
		VerifyBaseURL: "https://audit.example.org",
		Previous:      prev,
		Clock:         fixedClock{time.Date(2026, 3, 14, 6, 26, 53, 0, time.UTC)},
	})
	require.NoError(t, err)
	return p
}

func TestClassify(t *testing.T) {
	path := writeFile(t, "dsl.json", lr5DSL())

	out, err := execute(t, "classify", "-f", path)
	require.NoError(t, err)

	var res lirads.DecisionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, lirads.LR5, res.Category)
}

func TestClassify_YAML(t *testing.T) {
	path := writeFile(t, "dsl.json", lr5DSL())

	out, err := execute(t, "classify", "-f", path, "--output", "yaml")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "LR-5", res["category"])
}

func TestClassify_RejectsInvalidDSL(t *testing.T) {
	path := writeFile(t, "dsl.json", map[string]any{"lesion_size_mm": 900})

	_, err := execute(t, "classify", "-f", path)
	require.Error(t, err)
	var schemaErr *lirads.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestUnknownOutputFormat(t *testing.T) {
	path := writeFile(t, "dsl.json", lr5DSL())
	_, err := execute(t, "classify", "-f", path, "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestExtract(t *testing.T) {
	path := writeFile(t, "clinical.json", map[string]any{
		"cirrhosis": true,
		"lesions": []map[string]any{
			{"size_mm": 24.6, "arterial_enhancement": "APHE", "washout": true, "capsule": true},
		},
	})

	out, err := execute(t, "extract", "-f", path)
	require.NoError(t, err)

	var res extractResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 25, res.DSL.LesionSizeMM)
	assert.Equal(t, lirads.LR5, res.Decision.Category)
}

func TestVerify(t *testing.T) {
	t.Setenv(secretEnv, testSecret)
	p := buildPack(t, nil)

	t.Run("valid", func(t *testing.T) {
		out, err := execute(t, "verify", "-f", writeFile(t, "pack.json", p))
		require.NoError(t, err)
		var res auditpack.VerificationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, auditpack.StatusValid, res.Status)
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := *p
		tampered.Content.DSL.LesionSizeMM = 9
		out, err := execute(t, "verify", "-f", writeFile(t, "pack.json", &tampered))
		assert.ErrorIs(t, err, errTampered)
		var res auditpack.VerificationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, auditpack.StatusTampered, res.Status)
		assert.NotEmpty(t, res.Reasons)
	})

	t.Run("extra field in dsl", func(t *testing.T) {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc))
		doc["content"].(map[string]any)["dsl"].(map[string]any)["portal_vein_invasion"] = true

		out, err := execute(t, "verify", "-f", writeFile(t, "pack.json", doc))
		assert.ErrorIs(t, err, errTampered)
		var res auditpack.VerificationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Contains(t, res.Reasons, auditpack.ReasonHashMismatch)
	})

	t.Run("wrong field type", func(t *testing.T) {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc))
		doc["signature"] = 123

		out, err := execute(t, "verify", "-f", writeFile(t, "pack.json", doc))
		assert.ErrorIs(t, err, errTampered)
		var res auditpack.VerificationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, auditpack.StatusTampered, res.Status)
	})

	t.Run("chain not an array", func(t *testing.T) {
		_, err := execute(t, "verify", "--chain", "-f", writeFile(t, "history.json", p))
		assert.ErrorIs(t, err, errTampered)
	})

	t.Run("chain", func(t *testing.T) {
		v2 := buildPack(t, p)
		_, err := execute(t, "verify", "--chain", "-f", writeFile(t, "history.json", []*auditpack.Pack{p, v2}))
		assert.NoError(t, err)
	})
}

func TestVerify_RequiresSecret(t *testing.T) {
	t.Setenv(secretEnv, "")
	_, err := execute(t, "verify", "-f", writeFile(t, "pack.json", buildPack(t, nil)))
	assert.ErrorIs(t, err, auditpack.ErrMissingSecret)
}

func TestSetup(t *testing.T) {
	t.Setenv(secretEnv, "desktop-secret")
	cfgPath := filepath.Join(t.TempDir(), "claude_desktop_config.json")
	binary := filepath.Join(t.TempDir(), "lirads-mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))

	out, err := execute(t, "setup", "claude-desktop", "--config", cfgPath, "--binary", binary)
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath)

	out, err = execute(t, "setup", "status", "--config", cfgPath)
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, true, st["configured"])
	assert.Equal(t, true, st["secret_configured"])
}
