package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_NewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Claude", "claude_desktop_config.json")
	bin := filepath.Join(dir, BinaryName)
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	written, err := Configure(Options{
		ConfigPath:  path,
		BinaryPath:  bin,
		DataDir:     "/var/lib/lirads",
		AuditSecret: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, path, written)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err)
	entry := cfg.MCPServers[ServerKey]
	assert.Equal(t, bin, entry.Command)
	assert.Equal(t, "/var/lib/lirads", entry.Env["LIRADS_DATA_DIR"])
	assert.Equal(t, "s3cret", entry.Env["LIRADS_AUDIT_SECRET"])

	st, err := GetStatus(path)
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.True(t, st.SecretWired)
	assert.Empty(t, st.Issues)
}

func TestConfigure_PreservesOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  "theme": "dark",
	  "mcpServers": {"other": {"command": "/usr/bin/other"}}
	}`), 0o644))

	_, err := Configure(Options{ConfigPath: path, BinaryPath: "/opt/lirads-mcp-server"})
	require.NoError(t, err)

	var raw map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "dark", raw["theme"])

	servers := raw["mcpServers"].(map[string]any)
	assert.Contains(t, servers, "other")
	assert.Contains(t, servers, ServerKey)
}

func TestGetStatus_NotRegistered(t *testing.T) {
	st, err := GetStatus(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, st.Configured)
	assert.Equal(t, []string{"server not registered"}, st.Issues)
}

func TestGetStatus_MissingBinaryAndSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := Configure(Options{ConfigPath: path, BinaryPath: "/nonexistent/lirads-mcp-server"})
	require.NoError(t, err)

	st, err := GetStatus(path)
	require.NoError(t, err)
	assert.True(t, st.Configured)
	assert.False(t, st.SecretWired)
	assert.Len(t, st.Issues, 2)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
