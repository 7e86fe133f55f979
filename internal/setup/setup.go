// Package setup registers the MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerKey is the entry name written to the client configuration.
const ServerKey = "lirads-audit"

// BinaryName is the MCP server executable looked up on PATH.
const BinaryName = "lirads-mcp-server"

// DesktopConfig is the client configuration file. Fields other than
// mcpServers are preserved on rewrite.
type DesktopConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// ServerEntry launches one MCP server.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options controls Configure.
type Options struct {
	// ConfigPath overrides the platform default location.
	ConfigPath string
	BinaryPath string
	DataDir    string
	// AuditSecret is written into the entry environment when set.
	AuditSecret string
}

// DefaultConfigPath returns the desktop client config location for this OS.
func DefaultConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// Load reads a config file. A missing file yields an empty config.
func Load(path string) (*DesktopConfig, error) {
	cfg := &DesktopConfig{MCPServers: map[string]ServerEntry{}, extra: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerEntry{}
	}
	return cfg, nil
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// The entry may carry the signing secret.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or replaces the server entry and returns the file written.
func Configure(opts Options) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", err
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return "", err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = FindBinary(); err != nil {
			return "", err
		}
	}

	entry := ServerEntry{Command: binary, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env["LIRADS_DATA_DIR"] = opts.DataDir
	}
	if opts.AuditSecret != "" {
		entry.Env["LIRADS_AUDIT_SECRET"] = opts.AuditSecret
	}
	cfg.MCPServers[ServerKey] = entry

	if err := Save(path, cfg); err != nil {
		return "", err
	}
	return path, nil
}

// FindBinary looks for the MCP server on PATH and in common install dirs.
func FindBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	for _, loc := range []string{
		"./" + BinaryName,
		"./bin/" + BinaryName,
		filepath.Join(home, ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	} {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}
	return "", fmt.Errorf("binary '%s' not found in common locations", BinaryName)
}

// Status describes the registered entry, if any.
type Status struct {
	ConfigPath  string   `json:"config_path" yaml:"config_path"`
	Configured  bool     `json:"configured" yaml:"configured"`
	BinaryPath  string   `json:"binary_path,omitempty" yaml:"binary_path,omitempty"`
	DataDir     string   `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	SecretWired bool     `json:"secret_configured" yaml:"secret_configured"`
	Issues      []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// GetStatus inspects the config at path, or the default location when empty.
func GetStatus(path string) (*Status, error) {
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	st := &Status{ConfigPath: path}
	entry, ok := cfg.MCPServers[ServerKey]
	if !ok {
		st.Issues = append(st.Issues, "server not registered")
		return st, nil
	}
	st.Configured = true
	st.BinaryPath = entry.Command
	st.DataDir = entry.Env["LIRADS_DATA_DIR"]
	st.SecretWired = entry.Env["LIRADS_AUDIT_SECRET"] != ""

	if _, err := os.Stat(entry.Command); err != nil {
		st.Issues = append(st.Issues, fmt.Sprintf("server binary not found at: %s", entry.Command))
	}
	if !st.SecretWired {
		st.Issues = append(st.Issues, "LIRADS_AUDIT_SECRET not set in entry; the server will refuse to start unless it is inherited")
	}
	return st, nil
}
