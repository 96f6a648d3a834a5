package hulybridge

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		BaseURL:   "https://huly.example.com",
		Email:     "bot@example.com",
		Password:  "secret",
		Workspace: "engineering",
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.MCPTransport != DefaultMCPTransport || cfg.MCPListen != DefaultMCPListen || cfg.MCPPath != DefaultMCPPath {
		t.Fatalf("mcp defaults not applied: %+v", cfg)
	}
	if cfg.MaxContentBytes != DefaultMaxContentBytes {
		t.Fatalf("expected max content default, got %d", cfg.MaxContentBytes)
	}
	if cfg.BlobThreshold != 10*1024 {
		t.Fatalf("expected blob threshold default, got %d", cfg.BlobThreshold)
	}
	if cfg.HTTPTimeout != 30*time.Second || cfg.TxTimeout != 30*time.Second || cfg.HelloTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		t.Fatalf("expected timeout defaults: %+v", cfg)
	}
}

func TestConfigValidateNormalizes(t *testing.T) {
	cfg := validConfig()
	cfg.BaseURL = "  https://huly.example.com  "
	cfg.Workspace = " engineering "
	cfg.MCPTransport = " HTTP "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.BaseURL != "https://huly.example.com" || cfg.Workspace != "engineering" || cfg.MCPTransport != "http" {
		t.Fatalf("not normalized: %+v", cfg)
	}
	mcpCfg := cfg.MCPConfig()
	if mcpCfg.Transport != "http" || mcpCfg.Listen != DefaultMCPListen || mcpCfg.MaxContentBytes != DefaultMaxContentBytes {
		t.Fatalf("mcp config %+v", mcpCfg)
	}
	if got := cfg.ClientConfig(); got.Workspace != "engineering" || got.Password != "secret" {
		t.Fatalf("client config %+v", got)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }, "base url is required"},
		{"relative base url", func(c *Config) { c.BaseURL = "huly.example.com" }, "absolute http(s) url"},
		{"ftp base url", func(c *Config) { c.BaseURL = "ftp://huly.example.com" }, "absolute http(s) url"},
		{"missing email", func(c *Config) { c.Email = " " }, "email is required"},
		{"missing password", func(c *Config) { c.Password = "" }, "password is required"},
		{"missing workspace", func(c *Config) { c.Workspace = "" }, "workspace is required"},
		{"bad transport", func(c *Config) { c.MCPTransport = "sse" }, "mcp transport"},
		{"negative content", func(c *Config) { c.MaxContentBytes = -1 }, "max content bytes"},
		{"negative threshold", func(c *Config) { c.BlobThreshold = -1 }, "blob threshold"},
		{"negative tx timeout", func(c *Config) { c.TxTimeout = -time.Second }, "tx timeout"},
		{"profiling without metrics", func(c *Config) { c.EnableProfilingMetrics = true }, "profiling metrics"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HULY_CONFIG_DIR", dir)
	got, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("config dir: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join(dir, DefaultConfigFileName) {
		t.Fatalf("unexpected config path %s", path)
	}
}
