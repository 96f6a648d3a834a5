package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/hulybridge/internal/platformtest"
	"pkt.systems/hulybridge/internal/version"
	"pkt.systems/hulybridge/mcp"
	"pkt.systems/pslog"
)

func executeRootCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HULY_CONFIG_DIR", t.TempDir())
	cmd := newRootCommand(pslog.NewStructured(io.Discard))
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestInvocationTargetsRootCommand(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(io.Discard))
	cases := []struct {
		name string
		args []string
		want bool
	}{
		{name: "no args", args: nil, want: true},
		{name: "root flag only", args: []string{"--transport", "http"}, want: true},
		{name: "root bool flag", args: []string{"--read-only"}, want: true},
		{name: "root shorthand with value", args: []string{"-c", "/tmp/cfg.yaml"}, want: true},
		{name: "subcommand", args: []string{"whoami"}, want: false},
		{name: "nested subcommand", args: []string{"config", "gen"}, want: false},
		{name: "subcommand after root flag", args: []string{"--config", "/tmp/cfg.yaml", "whoami"}, want: false},
		{name: "unknown shorthand no subcommand", args: []string{"-z"}, want: true},
		{name: "unknown long before subcommand", args: []string{"--bogus", "version"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := invocationTargetsRootCommand(root, tc.args); got != tc.want {
				t.Fatalf("invocationTargetsRootCommand(%v)=%v want %v", tc.args, got, tc.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := version.Module() + " " + version.Current() + "\n"; stdout != want {
		t.Fatalf("got %q want %q", stdout, want)
	}
	stdout, _, err = executeRootCommand(t, "version", "--short")
	if err != nil || stdout != version.Current()+"\n" {
		t.Fatalf("version --short: %q %v", stdout, err)
	}
}

func TestToolsCommand(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "tools", "--read-only")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	var resp mcp.ToolsListResponse
	if err := json.Unmarshal([]byte(stdout), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range resp.Result.Tools {
		names[tool.Name] = true
	}
	if !names["huly.issues.get"] || names["huly.issues.create"] {
		t.Fatalf("unexpected read-only tool set %v", names)
	}
}

func TestConfigGenStdout(t *testing.T) {
	stdout, _, err := executeRootCommand(t, "config", "gen", "--stdout")
	if err != nil {
		t.Fatalf("config gen: %v", err)
	}
	var decoded configDefaults
	if err := yaml.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if decoded.Transport != "stdio" || decoded.MaxContent != "1.0MiB" || decoded.BlobThreshold != "10KiB" {
		t.Fatalf("unexpected defaults %+v", decoded)
	}
}

func TestConfigGenRefusesOverwrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config.yaml")
	if _, _, err := executeRootCommand(t, "config", "gen", "--out", out); err != nil {
		t.Fatalf("config gen: %v", err)
	}
	if _, _, err := executeRootCommand(t, "config", "gen", "--out", out); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
	if _, _, err := executeRootCommand(t, "config", "gen", "--out", out, "--force"); err != nil {
		t.Fatalf("config gen --force: %v", err)
	}
	if _, _, err := executeRootCommand(t, "config", "gen", "--out", out, "--stdout"); err == nil {
		t.Fatalf("expected --out/--stdout conflict")
	}
}

func TestWhoamiFromFlags(t *testing.T) {
	platform := platformtest.Start(t)
	stdout, _, err := executeRootCommand(t, "whoami",
		"--base-url", platform.URL,
		"--email", platformtest.DefaultEmail,
		"--password", platformtest.DefaultPassword,
		"--workspace", platformtest.DefaultWorkspace,
	)
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var out whoamiOutput
	if err := yaml.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Workspace != platformtest.WorkspaceID || out.Account != platformtest.AccountID {
		t.Fatalf("unexpected session %+v", out)
	}
}

func TestWhoamiFromConfigFileAndEnv(t *testing.T) {
	platform := platformtest.Start(t)
	path := filepath.Join(t.TempDir(), "hb.yaml")
	body := "base-url: " + platform.URL + "\nemail: " + platformtest.DefaultEmail + "\nworkspace: " + platformtest.DefaultWorkspace + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HULY_PASSWORD", platformtest.DefaultPassword)
	if _, _, err := executeRootCommand(t, "whoami", "--config", path); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if platform.Count(platformtest.RouteSelectWorkspace) != 1 {
		t.Fatalf("expected one workspace selection")
	}
}

func TestWhoamiReportsAuthFailure(t *testing.T) {
	platform := platformtest.Start(t, platformtest.WithLoginError("platform:status:InvalidPassword"))
	_, _, err := executeRootCommand(t, "whoami",
		"--base-url", platform.URL,
		"--email", platformtest.DefaultEmail,
		"--password", "wrong",
		"--workspace", platformtest.DefaultWorkspace,
	)
	if err == nil || !strings.Contains(err.Error(), "authentication_failed") {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestWhoamiRequiresCredentials(t *testing.T) {
	_, _, err := executeRootCommand(t, "whoami", "--base-url", "https://huly.example.com")
	if err == nil || !strings.Contains(err.Error(), "email is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBindConfigRejectsBadSize(t *testing.T) {
	_, _, err := executeRootCommand(t, "whoami", "--blob-threshold", "lots")
	if err == nil || !strings.Contains(err.Error(), "blob-threshold") {
		t.Fatalf("expected size parse error, got %v", err)
	}
}
