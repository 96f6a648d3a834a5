package mcp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Transport: " HTTP "}
	applyDefaults(&cfg)
	if cfg.Transport != TransportHTTP {
		t.Fatalf("transport %q", cfg.Transport)
	}
	if cfg.Listen != defaultListen || cfg.MCPPath != defaultMCPPath || cfg.MaxContentBytes != defaultMaxContentBytes {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	empty := Config{}
	applyDefaults(&empty)
	if empty.Transport != TransportStdio {
		t.Fatalf("default transport %q", empty.Transport)
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(NewServerRequest{Config: Config{Transport: "carrier-pigeon"}}); err == nil || !strings.Contains(err.Error(), "invalid mcp transport") {
		t.Fatalf("expected transport error, got %v", err)
	}
	if _, err := NewServer(NewServerRequest{}); err == nil || !strings.Contains(err.Error(), "platform client required") {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestCleanHTTPPath(t *testing.T) {
	cases := map[string]string{
		"":           "/mcp",
		"mcp":        "/mcp",
		"/api//mcp/": "/api/mcp",
	}
	for in, want := range cases {
		if got := cleanHTTPPath(in); got != want {
			t.Fatalf("cleanHTTPPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildMuxServesOnlyMCPPath(t *testing.T) {
	cfg := Config{MCPPath: "/bridge"}
	applyDefaults(&cfg)
	s := newServer(cfg, nil, pslog.NewStructured(io.Discard))
	ts := httptest.NewServer(s.buildMux(s.newSDKServer()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/elsewhere")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d for unknown path", resp.StatusCode)
	}
}
