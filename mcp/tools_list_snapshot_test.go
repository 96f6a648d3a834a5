package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestBuildToolsListResponseJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := BuildToolsListResponseJSON(ctx, Config{})
	if err != nil {
		t.Fatalf("build tools list json: %v", err)
	}
	var decoded ToolsListResponse
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.JSONRPC != "2.0" || decoded.ID != 1 {
		t.Fatalf("unexpected envelope %q/%d", decoded.JSONRPC, decoded.ID)
	}

	found := map[string]bool{}
	for _, tool := range decoded.Result.Tools {
		found[tool.Name] = true
		if tool.InputSchema == nil {
			t.Fatalf("tool %s has no input schema", tool.Name)
		}
	}
	for _, name := range mcpToolNames {
		if !found[name] {
			t.Fatalf("tools list missing %s", name)
		}
	}
}

func TestBuildToolsListResponseReadOnly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := BuildToolsListResponse(ctx, Config{ReadOnly: true})
	if err != nil {
		t.Fatalf("build tools list: %v", err)
	}
	if len(resp.Result.Tools) != len(mcpToolNames)-len(writeTools) {
		t.Fatalf("expected %d read-only tools, got %d", len(mcpToolNames)-len(writeTools), len(resp.Result.Tools))
	}
	for _, tool := range resp.Result.Tools {
		if writeTools[tool.Name] {
			t.Fatalf("read-only list includes %s", tool.Name)
		}
	}
}
