package mcp

import (
	"context"
	"encoding/json"
	"io"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"
)

// ToolsListResponse mirrors a canonical JSON-RPC tools/list result payload.
type ToolsListResponse struct {
	ID      int                 `json:"id"`
	JSONRPC string              `json:"jsonrpc"`
	Result  ToolsListResultBody `json:"result"`
}

// ToolsListResultBody is the JSON-RPC "result" object for tools/list.
type ToolsListResultBody struct {
	Tools      []*mcpsdk.Tool `json:"tools"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// BuildToolsListResponse builds a canonical tools/list payload in-process.
//
// No listener is started and no platform is contacted; only the tool
// registry is materialized.
func BuildToolsListResponse(ctx context.Context, cfg Config) (ToolsListResponse, error) {
	applyDefaults(&cfg)
	s := newServer(cfg, nil, pslog.NewStructured(io.Discard))

	cli := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "hulybridge-tools-list",
		Version: "0.1.0",
	}, nil)
	t1, t2 := mcpsdk.NewInMemoryTransports()
	ss, err := s.newSDKServer().Connect(ctx, t1, nil)
	if err != nil {
		return ToolsListResponse{}, err
	}
	defer ss.Close()

	cs, err := cli.Connect(ctx, t2, nil)
	if err != nil {
		return ToolsListResponse{}, err
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		return ToolsListResponse{}, err
	}
	return ToolsListResponse{
		ID:      1,
		JSONRPC: "2.0",
		Result: ToolsListResultBody{
			Tools:      list.Tools,
			NextCursor: list.NextCursor,
		},
	}, nil
}

// BuildToolsListResponseJSON returns the tools/list payload as indented JSON.
func BuildToolsListResponseJSON(ctx context.Context, cfg Config) ([]byte, error) {
	resp, err := BuildToolsListResponse(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
