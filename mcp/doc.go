// Package mcp provides the hulybridge MCP facade server.
//
// The server fronts one platform workspace through the client package and
// exposes teamspaces, documents, projects, issues, comments, persons and
// attachments as MCP tools. Arguments are validated here (titles bounded in
// length, priorities in 0..4, list limits in 1..1000, content size caps)
// before any platform call; the client only handles structural and network
// concerns.
//
// # Transports
//
// Config.Transport selects stdio (the default, for agent hosts that spawn the
// process) or streamable HTTP on Config.Listen at Config.MCPPath (default
// /mcp).
//
// # Errors
//
// A failing tool call returns isError with a JSON text body:
//
//	{"error":{"error_code":"not_found","detail":"...","retryable":false}}
//
// error_code is client.ErrorCode of the underlying error. Socket timeouts,
// closed connections and 5xx/429 REST responses are marked retryable.
//
// # Example
//
//	cli, err := client.New(client.Config{
//		BaseURL:   "https://huly.example.com",
//		Email:     "bot@example.com",
//		Password:  secret,
//		Workspace: "engineering",
//	}, client.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer cli.Close()
//
//	srv, err := mcp.NewServer(mcp.NewServerRequest{
//		Config:   mcp.Config{Transport: mcp.TransportHTTP, Listen: "127.0.0.1:19342"},
//		Platform: cli,
//		Logger:   logger,
//	})
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package mcp
