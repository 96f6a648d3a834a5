// Package hulybridge runs an MCP server in front of one workspace of a
// collaboration platform, exposing its teamspaces, documents, projects,
// issues, comments, persons and attachments as MCP tools.
//
// The package wires three layers together: the platform client in the
// client package (authentication, find queries, transactions, blobs and the
// persistent transaction socket), the MCP facade in the mcp package, and the
// ambient telemetry configured here (OTLP traces, Prometheus metrics, pprof).
//
// # Running the bridge
//
//	cfg := hulybridge.Config{
//		BaseURL:      "https://huly.example.com",
//		Email:        "bot@example.com",
//		Password:     os.Getenv("HULY_PASSWORD"),
//		Workspace:    "engineering",
//		MCPTransport: "http",
//		MCPListen:    "127.0.0.1:19342",
//		ReadOnly:     true,
//	}
//	if err := hulybridge.Run(ctx, cfg, logger); err != nil {
//		log.Fatal(err)
//	}
//
// Run blocks until ctx is cancelled. Config.Validate fills in defaults: stdio
// transport, 1 MiB per-call content cap, 10 KiB blob threshold, 30s REST and
// socket transaction timeouts.
//
// # Using the client directly
//
// NewClient builds a client.Client from the same Config for programs that
// want the platform operations without MCP:
//
//	cli, err := hulybridge.NewClient(cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer cli.Close()
//	issue, err := cli.CreateIssue(ctx, client.CreateIssueRequest{
//		Project: "HULY",
//		Title:   "Socket reconnect loses pending transactions",
//	})
//
// # Telemetry
//
// Config.OTLPEndpoint enables trace export (host:port selects insecure grpc;
// grpc://, grpcs://, http:// and https:// URLs pick the protocol explicitly).
// Config.MetricsListen serves /metrics for Prometheus, including the client's
// request and socket transaction instruments. Config.PprofListen serves
// /debug/pprof.
package hulybridge
