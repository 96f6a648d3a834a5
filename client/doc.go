// Package client is the Go SDK for a Huly-style collaboration platform. It
// authenticates against one workspace, queries documents over the REST
// find endpoint and writes through normalized transaction records.
//
// # Quick start
//
//	ctx := context.Background()
//	cli, err := client.New(client.Config{
//	    BaseURL:   "https://huly.example.com",
//	    Email:     "me@example.com",
//	    Password:  os.Getenv("HULY_PASSWORD"),
//	    Workspace: "engineering",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cli.Close()
//
//	spaces, err := cli.ListTeamspaces(ctx, client.ListOptions{Limit: 50})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	doc, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{
//	    Teamspace: spaces[0].ID,
//	    Title:     "Runbook",
//	    Content:   "# Runbook\n",
//	})
//
// No network I/O happens in New. The first operation runs the three step
// authentication (config discovery, login, workspace selection) and every
// later operation reuses the workspace token. Concurrent first calls share a
// single authentication. There is no token refresh; a rejected token
// surfaces as ErrRequestFailed.
//
// # Queries
//
// FindAll and FindOne decode find results into any type, usually one of the
// api records, which decode leniently. FindAllRaw returns undecoded items.
// Only the limit, sort and total options reach the server.
//
// # Writes
//
// Document and teamspace writes travel over the persistent transaction
// socket (TxSocket) and fall back to the REST transaction endpoint when the
// socket cannot be established. A transaction that was sent is never resent:
// a server rejection (*ServerError), a timeout or a lost connection after the
// send is returned to the caller. Issue, comment and attachment writes use
// REST only. WithSocketWrites(false) routes everything over REST.
//
// # Blobs
//
// Document content and issue descriptions of DefaultBlobThreshold bytes or
// more are uploaded as blobs and the blob id is stored in their place. Read
// paths fetch the blob text back. A failed fetch is logged and the raw blob
// id is returned instead of an error.
//
// # Errors
//
// Every error matches one sentinel (ErrConfig, ErrAuthenticationFailed and
// so on) through errors.Is. ErrorCode maps an error to the stable string code
// reported by the MCP tools.
package client
