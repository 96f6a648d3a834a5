package client_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/internal/platformtest"
)

const testTeamspace = "ts-docs"

func startDocsPlatform(t *testing.T, opts ...platformtest.Option) *platformtest.Server {
	t.Helper()
	srv := platformtest.Start(t, opts...)
	srv.Seed(string(api.ClassTeamspace), map[string]any{"_id": testTeamspace, "name": "Docs", "archived": false})
	return srv
}

func TestCreateDocumentInlineBelowThreshold(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv)
	content := strings.Repeat("a", client.DefaultBlobThreshold-1)

	doc, err := cli.CreateDocument(testContext(t), client.CreateDocumentRequest{
		Teamspace: testTeamspace,
		Title:     "Small",
		Content:   content,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if srv.Count(platformtest.RouteUpload) != 0 {
		t.Fatalf("content below threshold was uploaded")
	}
	stored := srv.Doc(string(api.ClassDocument), string(doc.ID))
	if stored["content"] != content {
		t.Fatalf("content not stored inline")
	}
	if stored["parent"] != string(api.DocumentNoParent) {
		t.Fatalf("parent = %v", stored["parent"])
	}
	if doc.ContentBlob != "" {
		t.Fatalf("unexpected blob %q", doc.ContentBlob)
	}
}

func TestCreateDocumentBlobAtThreshold(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv)
	ctx := testContext(t)
	content := strings.Repeat("b", client.DefaultBlobThreshold)

	doc, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{
		Teamspace: testTeamspace,
		Title:     "Large",
		Content:   content,
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if srv.Count(platformtest.RouteUpload) != 1 {
		t.Fatalf("uploads = %d, want 1", srv.Count(platformtest.RouteUpload))
	}
	stored, _ := srv.Doc(string(api.ClassDocument), string(doc.ID))["content"].(string)
	if stored == content || !api.IsBlobReference(stored) {
		t.Fatalf("stored content %q is not a blob reference", stored)
	}
	if !strings.HasPrefix(stored, string(doc.ID)+"-content-") {
		t.Fatalf("blob name %q does not derive from the document id", stored)
	}
	if blob, ok := srv.Blob(stored); !ok || string(blob) != content {
		t.Fatalf("blob not stored")
	}

	got, err := cli.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.DisplayName != "Large" {
		t.Fatalf("display name = %q", got.DisplayName)
	}
	if got.Content != content {
		t.Fatalf("content not resolved from blob")
	}
	if got.ContentBlob != api.Ref(stored) {
		t.Fatalf("content blob = %q", got.ContentBlob)
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	for _, size := range []int{0, 12, client.DefaultBlobThreshold - 1, client.DefaultBlobThreshold, 3 * client.DefaultBlobThreshold} {
		srv := startDocsPlatform(t)
		cli := newTestClient(t, srv)
		ctx := testContext(t)
		content := strings.Repeat("x", size)
		doc, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Doc", Content: content})
		if err != nil {
			t.Fatalf("size %d: create: %v", size, err)
		}
		got, err := cli.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("size %d: get: %v", size, err)
		}
		if got.DisplayName != "Doc" || got.Content != content {
			t.Fatalf("size %d: round trip mismatch (title %q, %d bytes)", size, got.DisplayName, len(got.Content))
		}
	}
}

func TestGetDocumentBlobFetchDegrades(t *testing.T) {
	srv := startDocsPlatform(t)
	ref := "doc-1-content-1700000000000"
	srv.Seed(string(api.ClassDocument), map[string]any{"_id": "doc-1", "space": testTeamspace, "title": "Lost", "content": ref})
	cli := newTestClient(t, srv)

	doc, err := cli.GetDocument(testContext(t), "doc-1")
	if err != nil {
		t.Fatalf("read must not fail on blob fetch: %v", err)
	}
	if doc.Content != ref {
		t.Fatalf("content = %q, want raw reference", doc.Content)
	}
	if srv.Count(platformtest.RouteFetch) != 1 {
		t.Fatalf("fetch not attempted")
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv)
	_, err := cli.GetDocument(testContext(t), "missing")
	if !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if client.ErrorCode(err) != client.CodeNotFound {
		t.Fatalf("code = %q", client.ErrorCode(err))
	}
}

func TestDocumentLifecycle(t *testing.T) {
	srv := startDocsPlatform(t)
	srv.Seed(string(api.ClassTeamspace), map[string]any{"_id": "ts-other", "name": "Other", "archived": false})
	cli := newTestClient(t, srv)
	ctx := testContext(t)

	parent, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Parent"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Child", Parent: parent.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	docs, err := cli.ListDocuments(ctx, testTeamspace, client.ListOptions{})
	if err != nil || len(docs) != 2 {
		t.Fatalf("list documents: %v (%d)", err, len(docs))
	}

	title := "Renamed"
	body := "new body"
	updated, err := cli.UpdateDocument(ctx, child.ID, client.UpdateDocumentRequest{Title: &title, Content: &body})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName != title || updated.Content != body {
		t.Fatalf("update result %+v", updated)
	}
	stored := srv.Doc(string(api.ClassDocument), string(child.ID))
	if stored["title"] != title || stored["content"] != body {
		t.Fatalf("stored after update %v", stored)
	}

	moved, err := cli.MoveDocument(ctx, child.ID, client.MoveDocumentRequest{Teamspace: "ts-other"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Parent != api.DocumentNoParent || moved.Space != "ts-other" {
		t.Fatalf("move result %+v", moved)
	}
	stored = srv.Doc(string(api.ClassDocument), string(child.ID))
	if stored["space"] != "ts-other" || stored["parent"] != string(api.DocumentNoParent) {
		t.Fatalf("stored after move %v", stored)
	}

	if err := cli.DeleteDocument(ctx, child.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if srv.Doc(string(api.ClassDocument), string(child.ID)) != nil {
		t.Fatalf("document not removed")
	}
	if err := cli.DeleteDocument(ctx, child.ID); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if srv.Count(platformtest.RouteTx) != 0 {
		t.Fatalf("document writes used REST while the socket was available")
	}
}

func TestUpdateDocumentRequiresChange(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv)
	if _, err := cli.UpdateDocument(testContext(t), "doc", client.UpdateDocumentRequest{}); !errors.Is(err, client.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDocumentWritesFallBackToREST(t *testing.T) {
	srv := startDocsPlatform(t, platformtest.WithSocketDisabled())
	cli := newTestClient(t, srv)
	doc, err := cli.CreateDocument(testContext(t), client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Fallback"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if srv.Count(platformtest.RouteSocket) != 1 {
		t.Fatalf("socket not attempted")
	}
	if srv.Count(platformtest.RouteTx) != 1 {
		t.Fatalf("REST transactions = %d, want 1", srv.Count(platformtest.RouteTx))
	}
	if srv.Doc(string(api.ClassDocument), string(doc.ID)) == nil {
		t.Fatalf("document not created")
	}
}

func TestDocumentWritesFallBackOnHandshakeTimeout(t *testing.T) {
	srv := startDocsPlatform(t, platformtest.WithoutHello())
	cli := newTestClient(t, srv, client.WithSocketOptions(client.SocketOptions{HelloTimeout: 100 * time.Millisecond}))
	if _, err := cli.CreateDocument(testContext(t), client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Slow"}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if srv.Count(platformtest.RouteTx) != 1 {
		t.Fatalf("expected REST fallback after handshake timeout")
	}
}

func TestDocumentServerErrorDoesNotFallBack(t *testing.T) {
	srv := startDocsPlatform(t, platformtest.WithTxError("platform:status:Forbidden", "read only"))
	cli := newTestClient(t, srv)
	_, err := cli.CreateDocument(testContext(t), client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Denied"})
	var serverErr *client.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected *ServerError, got %v", err)
	}
	if serverErr.Code != "platform:status:Forbidden" || serverErr.Message != "read only" {
		t.Fatalf("server error %+v", serverErr)
	}
	if srv.Count(platformtest.RouteTx) != 0 {
		t.Fatalf("server error fell back to REST")
	}
}

func TestSocketWritesDisabled(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv, client.WithSocketWrites(false))
	if _, err := cli.CreateDocument(testContext(t), client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "REST"}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if srv.Count(platformtest.RouteSocket) != 0 {
		t.Fatalf("socket dialed with socket writes disabled")
	}
	if srv.Count(platformtest.RouteTx) != 1 {
		t.Fatalf("REST transactions = %d", srv.Count(platformtest.RouteTx))
	}
}

func TestSocketReusedAcrossWrites(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv)
	ctx := testContext(t)
	for i := 0; i < 3; i++ {
		if _, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "n"}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if srv.Count(platformtest.RouteSocket) != 1 || srv.Count(platformtest.RouteSocketHello) != 1 {
		t.Fatalf("socket dialed %d times", srv.Count(platformtest.RouteSocket))
	}
	if srv.Count(platformtest.RouteSocketTx) != 3 {
		t.Fatalf("socket transactions = %d", srv.Count(platformtest.RouteSocketTx))
	}
}

func TestSocketRecreatedAfterConnectionLoss(t *testing.T) {
	srv := startDocsPlatform(t)
	cli := newTestClient(t, srv)
	ctx := testContext(t)
	if _, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "one"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	srv.DropSockets()
	waitFor(t, func() bool { return cli.Session().Socket == client.SocketDisconnected })
	if _, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "two"}); err != nil {
		t.Fatalf("create after loss: %v", err)
	}
	if srv.Count(platformtest.RouteSocket) != 2 {
		t.Fatalf("socket dials = %d, want 2", srv.Count(platformtest.RouteSocket))
	}
}

func TestSessionAndCloseDuringHandshake(t *testing.T) {
	srv := startDocsPlatform(t, platformtest.WithoutHello())
	cli := newTestClient(t, srv, client.WithSocketOptions(client.SocketOptions{HelloTimeout: 5 * time.Second}))
	ctx := testContext(t)
	if err := cli.EnsureAuthenticated(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Pending"})
		done <- err
	}()

	waitFor(t, func() bool {
		start := time.Now()
		state := cli.Session().Socket
		if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
			t.Fatalf("Session blocked for %s during handshake", elapsed)
		}
		return state == client.SocketAwaitingHandshake
	})

	start := time.Now()
	if err := cli.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("create document after aborted handshake: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("write still blocked %s after close", time.Since(start))
	}
	if srv.Count(platformtest.RouteTx) != 1 {
		t.Fatalf("expected REST fallback once the handshake was aborted")
	}
	if got := cli.Session().Socket; got != client.SocketDisconnected {
		t.Fatalf("socket state after close = %s", got)
	}
}

func TestLiteralContentResemblingBlobNameStaysInline(t *testing.T) {
	srv := startDocsPlatform(t)
	srv.SeedBlob("release-content-notes", []byte("SOMETHING ELSE"))
	cli := newTestClient(t, srv)
	ctx := testContext(t)

	doc, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: testTeamspace, Title: "Notes", Content: "release-content-notes"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := cli.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "release-content-notes" || got.ContentBlob != "" {
		t.Fatalf("content = %q blob %q, want literal text", got.Content, got.ContentBlob)
	}
	if srv.Count(platformtest.RouteFetch) != 0 {
		t.Fatalf("literal content triggered a blob fetch")
	}
}
