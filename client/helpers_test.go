package client_test

import (
	"context"
	"testing"
	"time"

	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/internal/platformtest"
)

func newTestClient(t *testing.T, srv *platformtest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	return newTestClientFor(t, srv, platformtest.DefaultWorkspace, opts...)
}

func newTestClientFor(t *testing.T, srv *platformtest.Server, workspace string, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{
		client.WithHTTPTimeout(5 * time.Second),
		client.WithSocketOptions(client.SocketOptions{HelloTimeout: 2 * time.Second, TxTimeout: 2 * time.Second}),
	}, opts...)
	cli, err := client.New(client.Config{
		BaseURL:   srv.URL,
		Email:     platformtest.DefaultEmail,
		Password:  platformtest.DefaultPassword,
		Workspace: workspace,
	}, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
