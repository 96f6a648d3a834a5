package hulybridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/internal/platformtest"
	"pkt.systems/pslog"
)

func platformConfig(platform *platformtest.Server) Config {
	return Config{
		BaseURL:   platform.URL,
		Email:     platformtest.DefaultEmail,
		Password:  platformtest.DefaultPassword,
		Workspace: platformtest.DefaultWorkspace,
	}
}

func TestNewClientHonoursSocketWrites(t *testing.T) {
	platform := platformtest.Start(t)
	platform.Seed("document:class:Teamspace", map[string]any{"_id": "ts-1", "space": "core:space:Space", "name": "Ops", "archived": false})

	cfg := platformConfig(platform)
	cfg.DisableSocketWrites = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cli, err := NewClient(cfg, pslog.NewStructured(io.Discard))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: "ts-1", Title: "Runbook"}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if platform.Count(platformtest.RouteSocket) != 0 {
		t.Fatalf("socket used with socket writes disabled")
	}
	if platform.Count(platformtest.RouteTx) != 1 {
		t.Fatalf("expected one REST transaction, got %d", platform.Count(platformtest.RouteTx))
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	err := Run(context.Background(), Config{}, nil)
	if err == nil || !strings.Contains(err.Error(), "base url is required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunServesHTTPUntilCancelled(t *testing.T) {
	platform := platformtest.Start(t)
	cfg := platformConfig(platform)
	cfg.MCPTransport = "http"
	cfg.MCPListen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, pslog.NewStructured(io.Discard))
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	if platform.Count(platformtest.RouteLogin) != 0 {
		t.Fatalf("run authenticated before any tool call")
	}
}
