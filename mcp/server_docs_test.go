package mcp

import (
	"context"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestDefaultServerInstructions(t *testing.T) {
	t.Parallel()
	text := defaultServerInstructions(Config{})
	for _, want := range []string{"Mode: read-write", "Start with huly.session", "1.0 MiB", docErrorsURI} {
		if !strings.Contains(text, want) {
			t.Fatalf("instructions missing %q: %q", want, text)
		}
	}
	if !strings.Contains(defaultServerInstructions(Config{ReadOnly: true}), "Mode: read-only") {
		t.Fatalf("read-only mode not announced")
	}
}

func TestHelpToolTopics(t *testing.T) {
	t.Parallel()
	s := &server{cfg: Config{}}
	for _, topic := range []string{"", "overview", "Documents", "tracker", "errors"} {
		_, out, err := s.handleHelpTool(context.Background(), nil, helpToolInput{Topic: topic})
		if err != nil {
			t.Fatalf("help %q: %v", topic, err)
		}
		if out.Summary == "" || len(out.NextCalls) == 0 || len(out.Resources) == 0 {
			t.Fatalf("help %q incomplete: %+v", topic, out)
		}
		for _, uri := range out.Resources {
			if _, ok := s.resourceDocs()[uri]; !ok {
				t.Fatalf("help %q points at unknown resource %s", topic, uri)
			}
		}
	}
}

func TestHandleDocResource(t *testing.T) {
	t.Parallel()
	s := &server{cfg: Config{}}
	res, err := s.handleDocResource(context.Background(), &mcpsdk.ReadResourceRequest{Params: &mcpsdk.ReadResourceParams{URI: docTrackerURI}})
	if err != nil {
		t.Fatalf("read tracker doc: %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, "HULY-1") {
		t.Fatalf("unexpected contents %+v", res.Contents)
	}
	if _, err := s.handleDocResource(context.Background(), &mcpsdk.ReadResourceRequest{Params: &mcpsdk.ReadResourceParams{URI: "resource://docs/missing.md"}}); err == nil {
		t.Fatalf("expected error for unknown resource")
	}
	if len(s.resourceURIs()) != 4 {
		t.Fatalf("expected 4 resources, got %v", s.resourceURIs())
	}
}
