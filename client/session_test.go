package client_test

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"pkt.systems/hulybridge/api"
	"pkt.systems/hulybridge/client"
	"pkt.systems/hulybridge/internal/platformtest"
)

func TestAuthenticateThenEnsureIsIdempotent(t *testing.T) {
	srv := platformtest.Start(t)
	cli := newTestClient(t, srv)
	ctx := testContext(t)

	if err := cli.Authenticate(ctx); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := cli.EnsureAuthenticated(ctx); err != nil {
			t.Fatalf("ensure authenticated: %v", err)
		}
	}
	if got := srv.Count(platformtest.RouteConfig); got != 1 {
		t.Fatalf("config fetched %d times, want 1", got)
	}
	if got := srv.Count(platformtest.RouteLogin); got != 1 {
		t.Fatalf("login called %d times, want 1", got)
	}
	if got := srv.Count(platformtest.RouteSelectWorkspace); got != 1 {
		t.Fatalf("selectWorkspace called %d times, want 1", got)
	}
}

func TestEnsureAuthenticatedConcurrentCallersShareLogin(t *testing.T) {
	srv := platformtest.Start(t)
	cli := newTestClient(t, srv)
	ctx := testContext(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- cli.EnsureAuthenticated(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ensure authenticated: %v", err)
		}
	}
	if got := srv.Count(platformtest.RouteLogin); got != 1 {
		t.Fatalf("login called %d times, want 1", got)
	}
}

func TestAuthenticateStoresSession(t *testing.T) {
	srv := platformtest.Start(t)
	cli := newTestClient(t, srv)
	if err := cli.Authenticate(testContext(t)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	info := cli.Session()
	if !info.Authenticated {
		t.Fatalf("expected authenticated session")
	}
	if !strings.HasPrefix(info.Endpoint, "http://") {
		t.Fatalf("endpoint %q not normalized to http", info.Endpoint)
	}
	if info.Workspace != platformtest.WorkspaceID {
		t.Fatalf("workspace = %q, want %q", info.Workspace, platformtest.WorkspaceID)
	}
	if info.Account != platformtest.AccountID {
		t.Fatalf("account from token claims = %q, want %q", info.Account, platformtest.AccountID)
	}
	if info.AccountsURL != srv.URL+"/_accounts" {
		t.Fatalf("accounts url = %q, want relative url resolved against base", info.AccountsURL)
	}
	if info.Socket != client.SocketDisconnected {
		t.Fatalf("socket state = %s before any write", info.Socket)
	}
}

func TestAuthenticateAccountFromResult(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithAccountInResult())
	cli := newTestClient(t, srv)
	if err := cli.Authenticate(testContext(t)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got := cli.Session().Account; got != api.Ref(platformtest.AccountID) {
		t.Fatalf("account = %q", got)
	}
}

func TestAuthenticateConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"status", http.StatusInternalServerError, "boom"},
		{"malformed", http.StatusOK, "not json"},
		{"missing accounts url", http.StatusOK, `{"FILES_URL":"/files"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := platformtest.Start(t, platformtest.WithConfigResponse(tc.status, tc.body))
			cli := newTestClient(t, srv)
			err := cli.Authenticate(testContext(t))
			if !errors.Is(err, client.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
			if code := client.ErrorCode(err); code != client.CodeConfig {
				t.Fatalf("code = %q", code)
			}
			if srv.Count(platformtest.RouteLogin) != 0 {
				t.Fatalf("login attempted after config failure")
			}
		})
	}
}

func TestAuthenticateLoginRejected(t *testing.T) {
	srv := platformtest.Start(t, platformtest.WithLoginError("platform:status:InvalidPassword"))
	cli := newTestClient(t, srv)
	err := cli.Authenticate(testContext(t))
	if !errors.Is(err, client.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	var authErr *client.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T", err)
	}
	if authErr.Step != "login" || authErr.Code != "platform:status:InvalidPassword" {
		t.Fatalf("unexpected auth error %+v", authErr)
	}
	if srv.Count(platformtest.RouteSelectWorkspace) != 0 {
		t.Fatalf("selectWorkspace attempted after login failure")
	}
}

func TestAuthenticateUnknownWorkspace(t *testing.T) {
	srv := platformtest.Start(t)
	cli := newTestClientFor(t, srv, "missing")
	err := cli.EnsureAuthenticated(testContext(t))
	var authErr *client.AuthError
	if !errors.As(err, &authErr) || authErr.Step != "selectWorkspace" {
		t.Fatalf("expected selectWorkspace auth error, got %v", err)
	}
	if cli.Session().Authenticated {
		t.Fatalf("session must stay empty after failure")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  client.Config
		want error
	}{
		{"empty base", client.Config{Email: "a", Password: "b", Workspace: "w"}, client.ErrConfig},
		{"bad scheme", client.Config{BaseURL: "ftp://host", Email: "a", Password: "b", Workspace: "w"}, client.ErrInvalidURL},
		{"no credentials", client.Config{BaseURL: "https://host", Workspace: "w"}, client.ErrConfig},
		{"no workspace", client.Config{BaseURL: "https://host", Email: "a", Password: "b"}, client.ErrConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := client.New(tc.cfg); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestReauthenticateDisconnectsSocket(t *testing.T) {
	srv := platformtest.Start(t)
	cli := newTestClient(t, srv)
	ctx := testContext(t)
	if _, err := cli.CreateTeamspace(ctx, client.CreateTeamspaceRequest{Name: "Ops"}); err != nil {
		t.Fatalf("create teamspace: %v", err)
	}
	spaces, err := cli.ListTeamspaces(ctx, client.ListOptions{})
	if err != nil || len(spaces) != 1 {
		t.Fatalf("list teamspaces: %v (%d)", err, len(spaces))
	}
	if _, err := cli.CreateDocument(ctx, client.CreateDocumentRequest{Teamspace: spaces[0].ID, Title: "a"}); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if got := cli.Session().Socket; got != client.SocketReady {
		t.Fatalf("socket state = %s, want ready", got)
	}
	if err := cli.Authenticate(ctx); err != nil {
		t.Fatalf("reauthenticate: %v", err)
	}
	if got := cli.Session().Socket; got != client.SocketDisconnected {
		t.Fatalf("socket state after reauth = %s", got)
	}
}
