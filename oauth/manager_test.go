package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-formsync/core"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) *Manager {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	manager, err := NewManager(Config{
		AuthorizeURL: "https://auth.example/oauth2/v1/authorize",
		TokenURL:     server.URL + "/oauth2/v1/token",
		ClientID:     "client_1",
		ClientSecret: "secret_1",
		RedirectURI:  "https://forms.example/callback",
		Scopes:       []string{"data.records:read", "webhook:manage"},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return manager
}

func writeToken(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func TestManager_AuthorizationURLCarriesPKCE(t *testing.T) {
	manager := newTestManager(t, func(http.ResponseWriter, *http.Request) {})
	pkce, err := manager.NewPKCE()
	if err != nil {
		t.Fatalf("new pkce: %v", err)
	}
	if len(pkce.Verifier) < 43 || pkce.Challenge == "" || pkce.Challenge == pkce.Verifier {
		t.Fatalf("unexpected pkce pair %+v", pkce)
	}

	raw := manager.AuthorizationURL("state_1", pkce.Challenge)
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	query := parsed.Query()
	checks := map[string]string{
		"client_id":             "client_1",
		"redirect_uri":          "https://forms.example/callback",
		"response_type":         "code",
		"state":                 "state_1",
		"code_challenge":        pkce.Challenge,
		"code_challenge_method": "S256",
		"scope":                 "data.records:read webhook:manage",
	}
	for key, want := range checks {
		if got := query.Get(key); got != want {
			t.Fatalf("expected %s=%q, got %q", key, want, got)
		}
	}
}

func TestManager_ExchangeSendsVerifierWithBasicAuth(t *testing.T) {
	manager := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client_1" || pass != "secret_1" {
			t.Errorf("expected basic auth client credentials")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code_verifier") != "verifier_1" {
			t.Errorf("unexpected token form %v", r.Form)
		}
		writeToken(w, map[string]any{
			"access_token":  "access_1",
			"refresh_token": "refresh_1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"scope":         "data.records:read webhook:manage",
		})
	})

	grant, err := manager.ExchangeAuthorizationCode(context.Background(), "code_1", "verifier_1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if grant.AccessToken != "access_1" || grant.RefreshToken != "refresh_1" {
		t.Fatalf("unexpected grant %+v", grant)
	}
	if grant.ExpiresIn < 59*time.Minute || grant.ExpiresIn > time.Hour {
		t.Fatalf("expected expiry of about an hour, got %s", grant.ExpiresIn)
	}
	if len(grant.Scopes) != 2 {
		t.Fatalf("expected scopes from the token response, got %v", grant.Scopes)
	}
}

func TestManager_ExchangeRejectionKeepsUpstreamCode(t *testing.T) {
	manager := newTestManager(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	})

	_, err := manager.ExchangeAuthorizationCode(context.Background(), "code_1", "verifier_1")
	if !core.IsUpstreamAuth(err) {
		t.Fatalf("expected upstream auth error, got %v", err)
	}
	if got := core.UpstreamCode(err); got != "invalid_grant" {
		t.Fatalf("expected invalid_grant, got %q", got)
	}
}

func TestManager_RefreshServerErrorIsTransient(t *testing.T) {
	manager := newTestManager(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := manager.RefreshAccessToken(context.Background(), "refresh_1")
	if !core.IsUpstreamTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestManager_RefreshThrottledIsTransient(t *testing.T) {
	manager := newTestManager(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
	})

	_, err := manager.RefreshAccessToken(context.Background(), "refresh_1")
	if !core.IsUpstreamTransient(err) {
		t.Fatalf("expected transient error for 429, got %v", err)
	}
	if core.IsUpstreamAuth(err) {
		t.Fatalf("expected 429 not to require reconnect")
	}
}

func TestManager_RefreshTimeoutStatusIsTransient(t *testing.T) {
	manager := newTestManager(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	})

	if _, err := manager.RefreshAccessToken(context.Background(), "refresh_1"); !core.IsUpstreamTransient(err) {
		t.Fatalf("expected transient error for 408, got %v", err)
	}
}

func TestManager_RefreshAppliesRotatedGrant(t *testing.T) {
	manager := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "refresh_old" {
			t.Errorf("unexpected refresh form %v", r.Form)
		}
		writeToken(w, map[string]any{
			"access_token":  "access_new",
			"refresh_token": "refresh_new",
			"expires_in":    3600,
		})
	})

	record := core.CredentialRecord{
		ID:             "owner_1",
		ExternalUserID: "usr_1",
		AccessToken:    "access_old",
		RefreshToken:   "refresh_old",
		TokenExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	if !manager.IsExpiringSoon(record) {
		t.Fatalf("expected record inside the skew to be expiring")
	}
	refreshed, err := manager.Refresh(context.Background(), record)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken != "access_new" || refreshed.RefreshToken != "refresh_new" {
		t.Fatalf("unexpected refreshed record %+v", refreshed)
	}
	if manager.IsExpiringSoon(refreshed) {
		t.Fatalf("expected refreshed record to be fresh")
	}
}

func TestManager_RefreshCoalescesConcurrentCalls(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	manager := newTestManager(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		writeToken(w, map[string]any{"access_token": "access_new", "expires_in": 3600})
	})

	record := core.CredentialRecord{ID: "owner_1", ExternalUserID: "usr_1", RefreshToken: "refresh_old"}
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Refresh(context.Background(), record)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one token request, got %d", got)
	}
}

func TestManager_RefreshSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	manager := newTestManager(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeToken(w, map[string]any{"access_token": "access_new", "expires_in": 3600})
	})

	record := core.CredentialRecord{ID: "owner_1", ExternalUserID: "usr_1", RefreshToken: "refresh_old"}
	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := manager.Refresh(firstCtx, record)
		first <- err
	}()
	time.Sleep(30 * time.Millisecond)

	second := make(chan core.CredentialRecord, 1)
	secondErr := make(chan error, 1)
	go func() {
		refreshed, err := manager.Refresh(context.Background(), record)
		second <- refreshed
		secondErr <- err
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-secondErr; err != nil {
		t.Fatalf("expected waiting caller to get the shared refresh, got %v", err)
	}
	if got := (<-second).AccessToken; got != "access_new" {
		t.Fatalf("expected refreshed token, got %q", got)
	}
	if err := <-first; err != nil {
		t.Fatalf("expected first caller to share the result, got %v", err)
	}
}

func TestManager_RefreshWithoutTokenRequiresReconnect(t *testing.T) {
	manager := newTestManager(t, func(http.ResponseWriter, *http.Request) {})
	_, err := manager.RefreshAccessToken(context.Background(), " ")
	if !core.IsUpstreamAuth(err) || !strings.Contains(err.Error(), "reconnect") {
		t.Fatalf("expected reconnect error, got %v", err)
	}
}
