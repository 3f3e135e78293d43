package core

import (
	"context"
	"testing"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

func TestResolveConfig_LayersLoadedAndRuntimeValues(t *testing.T) {
	loader := mapRawLoader{values: map[string]any{
		"oauth": map[string]any{
			"client_id":    "client_from_env",
			"redirect_uri": "https://forms.example/api/auth/airtable/callback",
		},
		"webhooks": map[string]any{
			"public_url": "https://forms.example",
		},
		"sync": map[string]any{
			"max_pages": 5,
		},
	}}
	runtime := Config{}
	runtime.Sync.MaxPages = 7

	cfg, err := ResolveConfig(context.Background(), loader, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.OAuth.ClientID != "client_from_env" {
		t.Fatalf("expected loaded client id, got %q", cfg.OAuth.ClientID)
	}
	if cfg.Sync.MaxPages != 7 {
		t.Fatalf("expected runtime override for max pages, got %d", cfg.Sync.MaxPages)
	}
	if cfg.OAuth.TokenURL != DefaultTokenURL {
		t.Fatalf("expected default token url, got %q", cfg.OAuth.TokenURL)
	}
	if got := cfg.NotificationURL(); got != "https://forms.example/api/webhooks/airtable" {
		t.Fatalf("unexpected notification url %q", got)
	}
}

func TestResolveConfig_ServerStateFlagSurvivesLayering(t *testing.T) {
	runtime := Config{}
	runtime.OAuth.ServerState = true

	cfg, err := ResolveConfig(context.Background(), mapRawLoader{values: map[string]any{}}, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if !cfg.OAuth.ServerState {
		t.Fatalf("expected runtime server_state flag to be kept")
	}

	cfg, err = ResolveConfig(context.Background(), mapRawLoader{values: map[string]any{}}, Config{})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.OAuth.ServerState {
		t.Fatalf("expected server_state to default off")
	}
}

func TestNewService_UsesConfigProvider(t *testing.T) {
	provided := DefaultConfig()
	provided.ServiceName = "from-provider"
	svc, err := NewService(Config{}, WithConfigProvider(&fixedConfigProvider{cfg: provided}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if got := svc.Config().ServiceName; got != "from-provider" {
		t.Fatalf("expected provider config, got %q", got)
	}
}

func TestConfig_ValidateForServe(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateForServe(); err == nil {
		t.Fatalf("expected missing oauth settings to fail")
	}
	cfg.OAuth.ClientID = "client"
	cfg.OAuth.RedirectURI = "https://forms.example/callback"
	cfg.HTTP.SessionSecret = "secret"
	if err := cfg.ValidateForServe(); err != nil {
		t.Fatalf("expected valid serve config, got %v", err)
	}
	cfg.Sync.MaxPages = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative max pages to fail")
	}
}
