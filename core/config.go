package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAuthorizeURL   = "https://airtable.com/oauth2/v1/authorize"
	DefaultTokenURL       = "https://airtable.com/oauth2/v1/token"
	DefaultAPIBaseURL     = "https://api.airtable.com/v0"
	DefaultWebhookPath    = "/api/webhooks/airtable"
	DefaultRefreshSkew    = 5 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
)

var DefaultScopes = []string{
	"data.records:read",
	"data.records:write",
	"schema.bases:read",
	"webhook:manage",
}

type OAuthConfig struct {
	AuthorizeURL             string   `koanf:"authorize_url" mapstructure:"authorize_url"`
	TokenURL                 string   `koanf:"token_url" mapstructure:"token_url"`
	ClientID                 string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret             string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI              string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes                   []string `koanf:"scopes" mapstructure:"scopes"`
	StateTTLSeconds          int      `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds"`
	VerifierCookieTTLSeconds int      `koanf:"verifier_cookie_ttl_seconds" mapstructure:"verifier_cookie_ttl_seconds"`
	// ServerState also keeps the PKCE verifier in process memory, keyed by
	// state, for callbacks that arrive without the verifier cookie.
	ServerState bool `koanf:"server_state" mapstructure:"server_state"`
}

type APIConfig struct {
	BaseURL               string `koanf:"base_url" mapstructure:"base_url"`
	RequestTimeoutSeconds int    `koanf:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	RefreshSkewSeconds    int    `koanf:"refresh_skew_seconds" mapstructure:"refresh_skew_seconds"`
}

type WebhooksConfig struct {
	// PublicURL is the externally reachable origin the store posts to.
	PublicURL string `koanf:"public_url" mapstructure:"public_url"`
	Path      string `koanf:"path" mapstructure:"path"`
	QueueSize int    `koanf:"queue_size" mapstructure:"queue_size"`
	Workers   int    `koanf:"workers" mapstructure:"workers"`
	VerifyMAC bool   `koanf:"verify_mac" mapstructure:"verify_mac"`
}

type SyncConfig struct {
	MaxPages       int `koanf:"max_pages" mapstructure:"max_pages"`
	LockTTLSeconds int `koanf:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
}

type HTTPConfig struct {
	Address           string `koanf:"address" mapstructure:"address"`
	FrontendURL       string `koanf:"frontend_url" mapstructure:"frontend_url"`
	SessionSecret     string `koanf:"session_secret" mapstructure:"session_secret"`
	SessionTTLSeconds int    `koanf:"session_ttl_seconds" mapstructure:"session_ttl_seconds"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" mapstructure:"addr"`
	Password string `koanf:"password" mapstructure:"password"`
	DB       int    `koanf:"db" mapstructure:"db"`
}

type SecurityConfig struct {
	AppKey string `koanf:"app_key" mapstructure:"app_key"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig    `koanf:"oauth" mapstructure:"oauth"`
	API         APIConfig      `koanf:"api" mapstructure:"api"`
	Webhooks    WebhooksConfig `koanf:"webhooks" mapstructure:"webhooks"`
	Sync        SyncConfig     `koanf:"sync" mapstructure:"sync"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
	Database    DatabaseConfig `koanf:"database" mapstructure:"database"`
	Redis       RedisConfig    `koanf:"redis" mapstructure:"redis"`
	Security    SecurityConfig `koanf:"security" mapstructure:"security"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "formsync",
		OAuth: OAuthConfig{
			AuthorizeURL:             DefaultAuthorizeURL,
			TokenURL:                 DefaultTokenURL,
			Scopes:                   append([]string(nil), DefaultScopes...),
			StateTTLSeconds:          900,
			VerifierCookieTTLSeconds: 600,
		},
		API: APIConfig{
			BaseURL:               DefaultAPIBaseURL,
			RequestTimeoutSeconds: int(DefaultRequestTimeout / time.Second),
			RefreshSkewSeconds:    int(DefaultRefreshSkew / time.Second),
		},
		Webhooks: WebhooksConfig{
			Path:      DefaultWebhookPath,
			QueueSize: 256,
			Workers:   2,
		},
		Sync: SyncConfig{
			MaxPages:       20,
			LockTTLSeconds: 30,
		},
		HTTP: HTTPConfig{
			Address:           ":5000",
			FrontendURL:       "http://localhost:5173",
			SessionTTLSeconds: 7 * 24 * 60 * 60,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:formsync.db?cache=shared&_foreign_keys=on",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.API.RequestTimeoutSeconds < 0 || c.API.RefreshSkewSeconds < 0 {
		return fmt.Errorf("core: api timeouts must not be negative")
	}
	if c.Webhooks.QueueSize < 0 || c.Webhooks.Workers < 0 {
		return fmt.Errorf("core: webhook queue settings must not be negative")
	}
	if c.Sync.MaxPages < 0 || c.Sync.LockTTLSeconds < 0 {
		return fmt.Errorf("core: sync settings must not be negative")
	}
	return nil
}

// ValidateForServe checks the settings an HTTP deployment cannot run
// without.
func (c Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	missing := []string{}
	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		missing = append(missing, "oauth.client_id")
	}
	if strings.TrimSpace(c.OAuth.RedirectURI) == "" {
		missing = append(missing, "oauth.redirect_uri")
	}
	if strings.TrimSpace(c.HTTP.SessionSecret) == "" {
		missing = append(missing, "http.session_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("core: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return secondsOr(c.API.RequestTimeoutSeconds, DefaultRequestTimeout)
}

func (c Config) RefreshSkew() time.Duration {
	return secondsOr(c.API.RefreshSkewSeconds, DefaultRefreshSkew)
}

func (c Config) StateTTL() time.Duration {
	return secondsOr(c.OAuth.StateTTLSeconds, defaultOAuthStateTTL)
}

func (c Config) VerifierCookieTTL() time.Duration {
	return secondsOr(c.OAuth.VerifierCookieTTLSeconds, 10*time.Minute)
}

func (c Config) SyncLockTTL() time.Duration {
	return secondsOr(c.Sync.LockTTLSeconds, 30*time.Second)
}

func (c Config) SessionTTL() time.Duration {
	return secondsOr(c.HTTP.SessionTTLSeconds, 7*24*time.Hour)
}

// NotificationURL is the absolute webhook receiver URL registered upstream.
func (c Config) NotificationURL() string {
	origin := strings.TrimRight(strings.TrimSpace(c.Webhooks.PublicURL), "/")
	if origin == "" {
		return ""
	}
	path := strings.TrimSpace(c.Webhooks.Path)
	if path == "" {
		path = DefaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return origin + path
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
