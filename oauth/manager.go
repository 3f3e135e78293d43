// Package oauth runs the authorization code flow with PKCE against the
// record store's OAuth authority and refreshes delegated credentials.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const defaultTokenRequestTimeout = 30 * time.Second

type Config struct {
	AuthorizeURL        string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	RedirectURI         string
	Scopes              []string
	TokenRequestTimeout time.Duration
	HTTPClient          *http.Client
	Logger              core.Logger
	Now                 func() time.Time
}

// ConfigFromCore maps the service configuration onto manager settings.
func ConfigFromCore(cfg core.Config) Config {
	return Config{
		AuthorizeURL:        cfg.OAuth.AuthorizeURL,
		TokenURL:            cfg.OAuth.TokenURL,
		ClientID:            cfg.OAuth.ClientID,
		ClientSecret:        cfg.OAuth.ClientSecret,
		RedirectURI:         cfg.OAuth.RedirectURI,
		Scopes:              append([]string(nil), cfg.OAuth.Scopes...),
		TokenRequestTimeout: cfg.RequestTimeout(),
	}
}

// Manager is the token lifecycle manager. Refreshes of the same external
// account are coalesced so a rotating refresh token is spent once.
type Manager struct {
	oauth        *oauth2.Config
	httpClient   *http.Client
	tokenTimeout time.Duration
	logger       core.Logger
	now        func() time.Time
	group      singleflight.Group
}

func NewManager(cfg Config) (*Manager, error) {
	cfg.AuthorizeURL = strings.TrimSpace(cfg.AuthorizeURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = core.DefaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = core.DefaultTokenURL
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth: client id is required")
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	authStyle := oauth2.AuthStyleInHeader
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		authStyle = oauth2.AuthStyleInParams
	}

	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURI),
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
		},
		httpClient:   httpClient,
		tokenTimeout: cfg.TokenRequestTimeout,
		logger:       glog.Ensure(cfg.Logger),
		now:          cfg.Now,
	}, nil
}

// NewPKCE returns a fresh verifier and its S256 challenge.
func (m *Manager) NewPKCE() (core.PKCE, error) {
	verifier := oauth2.GenerateVerifier()
	return core.PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    "S256",
	}, nil
}

func (m *Manager) AuthorizationURL(state string, codeChallenge string) string {
	return m.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeAuthorizationCode trades a code for tokens. A rejected code
// returns an upstream auth error carrying the authority's error code.
func (m *Manager) ExchangeAuthorizationCode(ctx context.Context, code string, codeVerifier string) (core.TokenGrant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenGrant{}, core.BadInputError("authorization code is required")
	}
	token, err := m.oauth.Exchange(m.clientContext(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return core.TokenGrant{}, mapTokenError("authorization code exchange failed", err)
	}
	return m.grantFromToken(token), nil
}

// RefreshAccessToken redeems a refresh token. Rejection is terminal for the
// credential and surfaces as an upstream auth error.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, core.UpstreamAuthError("reconnect required: no refresh token", "invalid_grant", nil)
	}
	source := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return core.TokenGrant{}, mapTokenError("token refresh failed", err)
	}
	return m.grantFromToken(token), nil
}

// Refresh refreshes record and returns the updated record without
// persisting it. The shared token request is detached from the first
// caller's cancellation and bounded by the token request timeout.
func (m *Manager) Refresh(ctx context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := strings.TrimSpace(record.ExternalUserID)
	if key == "" {
		key = record.ID
	}
	value, err, shared := m.group.Do(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.tokenTimeout)
		defer cancel()
		grant, err := m.RefreshAccessToken(flightCtx, record.RefreshToken)
		if err != nil {
			return nil, err
		}
		return core.ApplyGrant(record, grant, m.now()), nil
	})
	if err != nil {
		m.logger.Warn("credential refresh failed", "owner_user_id", record.ID, "error", err.Error())
		return core.CredentialRecord{}, err
	}
	refreshed := value.(core.CredentialRecord)
	if shared {
		refreshed = refreshed.Clone()
	}
	m.logger.Debug("credential refreshed", "owner_user_id", record.ID, "shared", shared)
	return refreshed, nil
}

// IsExpiringSoon applies the default refresh skew.
func (m *Manager) IsExpiringSoon(record core.CredentialRecord) bool {
	return core.IsExpiringSoon(record, m.now(), core.DefaultRefreshSkew)
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) grantFromToken(token *oauth2.Token) core.TokenGrant {
	grant := core.TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	switch {
	case token.ExpiresIn > 0:
		grant.ExpiresIn = time.Duration(token.ExpiresIn) * time.Second
	case !token.Expiry.IsZero():
		grant.ExpiresIn = time.Until(token.Expiry)
	}
	if scope, ok := token.Extra("scope").(string); ok {
		grant.Scopes = strings.Fields(scope)
	}
	return grant
}

// mapTokenError keeps rejected grants terminal. Throttling, timeouts and
// server failures are transient.
func mapTokenError(message string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= 400 && status < 500 && !transientTokenStatus(status) {
			code := strings.TrimSpace(retrieveErr.ErrorCode)
			if code == "" {
				code = "invalid_grant"
			}
			detail := message
			if desc := strings.TrimSpace(retrieveErr.ErrorDescription); desc != "" {
				detail = message + ": " + desc
			}
			return core.UpstreamAuthError(detail, code, err)
		}
		return core.UpstreamTransientError(fmt.Sprintf("%s: status %d", message, status), err)
	}
	return core.UpstreamTransientError(message, err)
}

func transientTokenStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}

var _ core.TokenManager = (*Manager)(nil)
