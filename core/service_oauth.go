package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthRedirect is the start of the authorization code flow. CodeVerifier
// must be kept by the caller (the HTTP layer stores it in a cookie) and
// handed back on callback.
type AuthRedirect struct {
	URL          string
	State        string
	CodeVerifier string
	VerifierTTL  time.Duration
}

// CallbackRequest carries the parameters of the OAuth redirect back.
type CallbackRequest struct {
	Code             string
	State            string
	CodeVerifier     string
	Error            string
	ErrorDescription string
}

type CallbackResult struct {
	Credential CredentialRecord
	Profile    Profile
	Created    bool
}

func (s *Service) Connect(ctx context.Context) (result AuthRedirect, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, map[string]any{})
	}()

	if err := s.requireDependency(s.tokenManager != nil, "token manager"); err != nil {
		return AuthRedirect{}, err
	}
	pkce, err := s.tokenManager.NewPKCE()
	if err != nil {
		return AuthRedirect{}, s.mapError(err)
	}
	state, err := generateOAuthState()
	if err != nil {
		return AuthRedirect{}, s.mapError(err)
	}
	if s.oauthStateStore != nil {
		if err := s.oauthStateStore.Save(ctx, OAuthStateRecord{
			State:        state,
			CodeVerifier: pkce.Verifier,
		}); err != nil {
			return AuthRedirect{}, s.mapError(err)
		}
	}
	return AuthRedirect{
		URL:          s.tokenManager.AuthorizationURL(state, pkce.Challenge),
		State:        state,
		CodeVerifier: pkce.Verifier,
		VerifierTTL:  s.config.VerifierCookieTTL(),
	}, nil
}

// CompleteCallback exchanges the authorization code, identifies the external
// account and upserts its credential record.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (result CallbackResult, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_callback", err, map[string]any{
			"owner_user_id": result.Credential.ID,
		})
	}()

	if upstream := strings.TrimSpace(req.Error); upstream != "" {
		message := "authorization was not granted"
		if desc := strings.TrimSpace(req.ErrorDescription); desc != "" {
			message = fmt.Sprintf("%s: %s", message, desc)
		}
		return CallbackResult{}, UpstreamAuthError(message, upstream, nil)
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return CallbackResult{}, BadInputError("authorization code is required")
	}
	if err := s.requireDependency(s.tokenManager != nil, "token manager"); err != nil {
		return CallbackResult{}, err
	}
	if err := s.requireDependency(s.recordStore != nil, "record store client"); err != nil {
		return CallbackResult{}, err
	}
	if err := s.requireDependency(s.credentials != nil, "credential store"); err != nil {
		return CallbackResult{}, err
	}

	verifier := strings.TrimSpace(req.CodeVerifier)
	if state := strings.TrimSpace(req.State); state != "" && s.oauthStateStore != nil {
		stored, consumeErr := s.oauthStateStore.Consume(ctx, state)
		if consumeErr == nil && verifier == "" {
			verifier = stored.CodeVerifier
		}
	}
	if verifier == "" {
		return CallbackResult{}, BadInputError("code verifier is required")
	}

	grant, err := s.tokenManager.ExchangeAuthorizationCode(ctx, code, verifier)
	if err != nil {
		return CallbackResult{}, err
	}
	profile, err := s.recordStore.WhoAmI(ctx, grant.AccessToken)
	if err != nil {
		return CallbackResult{}, err
	}
	if strings.TrimSpace(profile.ID) == "" {
		return CallbackResult{}, UpstreamTransientError("identity response did not include an account id", nil)
	}

	now := s.now()
	created := false
	record, err := s.credentials.GetByExternalUserID(ctx, profile.ID)
	if err != nil {
		if !IsNotFound(err) {
			return CallbackResult{}, s.mapError(err)
		}
		created = true
		record = CredentialRecord{
			ID:             uuid.NewString(),
			ExternalUserID: profile.ID,
			CreatedAt:      now,
		}
	}
	record = ApplyGrant(record, grant, now)
	if len(grant.Scopes) == 0 && len(profile.Scopes) > 0 {
		record.Scopes = append([]string(nil), profile.Scopes...)
	}
	record.Email = profile.Email
	record.LastLogin = &now

	saved, err := s.credentials.Upsert(ctx, record)
	if err != nil {
		return CallbackResult{}, s.mapError(err)
	}
	return CallbackResult{Credential: saved, Profile: profile, Created: created}, nil
}

// Credential returns the stored credential of an owner.
func (s *Service) Credential(ctx context.Context, ownerUserID string) (CredentialRecord, error) {
	if err := s.requireDependency(s.credentials != nil, "credential store"); err != nil {
		return CredentialRecord{}, err
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return CredentialRecord{}, BadInputError("owner user id is required")
	}
	record, err := s.credentials.Get(ctx, ownerUserID)
	if err != nil {
		return CredentialRecord{}, s.mapError(err)
	}
	return record, nil
}
