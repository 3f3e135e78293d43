package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/security"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore persists owner credentials. Access and refresh tokens are
// sealed with the configured secret provider before they reach the table.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets core.SecretProvider
}

// NewCredentialStore builds the store. A nil secrets provider stores tokens
// as plain text.
func NewCredentialStore(db *bun.DB, secrets core.SecretProvider) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
	}, nil
}

func (s *CredentialStore) Get(ctx context.Context, ownerUserID string) (core.CredentialRecord, error) {
	if s == nil || s.db == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: owner user id is required")
	}

	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", ownerUserID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CredentialRecord{}, core.NotFoundError("credential not found")
		}
		return core.CredentialRecord{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *CredentialStore) GetByExternalUserID(ctx context.Context, externalUserID string) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("external_user_id", "=", strings.TrimSpace(externalUserID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	if len(records) == 0 {
		return core.CredentialRecord{}, core.NotFoundError("credential not found")
	}
	return s.toDomain(ctx, records[0])
}

// Upsert writes record keyed by its external user id. An existing row keeps
// its local id so that owner references stay valid across logins.
func (s *CredentialStore) Upsert(ctx context.Context, in core.CredentialRecord) (core.CredentialRecord, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.ExternalUserID = strings.TrimSpace(in.ExternalUserID)
	if in.ExternalUserID == "" {
		return core.CredentialRecord{}, fmt.Errorf("sqlstore: external user id is required")
	}
	now := time.Now().UTC()

	record, err := s.sealRecord(ctx, in, now)
	if err != nil {
		return core.CredentialRecord{}, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &credentialRecord{}
		selectErr := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.external_user_id = ?", in.ExternalUserID).
			Limit(1).
			Scan(ctx)
		if selectErr != nil && !errors.Is(selectErr, sql.ErrNoRows) {
			return selectErr
		}
		if errors.Is(selectErr, sql.ErrNoRows) {
			inserted, createErr := s.repo.CreateTx(ctx, tx, record)
			if createErr != nil {
				if isUniqueViolation(createErr) {
					return core.ConflictError("credential already exists")
				}
				return createErr
			}
			record = inserted
			return nil
		}

		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("email", "access_token", "refresh_token", "token_expires_at", "scopes", "last_login", "updated_at").
			WherePK().
			Exec(ctx)
		return updateErr
	})
	if err != nil {
		return core.CredentialRecord{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *CredentialStore) UpdateTokens(ctx context.Context, in core.CredentialRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return fmt.Errorf("sqlstore: credential id is required")
	}
	accessToken, err := security.SealString(ctx, s.secrets, in.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := security.SealString(ctx, s.secrets, in.RefreshToken)
	if err != nil {
		return err
	}
	scopes := append([]string(nil), in.Scopes...)
	if scopes == nil {
		scopes = []string{}
	}

	result, err := s.db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("access_token = ?", accessToken).
		Set("refresh_token = ?", refreshToken).
		Set("token_expires_at = ?", in.TokenExpiresAt.UTC()).
		Set("scopes = ?", jsonText(scopes)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.NotFoundError("credential not found")
	}
	return nil
}

func (s *CredentialStore) sealRecord(ctx context.Context, in core.CredentialRecord, now time.Time) (*credentialRecord, error) {
	accessToken, err := security.SealString(ctx, s.secrets, in.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := security.SealString(ctx, s.secrets, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	scopes := append([]string(nil), in.Scopes...)
	if scopes == nil {
		scopes = []string{}
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return &credentialRecord{
		ID:             id,
		ExternalUserID: in.ExternalUserID,
		Email:          in.Email,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: in.TokenExpiresAt.UTC(),
		Scopes:         scopes,
		LastLogin:      cloneTimePointer(in.LastLogin),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}, nil
}

func (s *CredentialStore) toDomain(ctx context.Context, record *credentialRecord) (core.CredentialRecord, error) {
	accessToken, err := security.OpenString(ctx, s.secrets, record.AccessToken)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	refreshToken, err := security.OpenString(ctx, s.secrets, record.RefreshToken)
	if err != nil {
		return core.CredentialRecord{}, err
	}
	return core.CredentialRecord{
		ID:             record.ID,
		ExternalUserID: record.ExternalUserID,
		Email:          record.Email,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: record.TokenExpiresAt.UTC(),
		Scopes:         append([]string(nil), record.Scopes...),
		LastLogin:      cloneTimePointer(record.LastLogin),
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}, nil
}
