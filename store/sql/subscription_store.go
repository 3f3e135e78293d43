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

type SubscriptionStore struct {
	db      *bun.DB
	repo    repository.Repository[*subscriptionRecord]
	secrets core.SecretProvider
}

func NewSubscriptionStore(db *bun.DB, secrets core.SecretProvider) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
	}, nil
}

func (s *SubscriptionStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (core.WebhookSubscription, error) {
	if s == nil || s.db == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription id is required")
	}
	record := &subscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.subscription_id = ?", subscriptionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookSubscription{}, core.NotFoundError("subscription not found")
		}
		return core.WebhookSubscription{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *SubscriptionStore) FindByOwnerAndBase(ctx context.Context, ownerUserID string, baseID string) (core.WebhookSubscription, error) {
	if s == nil || s.repo == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("owner_user_id", "=", strings.TrimSpace(ownerUserID)),
		repository.SelectBy("base_id", "=", strings.TrimSpace(baseID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	if len(records) == 0 {
		return core.WebhookSubscription{}, core.NotFoundError("subscription not found")
	}
	return s.toDomain(ctx, records[0])
}

func (s *SubscriptionStore) Create(ctx context.Context, in core.WebhookSubscription) (core.WebhookSubscription, error) {
	if s == nil || s.db == nil {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.SubscriptionID = strings.TrimSpace(in.SubscriptionID)
	in.BaseID = strings.TrimSpace(in.BaseID)
	in.OwnerUserID = strings.TrimSpace(in.OwnerUserID)
	if in.SubscriptionID == "" {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: subscription id is required")
	}
	if in.BaseID == "" || in.OwnerUserID == "" {
		return core.WebhookSubscription{}, fmt.Errorf("sqlstore: base id and owner user id are required")
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	secret, err := security.SealString(ctx, s.secrets, in.MACSecret)
	if err != nil {
		return core.WebhookSubscription{}, err
	}

	record := newSubscriptionRecord(in, time.Now().UTC())
	record.MACSecret = secret
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.WebhookSubscription{}, core.ConflictError("subscription already exists")
		}
		return core.WebhookSubscription{}, err
	}
	return s.toDomain(ctx, record)
}

// AdvanceCursor moves the cursor forward. The comparison runs in the UPDATE
// itself so concurrent writers cannot move it backwards.
func (s *SubscriptionStore) AdvanceCursor(ctx context.Context, subscriptionID string, cursor int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return false, fmt.Errorf("sqlstore: subscription id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("cursor = ?", cursor).
		Set("updated_at = ?", time.Now().UTC()).
		Where("subscription_id = ?", subscriptionID).
		Where("cursor < ?", cursor).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SubscriptionStore) toDomain(ctx context.Context, record *subscriptionRecord) (core.WebhookSubscription, error) {
	out := record.toDomain()
	secret, err := security.OpenString(ctx, s.secrets, record.MACSecret)
	if err != nil {
		return core.WebhookSubscription{}, err
	}
	out.MACSecret = secret
	return out, nil
}
