package sqlstore

import (
	"time"

	"github.com/goliatone/go-formsync/core"
	"github.com/uptrace/bun"
)

// credentialRecord holds sealed token values; see CredentialStore.
type credentialRecord struct {
	bun.BaseModel `bun:"table:formsync_credentials,alias:fcr"`

	ID             string     `bun:"id,pk"`
	ExternalUserID string     `bun:"external_user_id,notnull"`
	Email          string     `bun:"email,notnull"`
	AccessToken    string     `bun:"access_token,notnull"`
	RefreshToken   string     `bun:"refresh_token,notnull"`
	TokenExpiresAt time.Time  `bun:"token_expires_at,notnull"`
	Scopes         []string   `bun:"scopes,type:jsonb,notnull"`
	LastLogin      *time.Time `bun:"last_login,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:formsync_webhook_subscriptions,alias:fws"`

	ID             string     `bun:"id,pk"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	BaseID         string     `bun:"base_id,notnull"`
	OwnerUserID    string     `bun:"owner_user_id,notnull"`
	Cursor         int64      `bun:"cursor,notnull"`
	MACSecret      string     `bun:"mac_secret,notnull"`
	ExpirationTime *time.Time `bun:"expiration_time,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type formRecord struct {
	bun.BaseModel `bun:"table:formsync_forms,alias:ff"`

	ID          string          `bun:"id,pk"`
	OwnerUserID string          `bun:"owner_user_id,notnull"`
	BaseID      string          `bun:"base_id,notnull"`
	TableID     string          `bun:"table_id,notnull"`
	Title       string          `bun:"title,notnull"`
	Description string          `bun:"description,notnull"`
	Questions   []core.Question `bun:"questions,type:jsonb,notnull"`
	CreatedAt   time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type submissionRecord struct {
	bun.BaseModel `bun:"table:formsync_submissions,alias:fsb"`

	ID                     string         `bun:"id,pk"`
	FormID                 string         `bun:"form_id,notnull"`
	ExternalRecordID       string         `bun:"external_record_id,notnull"`
	Answers                map[string]any `bun:"answers,type:jsonb,notnull"`
	DeletedInExternalStore bool           `bun:"deleted_in_external_store,notnull"`
	ExternalUpdatedAt      *time.Time     `bun:"external_updated_at,nullzero"`
	CreatedAt              time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newSubscriptionRecord(in core.WebhookSubscription, now time.Time) *subscriptionRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &subscriptionRecord{
		ID:             in.ID,
		SubscriptionID: in.SubscriptionID,
		BaseID:         in.BaseID,
		OwnerUserID:    in.OwnerUserID,
		Cursor:         in.Cursor,
		MACSecret:      in.MACSecret,
		ExpirationTime: cloneTimePointer(in.ExpirationTime),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}
}

func (r *subscriptionRecord) toDomain() core.WebhookSubscription {
	if r == nil {
		return core.WebhookSubscription{}
	}
	return core.WebhookSubscription{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		BaseID:         r.BaseID,
		OwnerUserID:    r.OwnerUserID,
		Cursor:         r.Cursor,
		MACSecret:      r.MACSecret,
		ExpirationTime: cloneTimePointer(r.ExpirationTime),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func newFormRecord(in core.Form, now time.Time) *formRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	questions := append([]core.Question(nil), in.Questions...)
	if questions == nil {
		questions = []core.Question{}
	}
	return &formRecord{
		ID:          in.ID,
		OwnerUserID: in.OwnerUserID,
		BaseID:      in.BaseID,
		TableID:     in.TableID,
		Title:       in.Title,
		Description: in.Description,
		Questions:   questions,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
}

func (r *formRecord) toDomain() core.Form {
	if r == nil {
		return core.Form{}
	}
	return core.Form{
		ID:          r.ID,
		OwnerUserID: r.OwnerUserID,
		BaseID:      r.BaseID,
		TableID:     r.TableID,
		Title:       r.Title,
		Description: r.Description,
		Questions:   append([]core.Question(nil), r.Questions...),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newSubmissionRecord(in core.Submission, now time.Time) *submissionRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &submissionRecord{
		ID:                     in.ID,
		FormID:                 in.FormID,
		ExternalRecordID:       in.ExternalRecordID,
		Answers:                copyAnyMap(in.Answers),
		DeletedInExternalStore: in.DeletedInExternalStore,
		ExternalUpdatedAt:      cloneTimePointer(in.ExternalUpdatedAt),
		CreatedAt:              createdAt,
		UpdatedAt:              now,
	}
}

func (r *submissionRecord) toDomain() core.Submission {
	if r == nil {
		return core.Submission{}
	}
	return core.Submission{
		ID:                     r.ID,
		FormID:                 r.FormID,
		ExternalRecordID:       r.ExternalRecordID,
		Answers:                copyAnyMap(r.Answers),
		DeletedInExternalStore: r.DeletedInExternalStore,
		ExternalUpdatedAt:      cloneTimePointer(r.ExternalUpdatedAt),
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
