package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// CredentialStore persists owner credentials. Get returns a NotFound error
// when no record exists.
type CredentialStore interface {
	Get(ctx context.Context, ownerUserID string) (CredentialRecord, error)
	GetByExternalUserID(ctx context.Context, externalUserID string) (CredentialRecord, error)
	// Upsert inserts or replaces the record keyed by ExternalUserID.
	Upsert(ctx context.Context, record CredentialRecord) (CredentialRecord, error)
	// UpdateTokens writes the token fields of record in a single write.
	UpdateTokens(ctx context.Context, record CredentialRecord) error
}

type SubscriptionStore interface {
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (WebhookSubscription, error)
	FindByOwnerAndBase(ctx context.Context, ownerUserID string, baseID string) (WebhookSubscription, error)
	Create(ctx context.Context, subscription WebhookSubscription) (WebhookSubscription, error)
	// AdvanceCursor persists cursor only if it is strictly greater than the
	// stored value and reports whether it did.
	AdvanceCursor(ctx context.Context, subscriptionID string, cursor int64) (bool, error)
}

type FormStore interface {
	Create(ctx context.Context, form Form) (Form, error)
	Get(ctx context.Context, formID string) (Form, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]Form, error)
	ListByBase(ctx context.Context, baseID string) ([]Form, error)
}

type SubmissionStore interface {
	Create(ctx context.Context, submission Submission) (Submission, error)
	ListByForm(ctx context.Context, formID string) ([]Submission, error)
	// MarkDeleted flags submissions bound to the given external record ids
	// and returns how many rows changed. Unknown ids are ignored.
	MarkDeleted(ctx context.Context, externalRecordIDs []string) (int, error)
	// MergeAnswers merges answers into the submission bound to the external
	// record of formID. It returns false when no submission matches.
	MergeAnswers(ctx context.Context, formID string, externalRecordID string, answers map[string]any, at time.Time) (bool, error)
}

// TokenManager runs the OAuth authorization code flow with PKCE.
type TokenManager interface {
	NewPKCE() (PKCE, error)
	AuthorizationURL(state string, codeChallenge string) string
	ExchangeAuthorizationCode(ctx context.Context, code string, codeVerifier string) (TokenGrant, error)
}

// PKCE holds a code verifier and its S256 challenge.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// RecordStoreAPI is the typed external record-store surface. Calls that take
// a credential refresh and persist it as needed.
type RecordStoreAPI interface {
	WhoAmI(ctx context.Context, accessToken string) (Profile, error)
	ListBases(ctx context.Context, credential CredentialRecord) ([]Base, error)
	ListTables(ctx context.Context, credential CredentialRecord, baseID string) ([]Table, error)
	ListFields(ctx context.Context, credential CredentialRecord, baseID string, tableID string) ([]Field, error)
	CreateRecord(ctx context.Context, credential CredentialRecord, baseID string, tableID string, fields map[string]any) (ExternalRecord, error)
	CreateWebhook(ctx context.Context, credential CredentialRecord, baseID string, notificationURL string) (WebhookRegistration, error)
	ListWebhookPayloads(ctx context.Context, credential CredentialRecord, baseID string, webhookID string, cursor int64) (PayloadPage, error)
}

// NotificationDispatcher schedules asynchronous processing of a
// subscription. Dispatching an already pending subscription is a no-op.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, subscriptionID string) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// KeyLocker serializes work per key. Acquire blocks until the lock is held
// or ctx is done.
type KeyLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// FormValidator checks a form definition before it is stored.
type FormValidator interface {
	ValidateForm(form Form) error
}

// SecretProvider seals credential tokens before they are persisted.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}
