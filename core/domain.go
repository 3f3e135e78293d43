package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/rules"
)

// CredentialRecord is the delegated OAuth credential of a local owner.
// TokenExpiresAt is the only source of truth for token validity.
type CredentialRecord struct {
	ID             string
	ExternalUserID string
	Email          string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	Scopes         []string
	LastLogin      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c CredentialRecord) Clone() CredentialRecord {
	cloned := c
	cloned.Scopes = append([]string(nil), c.Scopes...)
	cloned.LastLogin = cloneTime(c.LastLogin)
	return cloned
}

// TokenGrant is a token endpoint response. RefreshToken is empty when the
// endpoint did not rotate it; ExpiresIn is relative to the time of receipt.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	Scopes       []string
}

// Profile identifies the external account behind an access token.
type Profile struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Scopes []string `json:"scopes"`
}

// WebhookSubscription is a registered external change feed for one base.
// Cursor starts at zero and never decreases.
type WebhookSubscription struct {
	ID             string
	SubscriptionID string
	BaseID         string
	OwnerUserID    string
	Cursor         int64
	MACSecret      string
	ExpirationTime *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Form struct {
	ID          string     `json:"id"`
	OwnerUserID string     `json:"ownerId"`
	BaseID      string     `json:"baseId"`
	TableID     string     `json:"tableId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Question maps a form answer to an external field. Visibility is evaluated
// against the answers of the same submission.
type Question struct {
	QuestionKey string         `json:"questionKey"`
	FieldID     string         `json:"fieldId"`
	Label       string         `json:"label"`
	Type        string         `json:"type"`
	Required    bool           `json:"required"`
	Options     []string       `json:"options,omitempty"`
	Visibility  *rules.RuleSet `json:"conditionalRules,omitempty"`
}

// QuestionKeysByFieldID indexes the form questions by external field id.
func (f Form) QuestionKeysByFieldID() map[string]string {
	out := make(map[string]string, len(f.Questions))
	for _, question := range f.Questions {
		fieldID := strings.TrimSpace(question.FieldID)
		if fieldID == "" {
			continue
		}
		out[fieldID] = question.QuestionKey
	}
	return out
}

type Submission struct {
	ID                     string         `json:"id"`
	FormID                 string         `json:"formId"`
	ExternalRecordID       string         `json:"externalRecordId"`
	Answers                map[string]any `json:"answers"`
	DeletedInExternalStore bool           `json:"deletedInExternalStore"`
	ExternalUpdatedAt      *time.Time     `json:"externalUpdatedAt,omitempty"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

type Table struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

type Field struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// ExternalRecord is a record created in the external table.
type ExternalRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// WebhookRegistration is returned when a webhook is created upstream.
type WebhookRegistration struct {
	ID             string     `json:"id"`
	MACSecret      string     `json:"macSecretBase64"`
	ExpirationTime *time.Time `json:"expirationTime"`
}

// PayloadPage is one page of the webhook payload feed. Cursor is the
// position to resume from after every payload in the page is applied.
type PayloadPage struct {
	Payloads      []WebhookPayload `json:"payloads"`
	Cursor        int64            `json:"cursor"`
	MightHaveMore bool             `json:"mightHaveMore"`
}

type WebhookPayload struct {
	Timestamp             string                  `json:"timestamp"`
	BaseTransactionNumber int64                   `json:"baseTransactionNumber"`
	ActionMetadata        map[string]any          `json:"actionMetadata,omitempty"`
	ChangedTablesByID     map[string]TableChanges `json:"changedTablesById,omitempty"`
}

type TableChanges struct {
	CreatedRecordsByID map[string]json.RawMessage `json:"createdRecordsById,omitempty"`
	ChangedRecordsByID map[string]RecordChange    `json:"changedRecordsById,omitempty"`
	DestroyedRecordIDs []string                   `json:"destroyedRecordIds,omitempty"`
}

type RecordChange struct {
	Current  RecordCells  `json:"current"`
	Previous *RecordCells `json:"previous,omitempty"`
}

type RecordCells struct {
	CellValuesByFieldID map[string]any `json:"cellValuesByFieldId"`
}

// Notification is the body the external store posts to the webhook
// receiver. It carries no change data.
type Notification struct {
	Base      NotificationRef `json:"base"`
	Webhook   NotificationRef `json:"webhook"`
	Timestamp string          `json:"timestamp"`
}

type NotificationRef struct {
	ID string `json:"id"`
}

func cloneTime(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
