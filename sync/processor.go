// Package sync applies webhook payload pages to local submissions and
// advances the subscription cursor once a page is fully applied.
package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultMaxPages = 20

// Result summarizes one processing run.
type Result struct {
	SubscriptionID     string
	StartCursor        int64
	Cursor             int64
	Pages              int
	Payloads           int
	MarkedDeleted      int
	UpdatedSubmissions int
	IgnoredCreated     int
	Err                error
}

// Processor is the incremental sync processor. Runs for the same
// subscription are serialized through Locker.
type Processor struct {
	Subscriptions core.SubscriptionStore
	Credentials   core.CredentialStore
	Forms         core.FormStore
	Submissions   core.SubmissionStore
	API           core.RecordStoreAPI
	Locker        core.KeyLocker
	MaxPages      int
	LockTTL       time.Duration
	Logger        core.Logger
	Now           func() time.Time
}

func NewProcessor(
	subscriptions core.SubscriptionStore,
	credentials core.CredentialStore,
	forms core.FormStore,
	submissions core.SubmissionStore,
	api core.RecordStoreAPI,
) *Processor {
	return &Processor{
		Subscriptions: subscriptions,
		Credentials:   credentials,
		Forms:         forms,
		Submissions:   submissions,
		API:           api,
		Locker:        core.NewMemoryKeyLocker(),
		MaxPages:      defaultMaxPages,
		Logger:        glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ProcessNotification runs Process and swallows its error after logging
// it. It is safe to call from background workers.
func (p *Processor) ProcessNotification(ctx context.Context, subscriptionID string) Result {
	result, err := p.Process(ctx, subscriptionID)
	if err != nil {
		result.Err = err
		if core.IsNotFound(err) {
			p.logger().Warn("sync skipped",
				"subscription_id", subscriptionID,
				"error", err.Error(),
			)
			return result
		}
		p.logger().Error("sync failed",
			"subscription_id", subscriptionID,
			"cursor", result.Cursor,
			"error", err.Error(),
		)
	}
	return result
}

// Process fetches payload pages from the stored cursor and applies them in
// order. The cursor is persisted after each page whose effects were all
// applied, and only when it moves forward.
func (p *Processor) Process(ctx context.Context, subscriptionID string) (Result, error) {
	result := Result{SubscriptionID: strings.TrimSpace(subscriptionID)}
	if err := p.validate(); err != nil {
		return result, err
	}
	if result.SubscriptionID == "" {
		return result, core.BadInputError("subscription id is required")
	}

	err := core.WithKeyLock(ctx, p.Locker, "sync:"+result.SubscriptionID, p.LockTTL, func(ctx context.Context) error {
		return p.run(ctx, &result)
	})
	return result, err
}

func (p *Processor) run(ctx context.Context, result *Result) error {
	subscription, err := p.Subscriptions.GetBySubscriptionID(ctx, result.SubscriptionID)
	if err != nil {
		return err
	}
	credential, err := p.Credentials.Get(ctx, subscription.OwnerUserID)
	if err != nil {
		return err
	}

	result.StartCursor = subscription.Cursor
	result.Cursor = subscription.Cursor
	mappings := newFormMappings(p.Forms, subscription)

	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	for result.Pages < maxPages {
		page, err := p.API.ListWebhookPayloads(ctx, credential, subscription.BaseID, subscription.SubscriptionID, result.Cursor)
		if err != nil {
			return err
		}
		result.Pages++

		for index, payload := range page.Payloads {
			if err := p.applyPayload(ctx, payload, mappings, result); err != nil {
				p.logger().Error("sync payload failed",
					"subscription_id", result.SubscriptionID,
					"cursor", result.Cursor,
					"event_index", index,
					"base_transaction_number", payload.BaseTransactionNumber,
					"error", err.Error(),
				)
				return fmt.Errorf("sync: apply payload %d at cursor %d: %w", index, result.Cursor, err)
			}
			result.Payloads++
		}

		if page.Cursor > result.Cursor {
			if _, err := p.Subscriptions.AdvanceCursor(ctx, result.SubscriptionID, page.Cursor); err != nil {
				return err
			}
			result.Cursor = page.Cursor
		} else if page.MightHaveMore {
			p.logger().Warn("sync cursor did not move",
				"subscription_id", result.SubscriptionID,
				"cursor", result.Cursor,
			)
			break
		}
		if !page.MightHaveMore {
			break
		}
	}

	p.logger().Info("sync applied",
		"subscription_id", result.SubscriptionID,
		"start_cursor", result.StartCursor,
		"cursor", result.Cursor,
		"pages", result.Pages,
		"payloads", result.Payloads,
		"marked_deleted", result.MarkedDeleted,
		"updated_submissions", result.UpdatedSubmissions,
	)
	return nil
}

func (p *Processor) applyPayload(ctx context.Context, payload core.WebhookPayload, mappings *formMappings, result *Result) error {
	for _, tableID := range sortedKeys(payload.ChangedTablesByID) {
		changes := payload.ChangedTablesByID[tableID]

		if len(changes.DestroyedRecordIDs) > 0 {
			changed, err := p.Submissions.MarkDeleted(ctx, changes.DestroyedRecordIDs)
			if err != nil {
				return err
			}
			result.MarkedDeleted += changed
		}

		if len(changes.ChangedRecordsByID) > 0 {
			forms, err := mappings.forTable(ctx, tableID)
			if err != nil {
				return err
			}
			for _, recordID := range sortedKeys(changes.ChangedRecordsByID) {
				cells := changes.ChangedRecordsByID[recordID].Current.CellValuesByFieldID
				for _, form := range forms {
					answers := answersFromCells(form.keys, cells)
					if len(answers) == 0 {
						continue
					}
					merged, err := p.Submissions.MergeAnswers(ctx, form.id, recordID, answers, p.now())
					if err != nil {
						return err
					}
					if merged {
						result.UpdatedSubmissions++
					}
				}
			}
		}

		result.IgnoredCreated += len(changes.CreatedRecordsByID)
	}
	return nil
}

func (p *Processor) validate() error {
	if p == nil {
		return core.InternalError("sync: processor is not configured", nil)
	}
	missing := []string{}
	if p.Subscriptions == nil {
		missing = append(missing, "subscription store")
	}
	if p.Credentials == nil {
		missing = append(missing, "credential store")
	}
	if p.Submissions == nil {
		missing = append(missing, "submission store")
	}
	if p.API == nil {
		missing = append(missing, "record store client")
	}
	if len(missing) > 0 {
		return core.InternalError("sync: processor requires "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func (p *Processor) logger() core.Logger {
	return glog.Ensure(p.Logger)
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now()
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
