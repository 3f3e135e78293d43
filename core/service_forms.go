package core

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/rules"
	"github.com/google/uuid"
)

// FormInput is the owner supplied definition of a form.
type FormInput struct {
	BaseID      string     `json:"baseId"`
	TableID     string     `json:"tableId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Questions   []Question `json:"questions"`
}

// CreateForm validates and stores a form, then makes sure the owner has a
// webhook subscription for the form's base. Registration failures are
// logged and do not fail the form.
func (s *Service) CreateForm(ctx context.Context, ownerUserID string, in FormInput) (form Form, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "create_form", err, map[string]any{
			"form_id":       form.ID,
			"owner_user_id": ownerUserID,
			"base_id":       in.BaseID,
		})
	}()

	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return Form{}, BadInputError("owner user id is required")
	}
	if err := s.requireDependency(s.forms != nil, "form store"); err != nil {
		return Form{}, err
	}

	now := s.now()
	candidate := Form{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		BaseID:      strings.TrimSpace(in.BaseID),
		TableID:     strings.TrimSpace(in.TableID),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Questions:   normalizeQuestions(in.Questions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.formValidator != nil {
		if err := s.formValidator.ValidateForm(candidate); err != nil {
			return Form{}, err
		}
	}

	form, err = s.forms.Create(ctx, candidate)
	if err != nil {
		return Form{}, s.mapError(err)
	}

	if _, subErr := s.EnsureSubscription(ctx, ownerUserID, form.BaseID); subErr != nil {
		s.logWarn(ctx, "webhook registration failed", map[string]any{
			"form_id":       form.ID,
			"owner_user_id": ownerUserID,
			"base_id":       form.BaseID,
			"error":         subErr.Error(),
		})
	}
	return form, nil
}

// EnsureSubscription returns the owner's subscription for baseID, creating
// the upstream webhook first when none exists.
func (s *Service) EnsureSubscription(ctx context.Context, ownerUserID string, baseID string) (WebhookSubscription, error) {
	if err := s.requireDependency(s.subscriptions != nil, "subscription store"); err != nil {
		return WebhookSubscription{}, err
	}
	if err := s.requireDependency(s.recordStore != nil, "record store client"); err != nil {
		return WebhookSubscription{}, err
	}
	notificationURL := s.config.NotificationURL()
	if notificationURL == "" {
		return WebhookSubscription{}, BadInputError("webhooks.public_url is not configured")
	}

	var subscription WebhookSubscription
	key := "subscription:" + ownerUserID + ":" + baseID
	err := WithKeyLock(ctx, s.keyLocker, key, s.config.SyncLockTTL(), func(ctx context.Context) error {
		existing, err := s.subscriptions.FindByOwnerAndBase(ctx, ownerUserID, baseID)
		if err == nil {
			subscription = existing
			return nil
		}
		if !IsNotFound(err) {
			return err
		}

		credential, err := s.Credential(ctx, ownerUserID)
		if err != nil {
			return err
		}
		registration, err := s.recordStore.CreateWebhook(ctx, credential, baseID, notificationURL)
		if err != nil {
			return err
		}
		created, err := s.subscriptions.Create(ctx, WebhookSubscription{
			ID:             uuid.NewString(),
			SubscriptionID: registration.ID,
			BaseID:         baseID,
			OwnerUserID:    ownerUserID,
			MACSecret:      registration.MACSecret,
			ExpirationTime: cloneTime(registration.ExpirationTime),
		})
		if err != nil {
			return err
		}
		subscription = created
		s.logInfo(ctx, "webhook subscription created", map[string]any{
			"subscription_id": created.SubscriptionID,
			"base_id":         baseID,
			"owner_user_id":   ownerUserID,
		})
		return nil
	})
	if err != nil {
		return WebhookSubscription{}, s.mapError(err)
	}
	return subscription, nil
}

func (s *Service) GetForm(ctx context.Context, formID string) (Form, error) {
	if err := s.requireDependency(s.forms != nil, "form store"); err != nil {
		return Form{}, err
	}
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return Form{}, BadInputError("form id is required")
	}
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return Form{}, s.mapError(err)
	}
	return form, nil
}

func (s *Service) ListForms(ctx context.Context, ownerUserID string) ([]Form, error) {
	if err := s.requireDependency(s.forms != nil, "form store"); err != nil {
		return nil, err
	}
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, BadInputError("owner user id is required")
	}
	forms, err := s.forms.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return forms, nil
}

func normalizeQuestions(in []Question) []Question {
	out := make([]Question, 0, len(in))
	for _, question := range in {
		question.QuestionKey = strings.TrimSpace(question.QuestionKey)
		question.FieldID = strings.TrimSpace(question.FieldID)
		question.Label = strings.TrimSpace(question.Label)
		question.Type = strings.TrimSpace(question.Type)
		question.Options = append([]string(nil), question.Options...)
		if question.Visibility != nil {
			visibility := *question.Visibility
			if visibility.Logic == "" {
				visibility.Logic = rules.LogicAnd
			}
			visibility.Rules = append(visibility.Rules[:0:0], visibility.Rules...)
			question.Visibility = &visibility
		}
		out = append(out, question)
	}
	return out
}
