package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/rules"
	"github.com/google/uuid"
)

// SubmitForm filters the answers through the form's visibility rules,
// enforces required visible questions and writes the record to the form's
// external table as the form owner.
func (s *Service) SubmitForm(ctx context.Context, formID string, answers map[string]any) (submission Submission, err error) {
	startedAt := time.Now().UTC()
	var form Form
	defer func() {
		s.observeOperation(ctx, startedAt, "submit_form", err, map[string]any{
			"form_id":       formID,
			"owner_user_id": form.OwnerUserID,
			"base_id":       form.BaseID,
		})
	}()

	if err := s.requireDependency(s.submissions != nil, "submission store"); err != nil {
		return Submission{}, err
	}
	if err := s.requireDependency(s.recordStore != nil, "record store client"); err != nil {
		return Submission{}, err
	}
	form, err = s.GetForm(ctx, formID)
	if err != nil {
		return Submission{}, err
	}

	visibleAnswers, fields, err := collectVisibleAnswers(form, answers)
	if err != nil {
		return Submission{}, err
	}

	credential, err := s.Credential(ctx, form.OwnerUserID)
	if err != nil {
		if IsNotFound(err) {
			return Submission{}, NotFoundError("form owner is not connected")
		}
		return Submission{}, err
	}

	record, err := s.recordStore.CreateRecord(ctx, credential, form.BaseID, form.TableID, fields)
	if err != nil {
		return Submission{}, wrapRecordWriteError(err)
	}

	now := s.now()
	submission, err = s.submissions.Create(ctx, Submission{
		ID:               uuid.NewString(),
		FormID:           form.ID,
		ExternalRecordID: record.ID,
		Answers:          visibleAnswers,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Submission{}, s.mapError(err)
	}
	return submission, nil
}

func (s *Service) ListSubmissions(ctx context.Context, formID string) ([]Submission, error) {
	if err := s.requireDependency(s.submissions != nil, "submission store"); err != nil {
		return nil, err
	}
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return nil, BadInputError("form id is required")
	}
	submissions, err := s.submissions.ListByForm(ctx, formID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return submissions, nil
}

// collectVisibleAnswers returns the answers of visible questions keyed by
// question key and the same values keyed by external field id.
func collectVisibleAnswers(form Form, answers map[string]any) (map[string]any, map[string]any, error) {
	visible := map[string]any{}
	fields := map[string]any{}
	for _, question := range form.Questions {
		if !rules.Evaluate(question.Visibility, answers) {
			continue
		}
		value, ok := answers[question.QuestionKey]
		if question.Required && isBlankAnswer(value, ok) {
			label := question.Label
			if label == "" {
				label = question.QuestionKey
			}
			return nil, nil, ValidationError(label, fmt.Sprintf("Field '%s' is required.", label))
		}
		if !ok {
			continue
		}
		visible[question.QuestionKey] = value
		if question.FieldID != "" {
			fields[question.FieldID] = value
		}
	}
	return visible, fields, nil
}

func isBlankAnswer(value any, present bool) bool {
	if !present || value == nil {
		return true
	}
	if text, ok := value.(string); ok && text == "" {
		return true
	}
	return false
}

func wrapRecordWriteError(err error) error {
	switch {
	case IsUpstreamAuth(err):
		return UpstreamAuthError("Failed to save to Airtable: "+err.Error(), UpstreamCode(err), err)
	case IsNotFound(err):
		return NotFoundError("Failed to save to Airtable: " + err.Error())
	case IsUpstreamTransient(err):
		return UpstreamTransientError("Failed to save to Airtable: "+err.Error(), err)
	default:
		return err
	}
}
