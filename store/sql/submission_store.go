package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SubmissionStore struct {
	db   *bun.DB
	repo repository.Repository[*submissionRecord]
}

func NewSubmissionStore(db *bun.DB) (*SubmissionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*submissionRecord](db, submissionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid submission repository wiring: %w", err)
		}
	}
	return &SubmissionStore{db: db, repo: repo}, nil
}

func (s *SubmissionStore) Create(ctx context.Context, in core.Submission) (core.Submission, error) {
	if s == nil || s.repo == nil {
		return core.Submission{}, fmt.Errorf("sqlstore: submission store is not configured")
	}
	in.FormID = strings.TrimSpace(in.FormID)
	in.ExternalRecordID = strings.TrimSpace(in.ExternalRecordID)
	if in.FormID == "" || in.ExternalRecordID == "" {
		return core.Submission{}, fmt.Errorf("sqlstore: form id and external record id are required")
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, newSubmissionRecord(in, time.Now().UTC()))
	if err != nil {
		if isUniqueViolation(err) {
			return core.Submission{}, core.ConflictError("submission already exists for record")
		}
		return core.Submission{}, err
	}
	return created.toDomain(), nil
}

func (s *SubmissionStore) ListByForm(ctx context.Context, formID string) ([]core.Submission, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: submission store is not configured")
	}
	var records []*submissionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.form_id = ?", strings.TrimSpace(formID)).
		OrderExpr("?TableAlias.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Submission, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SubmissionStore) MarkDeleted(ctx context.Context, externalRecordIDs []string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: submission store is not configured")
	}
	ids := make([]string, 0, len(externalRecordIDs))
	for _, id := range externalRecordIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := s.db.NewUpdate().
		Model((*submissionRecord)(nil)).
		Set("deleted_in_external_store = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("external_record_id IN (?)", bun.In(ids)).
		Where("deleted_in_external_store = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// MergeAnswers reads and rewrites the answers inside one transaction.
func (s *SubmissionStore) MergeAnswers(
	ctx context.Context,
	formID string,
	externalRecordID string,
	answers map[string]any,
	at time.Time,
) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: submission store is not configured")
	}
	formID = strings.TrimSpace(formID)
	externalRecordID = strings.TrimSpace(externalRecordID)
	if formID == "" || externalRecordID == "" {
		return false, fmt.Errorf("sqlstore: form id and external record id are required")
	}

	found := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &submissionRecord{}
		selectErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.form_id = ?", formID).
			Where("?TableAlias.external_record_id = ?", externalRecordID).
			Limit(1).
			Scan(ctx)
		if selectErr != nil {
			if errors.Is(selectErr, sql.ErrNoRows) {
				return nil
			}
			return selectErr
		}
		found = true

		merged := copyAnyMap(record.Answers)
		for key, value := range answers {
			merged[key] = value
		}
		record.Answers = merged
		externalUpdatedAt := at.UTC()
		record.ExternalUpdatedAt = &externalUpdatedAt
		record.UpdatedAt = time.Now().UTC()

		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("answers", "external_updated_at", "updated_at").
			WherePK().
			Exec(ctx)
		return updateErr
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func jsonText(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
