package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FormStore struct {
	db   *bun.DB
	repo repository.Repository[*formRecord]
}

func NewFormStore(db *bun.DB) (*FormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*formRecord](db, formHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid form repository wiring: %w", err)
		}
	}
	return &FormStore{db: db, repo: repo}, nil
}

func (s *FormStore) Create(ctx context.Context, in core.Form) (core.Form, error) {
	if s == nil || s.repo == nil {
		return core.Form{}, fmt.Errorf("sqlstore: form store is not configured")
	}
	in.OwnerUserID = strings.TrimSpace(in.OwnerUserID)
	if in.OwnerUserID == "" {
		return core.Form{}, fmt.Errorf("sqlstore: owner user id is required")
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	record := newFormRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Form{}, err
	}
	return created.toDomain(), nil
}

func (s *FormStore) Get(ctx context.Context, formID string) (core.Form, error) {
	if s == nil || s.db == nil {
		return core.Form{}, fmt.Errorf("sqlstore: form store is not configured")
	}
	formID = strings.TrimSpace(formID)
	if formID == "" {
		return core.Form{}, fmt.Errorf("sqlstore: form id is required")
	}
	record := &formRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", formID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Form{}, core.NotFoundError("form not found")
		}
		return core.Form{}, err
	}
	return record.toDomain(), nil
}

func (s *FormStore) ListByOwner(ctx context.Context, ownerUserID string) ([]core.Form, error) {
	return s.list(ctx, "owner_user_id", ownerUserID)
}

func (s *FormStore) ListByBase(ctx context.Context, baseID string) ([]core.Form, error) {
	return s.list(ctx, "base_id", baseID)
}

func (s *FormStore) list(ctx context.Context, column string, value string) ([]core.Form, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: form store is not configured")
	}
	var records []*formRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.? = ?", bun.Ident(column), strings.TrimSpace(value)).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Form, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
