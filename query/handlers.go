package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-formsync/core"
)

type FormReader interface {
	GetForm(ctx context.Context, formID string) (core.Form, error)
	ListForms(ctx context.Context, ownerUserID string) ([]core.Form, error)
	ListSubmissions(ctx context.Context, formID string) ([]core.Submission, error)
}

type SchemaReader interface {
	ListBases(ctx context.Context, ownerUserID string) ([]core.Base, error)
	ListTables(ctx context.Context, ownerUserID string, baseID string) ([]core.Table, error)
	ListFields(ctx context.Context, ownerUserID string, baseID string, tableID string) ([]core.Field, error)
}

type GetFormQuery struct {
	reader FormReader
}

func NewGetFormQuery(reader FormReader) *GetFormQuery {
	return &GetFormQuery{reader: reader}
}

func (q *GetFormQuery) Query(ctx context.Context, msg GetFormMessage) (core.Form, error) {
	if q == nil || q.reader == nil {
		return core.Form{}, queryDependencyError("query: form reader is required")
	}
	return q.reader.GetForm(ctx, msg.FormID)
}

type ListFormsQuery struct {
	reader FormReader
}

func NewListFormsQuery(reader FormReader) *ListFormsQuery {
	return &ListFormsQuery{reader: reader}
}

func (q *ListFormsQuery) Query(ctx context.Context, msg ListFormsMessage) ([]core.Form, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: form reader is required")
	}
	return q.reader.ListForms(ctx, msg.OwnerUserID)
}

type ListSubmissionsQuery struct {
	reader FormReader
}

func NewListSubmissionsQuery(reader FormReader) *ListSubmissionsQuery {
	return &ListSubmissionsQuery{reader: reader}
}

// Query returns NotFound for forms owned by someone else so form ids do not
// leak across owners.
func (q *ListSubmissionsQuery) Query(ctx context.Context, msg ListSubmissionsMessage) ([]core.Submission, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: form reader is required")
	}
	form, err := q.reader.GetForm(ctx, msg.FormID)
	if err != nil {
		return nil, err
	}
	if form.OwnerUserID != strings.TrimSpace(msg.OwnerUserID) {
		return nil, core.NotFoundError("form not found")
	}
	return q.reader.ListSubmissions(ctx, form.ID)
}

type ListBasesQuery struct {
	reader SchemaReader
}

func NewListBasesQuery(reader SchemaReader) *ListBasesQuery {
	return &ListBasesQuery{reader: reader}
}

func (q *ListBasesQuery) Query(ctx context.Context, msg ListBasesMessage) ([]core.Base, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: schema reader is required")
	}
	return q.reader.ListBases(ctx, msg.OwnerUserID)
}

type ListTablesQuery struct {
	reader SchemaReader
}

func NewListTablesQuery(reader SchemaReader) *ListTablesQuery {
	return &ListTablesQuery{reader: reader}
}

func (q *ListTablesQuery) Query(ctx context.Context, msg ListTablesMessage) ([]core.Table, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: schema reader is required")
	}
	return q.reader.ListTables(ctx, msg.OwnerUserID, msg.BaseID)
}

type ListFieldsQuery struct {
	reader SchemaReader
}

func NewListFieldsQuery(reader SchemaReader) *ListFieldsQuery {
	return &ListFieldsQuery{reader: reader}
}

func (q *ListFieldsQuery) Query(ctx context.Context, msg ListFieldsMessage) ([]core.Field, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: schema reader is required")
	}
	return q.reader.ListFields(ctx, msg.OwnerUserID, msg.BaseID, msg.TableID)
}
