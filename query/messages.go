package query

import "strings"

const (
	TypeGetForm         = "formsync.query.form.get"
	TypeListForms       = "formsync.query.form.list"
	TypeListSubmissions = "formsync.query.submission.list"
	TypeListBases       = "formsync.query.schema.bases"
	TypeListTables      = "formsync.query.schema.tables"
	TypeListFields      = "formsync.query.schema.fields"
)

type GetFormMessage struct {
	FormID string
}

func (GetFormMessage) Type() string { return TypeGetForm }

func (m GetFormMessage) Validate() error {
	return required("form_id", m.FormID)
}

type ListFormsMessage struct {
	OwnerUserID string
}

func (ListFormsMessage) Type() string { return TypeListForms }

func (m ListFormsMessage) Validate() error {
	return required("owner_user_id", m.OwnerUserID)
}

// ListSubmissionsMessage lists the responses of a form owned by
// OwnerUserID.
type ListSubmissionsMessage struct {
	OwnerUserID string
	FormID      string
}

func (ListSubmissionsMessage) Type() string { return TypeListSubmissions }

func (m ListSubmissionsMessage) Validate() error {
	if err := required("owner_user_id", m.OwnerUserID); err != nil {
		return err
	}
	return required("form_id", m.FormID)
}

type ListBasesMessage struct {
	OwnerUserID string
}

func (ListBasesMessage) Type() string { return TypeListBases }

func (m ListBasesMessage) Validate() error {
	return required("owner_user_id", m.OwnerUserID)
}

type ListTablesMessage struct {
	OwnerUserID string
	BaseID      string
}

func (ListTablesMessage) Type() string { return TypeListTables }

func (m ListTablesMessage) Validate() error {
	if err := required("owner_user_id", m.OwnerUserID); err != nil {
		return err
	}
	return required("base_id", m.BaseID)
}

type ListFieldsMessage struct {
	OwnerUserID string
	BaseID      string
	TableID     string
}

func (ListFieldsMessage) Type() string { return TypeListFields }

func (m ListFieldsMessage) Validate() error {
	if err := required("owner_user_id", m.OwnerUserID); err != nil {
		return err
	}
	if err := required("base_id", m.BaseID); err != nil {
		return err
	}
	return required("table_id", m.TableID)
}

func required(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
