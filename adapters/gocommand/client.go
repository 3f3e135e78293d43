package gocommand

import (
	"context"

	formcommand "github.com/goliatone/go-formsync/command"
	"github.com/goliatone/go-formsync/core"
	formquery "github.com/goliatone/go-formsync/query"
	syncproc "github.com/goliatone/go-formsync/sync"
)

// Client exposes the formsync surface as plain method calls that go
// through the dispatcher. A Bus must be registered before it is used.
type Client struct{}

func NewClient() Client {
	return Client{}
}

func (Client) Connect(ctx context.Context) (core.AuthRedirect, error) {
	return Execute[formcommand.ConnectMessage, core.AuthRedirect](ctx, formcommand.ConnectMessage{})
}

func (Client) CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error) {
	return Execute[formcommand.CompleteCallbackMessage, core.CallbackResult](ctx, formcommand.CompleteCallbackMessage{Request: req})
}

func (Client) CreateForm(ctx context.Context, ownerUserID string, in core.FormInput) (core.Form, error) {
	return Execute[formcommand.CreateFormMessage, core.Form](ctx, formcommand.CreateFormMessage{
		OwnerUserID: ownerUserID,
		Form:        in,
	})
}

func (Client) SubmitForm(ctx context.Context, formID string, answers map[string]any) (core.Submission, error) {
	return Execute[formcommand.SubmitFormMessage, core.Submission](ctx, formcommand.SubmitFormMessage{
		FormID:  formID,
		Answers: answers,
	})
}

func (Client) HandleNotification(ctx context.Context, notification core.Notification) (core.Ack, error) {
	return Execute[formcommand.HandleNotificationMessage, core.Ack](ctx, formcommand.HandleNotificationMessage{
		Notification: notification,
	})
}

// ProcessNotification runs one sync through the dispatcher. The Bus must
// have been built with a processor.
func (Client) ProcessNotification(ctx context.Context, subscriptionID string) (syncproc.Result, error) {
	return Execute[formcommand.ProcessNotificationMessage, syncproc.Result](ctx, formcommand.ProcessNotificationMessage{
		SubscriptionID: subscriptionID,
	})
}

func (Client) GetForm(ctx context.Context, formID string) (core.Form, error) {
	return Query[formquery.GetFormMessage, core.Form](ctx, formquery.GetFormMessage{FormID: formID})
}

func (Client) ListForms(ctx context.Context, ownerUserID string) ([]core.Form, error) {
	return Query[formquery.ListFormsMessage, []core.Form](ctx, formquery.ListFormsMessage{OwnerUserID: ownerUserID})
}

func (Client) ListSubmissions(ctx context.Context, ownerUserID string, formID string) ([]core.Submission, error) {
	return Query[formquery.ListSubmissionsMessage, []core.Submission](ctx, formquery.ListSubmissionsMessage{
		OwnerUserID: ownerUserID,
		FormID:      formID,
	})
}

func (Client) ListBases(ctx context.Context, ownerUserID string) ([]core.Base, error) {
	return Query[formquery.ListBasesMessage, []core.Base](ctx, formquery.ListBasesMessage{OwnerUserID: ownerUserID})
}

func (Client) ListTables(ctx context.Context, ownerUserID string, baseID string) ([]core.Table, error) {
	return Query[formquery.ListTablesMessage, []core.Table](ctx, formquery.ListTablesMessage{
		OwnerUserID: ownerUserID,
		BaseID:      baseID,
	})
}

func (Client) ListFields(ctx context.Context, ownerUserID string, baseID string, tableID string) ([]core.Field, error) {
	return Query[formquery.ListFieldsMessage, []core.Field](ctx, formquery.ListFieldsMessage{
		OwnerUserID: ownerUserID,
		BaseID:      baseID,
		TableID:     tableID,
	})
}
