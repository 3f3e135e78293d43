package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	formcommand "github.com/goliatone/go-formsync/command"
	"github.com/goliatone/go-formsync/core"
	formquery "github.com/goliatone/go-formsync/query"
	"github.com/goliatone/go-formsync/sync"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "formsync.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type queueMessage struct{}

func (queueMessage) Type() string { return "formsync.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(formcommand.ConnectMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestBusDispatchesCommandsAndQueries(t *testing.T) {
	svc := &stubService{}
	adapter := NewRegistryAdapter(command.NewRegistry())
	bus, err := NewBus(adapter, svc, stubProcessor{})
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	defer bus.Close()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	ctx := context.Background()

	form, err := Execute[formcommand.CreateFormMessage, core.Form](ctx, formcommand.CreateFormMessage{
		OwnerUserID: "owner_1",
		Form:        core.FormInput{BaseID: "app1", TableID: "tbl1", Title: "Signup"},
	})
	if err != nil {
		t.Fatalf("execute create form: %v", err)
	}
	if form.ID != "form_1" || svc.created != 1 {
		t.Fatalf("expected the service to create a form, got %#v", form)
	}

	forms, err := Query[formquery.ListFormsMessage, []core.Form](ctx, formquery.ListFormsMessage{OwnerUserID: "owner_1"})
	if err != nil {
		t.Fatalf("query forms: %v", err)
	}
	if len(forms) != 1 || forms[0].ID != "form_1" {
		t.Fatalf("unexpected forms %#v", forms)
	}

	result, err := Execute[formcommand.ProcessNotificationMessage, sync.Result](ctx, formcommand.ProcessNotificationMessage{SubscriptionID: "ach1"})
	if err != nil {
		t.Fatalf("execute sync: %v", err)
	}
	if result.SubscriptionID != "ach1" || result.Cursor != 3 {
		t.Fatalf("unexpected sync result %#v", result)
	}

	if _, err := Execute[formcommand.SubmitFormMessage, core.Submission](ctx, formcommand.SubmitFormMessage{}); err == nil {
		t.Fatalf("expected message validation to reject an empty form id")
	}

	client := NewClient()
	redirect, err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	if redirect.URL == "" {
		t.Fatalf("expected authorize url through the client")
	}
	ack, err := client.HandleNotification(ctx, core.Notification{Webhook: core.NotificationRef{ID: "ach1"}})
	if err != nil {
		t.Fatalf("client notify: %v", err)
	}
	if ack.SubscriptionID != "ach1" {
		t.Fatalf("unexpected ack %#v", ack)
	}
	if _, err := client.ListSubmissions(ctx, "owner_2", "form_1"); err == nil {
		t.Fatalf("expected foreign owner to be rejected")
	}
	processed, err := client.ProcessNotification(ctx, "ach2")
	if err != nil {
		t.Fatalf("client sync: %v", err)
	}
	if processed.SubscriptionID != "ach2" {
		t.Fatalf("unexpected sync result %#v", processed)
	}
}

func TestNewBusRequiresService(t *testing.T) {
	if _, err := NewBus(nil, nil, nil); err == nil {
		t.Fatalf("expected missing service to fail")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.Register(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("formsync.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

type stubService struct {
	created int
}

func (s *stubService) Connect(context.Context) (core.AuthRedirect, error) {
	return core.AuthRedirect{URL: "https://airtable.example/authorize"}, nil
}

func (s *stubService) CompleteCallback(context.Context, core.CallbackRequest) (core.CallbackResult, error) {
	return core.CallbackResult{}, nil
}

func (s *stubService) CreateForm(_ context.Context, owner string, in core.FormInput) (core.Form, error) {
	s.created++
	return core.Form{ID: "form_1", OwnerUserID: owner, BaseID: in.BaseID, TableID: in.TableID}, nil
}

func (s *stubService) SubmitForm(_ context.Context, formID string, _ map[string]any) (core.Submission, error) {
	return core.Submission{FormID: formID}, nil
}

func (s *stubService) HandleNotification(_ context.Context, notification core.Notification) (core.Ack, error) {
	return core.Ack{SubscriptionID: notification.Webhook.ID}, nil
}

func (s *stubService) GetForm(_ context.Context, formID string) (core.Form, error) {
	return core.Form{ID: formID, OwnerUserID: "owner_1"}, nil
}

func (s *stubService) ListForms(_ context.Context, owner string) ([]core.Form, error) {
	return []core.Form{{ID: "form_1", OwnerUserID: owner}}, nil
}

func (s *stubService) ListSubmissions(context.Context, string) ([]core.Submission, error) {
	return nil, nil
}

func (s *stubService) ListBases(context.Context, string) ([]core.Base, error) {
	return nil, nil
}

func (s *stubService) ListTables(context.Context, string, string) ([]core.Table, error) {
	return nil, nil
}

func (s *stubService) ListFields(context.Context, string, string, string) ([]core.Field, error) {
	return nil, nil
}

type stubProcessor struct{}

func (stubProcessor) ProcessNotification(_ context.Context, subscriptionID string) sync.Result {
	return sync.Result{SubscriptionID: subscriptionID, Cursor: 3}
}
