package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/sync"
)

type MutatingService interface {
	Connect(ctx context.Context) (core.AuthRedirect, error)
	CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	CreateForm(ctx context.Context, ownerUserID string, in core.FormInput) (core.Form, error)
	SubmitForm(ctx context.Context, formID string, answers map[string]any) (core.Submission, error)
	HandleNotification(ctx context.Context, notification core.Notification) (core.Ack, error)
}

type SyncProcessor interface {
	ProcessNotification(ctx context.Context, subscriptionID string) sync.Result
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, _ ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CompleteCallbackCommand struct {
	service MutatingService
}

func NewCompleteCallbackCommand(service MutatingService) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.CompleteCallback(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateFormCommand struct {
	service MutatingService
}

func NewCreateFormCommand(service MutatingService) *CreateFormCommand {
	return &CreateFormCommand{service: service}
}

func (c *CreateFormCommand) Execute(ctx context.Context, msg CreateFormMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: form service is required")
	}
	out, err := c.service.CreateForm(ctx, msg.OwnerUserID, msg.Form)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubmitFormCommand struct {
	service MutatingService
}

func NewSubmitFormCommand(service MutatingService) *SubmitFormCommand {
	return &SubmitFormCommand{service: service}
}

func (c *SubmitFormCommand) Execute(ctx context.Context, msg SubmitFormMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.SubmitForm(ctx, msg.FormID, msg.Answers)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type HandleNotificationCommand struct {
	service MutatingService
}

func NewHandleNotificationCommand(service MutatingService) *HandleNotificationCommand {
	return &HandleNotificationCommand{service: service}
}

func (c *HandleNotificationCommand) Execute(ctx context.Context, msg HandleNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	out, err := c.service.HandleNotification(ctx, msg.Notification)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// ProcessNotificationCommand runs a sync synchronously. Sync failures are
// reported through the stored Result rather than the returned error.
type ProcessNotificationCommand struct {
	processor SyncProcessor
}

func NewProcessNotificationCommand(processor SyncProcessor) *ProcessNotificationCommand {
	return &ProcessNotificationCommand{processor: processor}
}

func (c *ProcessNotificationCommand) Execute(ctx context.Context, msg ProcessNotificationMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: sync processor is required")
	}
	storeResult(ctx, c.processor.ProcessNotification(ctx, msg.SubscriptionID))
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
