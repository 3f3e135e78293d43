package command

import (
	"strings"

	"github.com/goliatone/go-formsync/core"
)

const (
	TypeConnect             = "formsync.command.oauth.connect"
	TypeCompleteCallback    = "formsync.command.oauth.callback"
	TypeCreateForm          = "formsync.command.form.create"
	TypeSubmitForm          = "formsync.command.form.submit"
	TypeHandleNotification  = "formsync.command.webhook.notify"
	TypeProcessNotification = "formsync.command.sync.process"
)

type ConnectMessage struct{}

func (ConnectMessage) Type() string { return TypeConnect }

type CompleteCallbackMessage struct {
	Request core.CallbackRequest
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

// Validate accepts either an authorization code or an upstream error so the
// error code reaches the service unmodified.
func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Request.Error) != "" {
		return nil
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return nil
}

type CreateFormMessage struct {
	OwnerUserID string
	Form        core.FormInput
}

func (CreateFormMessage) Type() string { return TypeCreateForm }

func (m CreateFormMessage) Validate() error {
	if strings.TrimSpace(m.OwnerUserID) == "" {
		return commandValidationError("owner_user_id", "owner user id is required")
	}
	if strings.TrimSpace(m.Form.BaseID) == "" {
		return commandValidationError("baseId", "base id is required")
	}
	if strings.TrimSpace(m.Form.TableID) == "" {
		return commandValidationError("tableId", "table id is required")
	}
	return nil
}

type SubmitFormMessage struct {
	FormID  string
	Answers map[string]any
}

func (SubmitFormMessage) Type() string { return TypeSubmitForm }

func (m SubmitFormMessage) Validate() error {
	if strings.TrimSpace(m.FormID) == "" {
		return commandValidationError("form_id", "form id is required")
	}
	return nil
}

type HandleNotificationMessage struct {
	Notification core.Notification
}

func (HandleNotificationMessage) Type() string { return TypeHandleNotification }

type ProcessNotificationMessage struct {
	SubscriptionID string
}

func (ProcessNotificationMessage) Type() string { return TypeProcessNotification }

func (m ProcessNotificationMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return commandValidationError("subscription_id", "subscription id is required")
	}
	return nil
}
