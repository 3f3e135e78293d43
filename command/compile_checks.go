package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ConnectMessage]             = (*ConnectCommand)(nil)
	_ gocmd.Commander[CompleteCallbackMessage]    = (*CompleteCallbackCommand)(nil)
	_ gocmd.Commander[CreateFormMessage]          = (*CreateFormCommand)(nil)
	_ gocmd.Commander[SubmitFormMessage]          = (*SubmitFormCommand)(nil)
	_ gocmd.Commander[HandleNotificationMessage]  = (*HandleNotificationCommand)(nil)
	_ gocmd.Commander[ProcessNotificationMessage] = (*ProcessNotificationCommand)(nil)
)
