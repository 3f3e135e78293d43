package webhooks

import (
	"context"

	"github.com/goliatone/go-formsync/core"
	glog "github.com/goliatone/go-logger/glog"
)

type NotificationHandler interface {
	HandleNotification(ctx context.Context, notification core.Notification) (core.Ack, error)
}

// Receiver turns raw notification requests into queued sync runs. It never
// fails the request: the external store only needs an acknowledgement and
// will notify again on the next change.
type Receiver struct {
	Handler  NotificationHandler
	Verifier *MACVerifier
	Logger   core.Logger
}

func NewReceiver(handler NotificationHandler, verifier *MACVerifier, logger core.Logger) *Receiver {
	return &Receiver{Handler: handler, Verifier: verifier, Logger: logger}
}

func (r *Receiver) Receive(ctx context.Context, macHeader string, body []byte) core.Ack {
	notification := ParseNotification(body)
	if IsPing(notification) {
		return core.Ack{Ping: true}
	}
	logger := glog.Ensure(r.Logger)

	if r.Verifier != nil {
		if err := r.Verifier.Verify(ctx, notification, macHeader, body); err != nil {
			logger.Warn("webhook notification rejected",
				"subscription_id", notification.Webhook.ID,
				"base_id", notification.Base.ID,
				"error", err.Error(),
			)
			return core.Ack{SubscriptionID: notification.Webhook.ID}
		}
	}
	if r.Handler == nil {
		return core.Ack{SubscriptionID: notification.Webhook.ID}
	}

	ack, err := r.Handler.HandleNotification(ctx, notification)
	if err != nil {
		logger.Error("webhook notification failed",
			"subscription_id", notification.Webhook.ID,
			"error", err.Error(),
		)
		return core.Ack{SubscriptionID: notification.Webhook.ID}
	}
	return ack
}
