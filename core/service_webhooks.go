package core

import (
	"context"
	"strings"
	"time"
)

// Ack is the reply to a webhook notification. Processing always happens out
// of band so the receiver can answer immediately.
type Ack struct {
	SubscriptionID string
	Ping           bool
	Queued         bool
}

// HandleNotification schedules sync for the notified subscription. A
// notification without a webhook id is treated as a ping.
func (s *Service) HandleNotification(ctx context.Context, notification Notification) (ack Ack, err error) {
	subscriptionID := strings.TrimSpace(notification.Webhook.ID)
	if subscriptionID == "" {
		return Ack{Ping: true}, nil
	}

	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "handle_notification", err, map[string]any{
			"subscription_id": subscriptionID,
			"base_id":         notification.Base.ID,
		})
	}()

	ack = Ack{SubscriptionID: subscriptionID}
	if s.dispatcher == nil {
		s.logWarn(ctx, "notification dropped: no dispatcher configured", map[string]any{
			"subscription_id": subscriptionID,
		})
		return ack, nil
	}
	if dispatchErr := s.dispatcher.Dispatch(ctx, subscriptionID); dispatchErr != nil {
		s.logError(ctx, "notification dispatch failed", map[string]any{
			"subscription_id": subscriptionID,
			"error":           dispatchErr.Error(),
		})
		return ack, nil
	}
	ack.Queued = true
	return ack, nil
}
