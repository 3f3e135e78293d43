package webhooks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-formsync/core"
)

// ParseNotification decodes a notification body. Empty bodies and invalid
// JSON decode to a zero Notification, which is handled as a ping.
func ParseNotification(body []byte) core.Notification {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return core.Notification{}
	}
	var notification core.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return core.Notification{}
	}
	notification.Webhook.ID = strings.TrimSpace(notification.Webhook.ID)
	notification.Base.ID = strings.TrimSpace(notification.Base.ID)
	return notification
}

// IsPing reports whether a notification names no webhook.
func IsPing(notification core.Notification) bool {
	return strings.TrimSpace(notification.Webhook.ID) == ""
}
