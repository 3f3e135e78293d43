package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-formsync/core"
)

const (
	MACHeader = "X-Airtable-Content-MAC"
	MACPrefix = "hmac-sha256="
)

// SecretSource resolves the subscription a notification refers to.
type SecretSource interface {
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (core.WebhookSubscription, error)
}

// MACVerifier checks the notification MAC against the base64 secret stored
// with the subscription. Subscriptions without a secret are not verified.
type MACVerifier struct {
	Secrets SecretSource
}

func NewMACVerifier(secrets SecretSource) *MACVerifier {
	return &MACVerifier{Secrets: secrets}
}

func (v *MACVerifier) Verify(ctx context.Context, notification core.Notification, header string, body []byte) error {
	if v == nil || v.Secrets == nil || IsPing(notification) {
		return nil
	}
	subscription, err := v.Secrets.GetBySubscriptionID(ctx, notification.Webhook.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil
		}
		return err
	}
	secret := strings.TrimSpace(subscription.MACSecret)
	if secret == "" {
		return nil
	}
	return VerifyMAC(secret, header, body)
}

// VerifyMAC validates header, in the form hmac-sha256=<hex>, as the
// HMAC-SHA256 of body keyed with the decoded secret.
func VerifyMAC(secretBase64 string, header string, body []byte) error {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secretBase64))
	if err != nil {
		return fmt.Errorf("webhooks: decode mac secret: %w", err)
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return core.UnauthorizedError("webhooks: "+MACHeader+" header is required", nil)
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, MACPrefix))
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return core.UnauthorizedError("webhooks: malformed mac signature", err)
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(body)
	if subtle.ConstantTimeCompare(decoded, mac.Sum(nil)) != 1 {
		return core.UnauthorizedError("webhooks: mac verification failed", nil)
	}
	return nil
}

// SignMAC returns the header value for body. Used by tests and local tools.
func SignMAC(secretBase64 string, body []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secretBase64))
	if err != nil {
		return "", fmt.Errorf("webhooks: decode mac secret: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(body)
	return MACPrefix + hex.EncodeToString(mac.Sum(nil)), nil
}
