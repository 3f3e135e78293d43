// Package recordstore talks to the external record store on behalf of a
// connected owner, refreshing the delegated credential when needed.
package recordstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/transport"
	glog "github.com/goliatone/go-logger/glog"
)

// Refresher redeems a credential's refresh token and returns the updated
// record without persisting it.
type Refresher interface {
	Refresh(ctx context.Context, record core.CredentialRecord) (core.CredentialRecord, error)
}

// RateLimiter gates calls per bucket and learns from each response.
type RateLimiter interface {
	BeforeCall(ctx context.Context, bucket string) error
	AfterCall(ctx context.Context, bucket string, statusCode int, headers http.Header) error
}

type ClientOption func(*Client)

func WithKeyLocker(locker core.KeyLocker) ClientOption {
	return func(c *Client) {
		if locker != nil {
			c.locker = locker
		}
	}
}

// WithRateLimiter throttles calls per owner after the external store
// answers 429.
func WithRateLimiter(limiter RateLimiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithRefreshSkew(skew time.Duration) ClientOption {
	return func(c *Client) {
		if skew >= 0 {
			c.skew = skew
		}
	}
}

func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		c.logger = glog.Ensure(logger)
	}
}

func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// Client is the resilient request client. Every call carries a bearer token
// that is refreshed proactively inside the skew window and reactively, at
// most once, after a 401.
type Client struct {
	rest        *transport.RESTAdapter
	refresher   Refresher
	credentials core.CredentialStore
	locker      core.KeyLocker
	limiter     RateLimiter
	skew        time.Duration
	timeout     time.Duration
	lockTTL     time.Duration
	logger      core.Logger
	now         func() time.Time
}

func NewClient(rest *transport.RESTAdapter, refresher Refresher, credentials core.CredentialStore, opts ...ClientOption) (*Client, error) {
	if refresher == nil {
		return nil, fmt.Errorf("recordstore: refresher is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("recordstore: credential store is required")
	}
	if rest == nil {
		rest = transport.NewRESTAdapter(nil)
	}
	client := &Client{
		rest:        rest,
		refresher:   refresher,
		credentials: credentials,
		locker:      core.NewMemoryKeyLocker(),
		skew:        core.DefaultRefreshSkew,
		timeout:     core.DefaultRequestTimeout,
		lockTTL:     core.DefaultRequestTimeout,
		logger:      glog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Call issues req as the owner of record and returns the response together
// with the credential that was finally used. Non-2xx responses other than
// the single retried 401 are returned as is.
func (c *Client) Call(ctx context.Context, record core.CredentialRecord, req transport.Request) (transport.Response, core.CredentialRecord, error) {
	current := record
	refreshed := false

	if core.IsExpiringSoon(current, c.now(), c.skew) {
		next, didRefresh, err := c.refreshLocked(ctx, current, "")
		if err != nil {
			return transport.Response{}, record, err
		}
		current = next
		refreshed = didRefresh
	}

	res, err := c.send(ctx, current, req)
	if err != nil {
		return transport.Response{}, current, err
	}
	if res.StatusCode != http.StatusUnauthorized || refreshed {
		return res, current, nil
	}

	c.logger.Info("access token rejected, refreshing", "owner_user_id", current.ID)
	next, _, err := c.refreshLocked(ctx, current, current.AccessToken)
	if err != nil {
		return transport.Response{}, current, err
	}
	current = next
	res, err = c.send(ctx, current, req)
	if err != nil {
		return transport.Response{}, current, err
	}
	return res, current, nil
}

func (c *Client) send(ctx context.Context, record core.CredentialRecord, req transport.Request) (transport.Response, error) {
	headers := make(map[string]string, len(req.Headers)+1)
	for key, value := range req.Headers {
		headers[key] = value
	}
	headers["Authorization"] = "Bearer " + strings.TrimSpace(record.AccessToken)
	req.Headers = headers
	if req.Timeout <= 0 {
		req.Timeout = c.timeout
	}
	if c.limiter == nil {
		return c.rest.Do(ctx, req)
	}

	bucket := "owner:" + record.ID
	if err := c.limiter.BeforeCall(ctx, bucket); err != nil {
		return transport.Response{}, err
	}
	res, err := c.rest.Do(ctx, req)
	if err != nil {
		return res, err
	}
	if err := c.limiter.AfterCall(ctx, bucket, res.StatusCode, res.Headers); err != nil {
		c.logger.Warn("rate limit state update failed", "owner_user_id", record.ID, "error", err.Error())
	}
	return res, nil
}

// refreshLocked refreshes under the owner's key lock. The stored record is
// reloaded first so a refresh completed by another caller is reused. When
// rejectedToken is set the stored record is reused only if it carries a
// different, still fresh token. didRefresh reports whether this call
// obtained a new grant itself.
func (c *Client) refreshLocked(ctx context.Context, record core.CredentialRecord, rejectedToken string) (out core.CredentialRecord, didRefresh bool, err error) {
	err = core.WithKeyLock(ctx, c.locker, "credential:"+record.ID, c.lockTTL, func(ctx context.Context) error {
		stored, err := c.credentials.Get(ctx, record.ID)
		switch {
		case err == nil:
		case core.IsNotFound(err):
			stored = record
		default:
			return err
		}

		fresh := !core.IsExpiringSoon(stored, c.now(), c.skew)
		if fresh && (rejectedToken == "" || stored.AccessToken != rejectedToken) {
			out = stored
			return nil
		}

		next, err := c.refresher.Refresh(ctx, stored)
		if err != nil {
			return err
		}
		if err := c.credentials.UpdateTokens(ctx, next); err != nil {
			return err
		}
		c.logger.Info("credential refreshed", "owner_user_id", next.ID, "expires_at", next.TokenExpiresAt)
		out = next
		didRefresh = true
		return nil
	})
	if err != nil {
		return core.CredentialRecord{}, false, err
	}
	return out, didRefresh, nil
}
