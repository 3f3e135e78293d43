package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-formsync/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDSyncNotification = "formsync.sync.notification"

	paramSubscriptionID = "subscription_id"
	dedupPolicyDrop     = "drop"
)

// SyncMessage builds the job message for one webhook notification. The
// subscription id doubles as idempotency key so pending runs coalesce.
func SyncMessage(subscriptionID string) *job.ExecutionMessage {
	subscriptionID = strings.TrimSpace(subscriptionID)
	return &job.ExecutionMessage{
		JobID:          JobIDSyncNotification,
		ScriptPath:     JobIDSyncNotification,
		Parameters:     map[string]any{paramSubscriptionID: subscriptionID},
		IdempotencyKey: subscriptionID,
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDrop),
	}
}

// SubscriptionID extracts the subscription id of a sync message.
func SubscriptionID(msg *job.ExecutionMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDSyncNotification {
		return "", fmt.Errorf("gojob: unsupported job %q", msg.JobID)
	}
	if value, ok := msg.Parameters[paramSubscriptionID].(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("gojob: subscription id is required")
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	return out
}

// Dispatcher enqueues sync messages for webhook notifications.
type Dispatcher struct {
	enqueuer queue.Enqueuer
}

func NewDispatcher(enqueuer queue.Enqueuer) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer}
}

func (d *Dispatcher) Dispatch(ctx context.Context, subscriptionID string) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return fmt.Errorf("gojob: subscription id is required")
	}
	return d.enqueuer.Enqueue(ctx, SyncMessage(subscriptionID))
}

// LoggingHook reports worker lifecycle events through the service logger.
type LoggingHook struct {
	Logger core.Logger
}

func (h LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.log("debug", "sync job started", event)
}

func (h LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.log("debug", "sync job finished", event)
}

func (h LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.log("error", "sync job failed", event)
}

func (h LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.log("warn", "sync job retry scheduled", event)
}

func (h LoggingHook) log(level string, msg string, event worker.Event) {
	if h.Logger == nil {
		return
	}
	fields := eventFields(event)
	switch level {
	case "error":
		h.Logger.Error(msg, fields...)
	case "warn":
		h.Logger.Warn(msg, fields...)
	default:
		h.Logger.Debug(msg, fields...)
	}
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{"attempt", event.Attempt}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Duration > 0 {
		fields = append(fields, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var (
	_ core.NotificationDispatcher = (*Dispatcher)(nil)
	_ worker.Hook                 = LoggingHook{}
)
