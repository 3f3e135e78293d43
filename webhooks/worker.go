package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-formsync/adapters/gojob"
	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// SyncFunc runs one sync for a subscription.
type SyncFunc func(ctx context.Context, subscriptionID string) error

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Worker drains a job queue and runs a sync per message. Upstream
// transient failures are requeued with backoff up to the retry bounds;
// every other outcome is acknowledged since the next notification replays
// from the stored cursor.
type Worker struct {
	Source      queue.Dequeuer
	Sync        SyncFunc
	Hook        worker.Hook
	Retry       gojob.RetryPolicy
	Backoff     RetryPolicy
	Concurrency int
	Logger      core.Logger
	Now         func() time.Time
}

func NewWorker(source queue.Dequeuer, sync SyncFunc) *Worker {
	return &Worker{
		Source:      source,
		Sync:        sync,
		Retry:       gojob.RetryPolicy{MaxAttempts: 5, MaxDelay: time.Minute},
		Backoff:     ExponentialRetryPolicy{},
		Concurrency: 1,
		Logger:      glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run blocks until ctx is done or the source is closed.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.Source == nil || w.Sync == nil {
		return fmt.Errorf("webhooks: worker requires a source and a sync func")
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	errs := make(chan error, concurrency)
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- w.loop(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrQueueClosed) {
			return err
		}
	}
	return nil
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		delivery, err := w.Source.Dequeue(ctx)
		if err != nil {
			return err
		}
		w.handle(ctx, delivery)
	}
}

// handle processes a single delivery.
func (w *Worker) handle(ctx context.Context, delivery queue.Delivery) {
	attempt := deliveryAttempt(delivery)
	event := worker.Event{
		Message:   delivery.Message(),
		Delivery:  delivery,
		Attempt:   attempt,
		StartedAt: w.now(),
	}
	w.onStart(ctx, event)

	subscriptionID, err := gojob.SubscriptionID(delivery.Message())
	if err != nil {
		event.Err = err
		w.finish(ctx, &event)
		_ = delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		w.onFailure(ctx, event)
		return
	}

	err = w.Sync(ctx, subscriptionID)
	event.Err = err
	w.finish(ctx, &event)

	if err != nil && core.IsUpstreamTransient(err) {
		opts := w.Retry.NormalizeAttempt(queue.NackOptions{
			Delay:   w.backoff().NextDelay(attempt),
			Requeue: true,
			Reason:  err.Error(),
		}, attempt)
		event.Delay = opts.Delay
		if nackErr := delivery.Nack(ctx, opts); nackErr != nil {
			w.logger().Error("sync job nack failed", "subscription_id", subscriptionID, "error", nackErr.Error())
		}
		if opts.Requeue {
			w.onRetry(ctx, event)
		} else {
			w.onFailure(ctx, event)
		}
		return
	}

	if ackErr := delivery.Ack(ctx); ackErr != nil {
		w.logger().Error("sync job ack failed", "subscription_id", subscriptionID, "error", ackErr.Error())
	}
	if err != nil {
		w.onFailure(ctx, event)
		return
	}
	w.onSuccess(ctx, event)
}

func (w *Worker) finish(_ context.Context, event *worker.Event) {
	event.Duration = w.now().Sub(event.StartedAt)
}

func (w *Worker) onStart(ctx context.Context, event worker.Event) {
	if w.Hook != nil {
		w.Hook.OnStart(ctx, event)
	}
}

func (w *Worker) onSuccess(ctx context.Context, event worker.Event) {
	if w.Hook != nil {
		w.Hook.OnSuccess(ctx, event)
	}
}

func (w *Worker) onFailure(ctx context.Context, event worker.Event) {
	if w.Hook != nil {
		w.Hook.OnFailure(ctx, event)
	}
}

func (w *Worker) onRetry(ctx context.Context, event worker.Event) {
	if w.Hook != nil {
		w.Hook.OnRetry(ctx, event)
	}
}

func (w *Worker) backoff() RetryPolicy {
	if w.Backoff != nil {
		return w.Backoff
	}
	return ExponentialRetryPolicy{}
}

func (w *Worker) logger() core.Logger {
	return glog.Ensure(w.Logger)
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

func deliveryAttempt(delivery queue.Delivery) int {
	if counted, ok := delivery.(interface{ Attempt() int }); ok && counted.Attempt() > 0 {
		return counted.Attempt()
	}
	return 1
}
