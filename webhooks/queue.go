package webhooks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-formsync/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrQueueFull   = errors.New("webhooks: notification queue is full")
	ErrQueueClosed = errors.New("webhooks: notification queue is closed")
)

const defaultQueueSize = 256

// Queue is a bounded in-memory job queue that coalesces messages by
// idempotency key. A key stays pending from Enqueue until it is dequeued,
// so a notification arriving while a run is in flight queues one more run.
// A retry that cannot be queued again is dead-lettered.
type Queue struct {
	Logger core.Logger

	items chan *queuedMessage

	mu          sync.Mutex
	pending     map[string]struct{}
	deadLetters []*job.ExecutionMessage
	closed      bool
	done        chan struct{}
}

type queuedMessage struct {
	msg     *job.ExecutionMessage
	attempt int
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{
		items:   make(chan *queuedMessage, size),
		pending: map[string]struct{}{},
		done:    make(chan struct{}),
	}
}

// Enqueue adds msg unless a message with the same idempotency key is
// already pending, in which case it returns nil without queueing.
func (q *Queue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return errors.New("webhooks: execution message is required")
	}
	return q.push(ctx, &queuedMessage{msg: msg, attempt: 1})
}

func (q *Queue) push(_ context.Context, item *queuedMessage) error {
	key := strings.TrimSpace(item.msg.IdempotencyKey)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if key != "" {
		if _, ok := q.pending[key]; ok {
			return nil
		}
	}
	select {
	case q.items <- item:
		if key != "" {
			q.pending[key] = struct{}{}
		}
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a message is available, the queue is closed or ctx
// is done.
func (q *Queue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrQueueClosed
	case item := <-q.items:
		q.mu.Lock()
		delete(q.pending, strings.TrimSpace(item.msg.IdempotencyKey))
		q.mu.Unlock()
		return &delivery{queue: q, item: item}, nil
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return len(q.items)
}

// DeadLetters returns the messages dropped after exhausting retries.
func (q *Queue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

// Close stops the queue. Blocked Dequeue calls return ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) requeue(ctx context.Context, item *queuedMessage) error {
	err := q.push(ctx, item)
	if err == nil {
		return nil
	}
	q.deadLetter(item.msg)
	glog.Ensure(q.Logger).Error("sync retry dropped",
		"idempotency_key", item.msg.IdempotencyKey,
		"attempt", item.attempt,
		"error", err.Error(),
	)
	return err
}

func (q *Queue) deadLetter(msg *job.ExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, msg)
}

type delivery struct {
	queue *Queue
	item  *queuedMessage

	once sync.Once
}

func (d *delivery) Message() *job.ExecutionMessage {
	return d.item.msg
}

// Attempt is the 1-based delivery attempt.
func (d *delivery) Attempt() int {
	return d.item.attempt
}

func (d *delivery) Ack(context.Context) error {
	d.once.Do(func() {})
	return nil
}

func (d *delivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	var err error
	d.once.Do(func() {
		if opts.DeadLetter || !opts.Requeue {
			if opts.DeadLetter {
				d.queue.deadLetter(d.item.msg)
			}
			return
		}
		next := &queuedMessage{msg: d.item.msg, attempt: d.item.attempt + 1}
		if opts.Delay <= 0 {
			err = d.queue.requeue(ctx, next)
			return
		}
		time.AfterFunc(opts.Delay, func() {
			_ = d.queue.requeue(context.WithoutCancel(ctx), next)
		})
	})
	return err
}

var (
	_ queue.Enqueuer = (*Queue)(nil)
	_ queue.Dequeuer = (*Queue)(nil)
	_ queue.Delivery = (*delivery)(nil)
)
