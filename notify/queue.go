// Package notify delivers gateway notifications (verification links, reset
// links, password-changed notices) off the request path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/logging"
)

var ErrQueueFull = errors.New("notification queue full")

// Sender performs the actual delivery of one notification.
type Sender interface {
	Send(ctx context.Context, n core.Notification) error
}

type QueueConfig struct {
	Size       int
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Size <= 0 {
		c.Size = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Queue is a bounded in-process buffer drained by a fixed set of workers.
// Notify never blocks; a full queue drops the notification with
// ErrQueueFull.
type Queue struct {
	sender Sender
	config QueueConfig
	items  chan core.Notification
	logger logging.Logger
}

var _ core.Notifier = (*Queue)(nil)

func NewQueue(sender Sender, config QueueConfig, logger logging.Logger) *Queue {
	config = config.withDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	return &Queue{
		sender: sender,
		config: config,
		items:  make(chan core.Notification, config.Size),
		logger: logger.With("component", "notify"),
	}
}

func (q *Queue) Notify(_ context.Context, n core.Notification) error {
	if n.QueuedAt.IsZero() {
		n.QueuedAt = time.Now()
	}
	select {
	case q.items <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports how many notifications wait for a worker.
func (q *Queue) Pending() int {
	return len(q.items)
}

// Run starts the workers and blocks until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range q.config.Workers {
		g.Go(func() error {
			q.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.items:
			if err := q.deliver(ctx, n); err != nil {
				q.logger.Error(ctx, "notification dropped", "kind", n.Kind, "error", err)
			}
		}
	}
}

// deliver tries once plus MaxRetries times with a linear backoff.
func (q *Queue) deliver(ctx context.Context, n core.Notification) error {
	var err error
	for attempt := 0; attempt <= q.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * q.config.RetryDelay):
			}
		}

		if err = q.sender.Send(ctx, n); err == nil {
			q.logger.Debug(ctx, "notification sent", "kind", n.Kind, "attempt", attempt+1)
			return nil
		}
		q.logger.Warn(ctx, "notification send failed", "kind", n.Kind, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("after %d attempts: %w", q.config.MaxRetries+1, err)
}
