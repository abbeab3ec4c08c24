package notifier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/expensio/expenseflow/internal/application/dispatcher"
	"github.com/expensio/expenseflow/internal/application/port"
	"github.com/expensio/expenseflow/internal/domain/event"
)

// StatusWorker drains a buffered queue of status change notifications
// to the Notifier port. Delivery is at-least-once: failed sends are
// retried with backoff before the notification is dropped with an error
// log. Enqueueing never blocks the caller.
type StatusWorker struct {
	notifier    port.Notifier
	logger      *zap.Logger
	queue       chan port.StatusNotification
	maxAttempts int
	retryDelay  time.Duration

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// StatusWorkerOption configures the worker
type StatusWorkerOption func(*StatusWorker)

// WithQueueSize sets the buffered queue capacity
func WithQueueSize(n int) StatusWorkerOption {
	return func(w *StatusWorker) {
		w.queue = make(chan port.StatusNotification, n)
	}
}

// WithDeliveryRetries sets the per-notification retry policy
func WithDeliveryRetries(maxAttempts int, delay time.Duration) StatusWorkerOption {
	return func(w *StatusWorker) {
		w.maxAttempts = maxAttempts
		w.retryDelay = delay
	}
}

// NewStatusWorker creates a notification delivery worker
func NewStatusWorker(notifier port.Notifier, logger *zap.Logger, opts ...StatusWorkerOption) *StatusWorker {
	w := &StatusWorker{
		notifier:    notifier,
		logger:      logger,
		queue:       make(chan port.StatusNotification, 256),
		maxAttempts: 3,
		retryDelay:  time.Second,
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Name returns the worker name
func (w *StatusWorker) Name() string {
	return "status-notifier"
}

// Start launches the delivery loop
func (w *StatusWorker) Start(ctx context.Context) error {
	go w.run(ctx)
	return nil
}

// Stop drains the queue and waits for the delivery loop to exit
func (w *StatusWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})
	<-w.done
}

// Enqueue queues a notification for delivery without blocking. When
// the queue is full the notification is dropped and logged; the
// transition itself is already committed and audited.
func (w *StatusWorker) Enqueue(n port.StatusNotification) {
	select {
	case w.queue <- n:
	default:
		w.logger.Error("Notification queue full, dropping",
			zap.String("expense_id", n.ExpenseID),
			zap.String("new_status", n.NewStatus))
	}
}

// Subscribe registers the worker on the dispatcher for every event
// type that represents a committed status change.
func (w *StatusWorker) Subscribe(d dispatcher.Dispatcher) {
	handler := func(ctx context.Context, evt *event.Event) error {
		w.Enqueue(port.StatusNotification{
			ExpenseID: evt.ExpenseID,
			OldStatus: evt.GetPayloadString("old_status"),
			NewStatus: evt.GetPayloadString("new_status"),
			Timestamp: evt.Timestamp,
		})
		return nil
	}

	for _, typ := range []event.Type{
		event.TypeExpenseSubmitted,
		event.TypeExpenseApproved,
		event.TypeExpenseRejected,
		event.TypeExpenseWithdrawn,
	} {
		d.SubscribeNamed(typ, "status-notifier", handler)
	}
}

func (w *StatusWorker) run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case n := <-w.queue:
			w.deliver(ctx, n)
		case <-w.stopped:
			// Drain what is already queued before exiting
			for {
				select {
				case n := <-w.queue:
					w.deliver(ctx, n)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *StatusWorker) deliver(ctx context.Context, n port.StatusNotification) {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.notifier.NotifyStatusChange(ctx, n); err == nil {
			return
		}

		w.logger.Warn("Notification delivery failed",
			zap.String("expense_id", n.ExpenseID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < w.maxAttempts {
			select {
			case <-time.After(w.retryDelay):
			case <-w.stopped:
			case <-ctx.Done():
				return
			}
		}
	}

	w.logger.Error("Notification delivery abandoned",
		zap.String("expense_id", n.ExpenseID),
		zap.String("new_status", n.NewStatus),
		zap.Error(err))
}
