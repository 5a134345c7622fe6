package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/events"
)

var (
	// ErrQueueFull is returned when a mail event cannot be queued.
	ErrQueueFull = errors.New("notification queue full")
	// ErrStopped is returned for events published after Stop.
	ErrStopped = errors.New("notification worker stopped")
)

// Handler processes one queued event.
type Handler interface {
	Handle(ctx context.Context, event events.Event) error
}

// NotificationWorker takes mail events off the request path. Publishing only
// enqueues; a fixed pool of goroutines performs delivery.
type NotificationWorker struct {
	handler     Handler
	logger      *zap.Logger
	jobs        chan events.Event
	sendTimeout time.Duration
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Options tune the worker pool.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// StartNotificationWorker subscribes to every mail event on dispatcher and
// starts the delivery goroutines.
func StartNotificationWorker(dispatcher events.Dispatcher, handler Handler, logger *zap.Logger, opts Options) *NotificationWorker {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &NotificationWorker{
		handler:     handler,
		logger:      logger,
		jobs:        make(chan events.Event, opts.QueueSize),
		sendTimeout: opts.SendTimeout,
	}
	for _, eventType := range events.MailEventTypes {
		dispatcher.Subscribe(eventType, w.enqueue)
	}

	w.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go w.run()
	}
	return w
}

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrStopped
	}
	select {
	case w.jobs <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *NotificationWorker) run() {
	defer w.wg.Done()
	for event := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.sendTimeout)
		if err := w.handler.Handle(ctx, event); err != nil {
			w.logger.Warn("notification not delivered",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
		cancel()
	}
}

// Stop drains the queue and waits for in-flight deliveries. Events published
// afterwards are rejected with ErrStopped.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
