package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/auth-service/internal/events"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []events.Event
	block  chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, event events.Event) error {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestNotificationWorker_DeliversMailEvents(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	handler := &recordingHandler{}
	w := StartNotificationWorker(dispatcher, handler, nil, Options{Workers: 2})

	for _, eventType := range events.MailEventTypes {
		require.NoError(t, dispatcher.Publish(context.Background(), events.Event{ID: string(eventType), Type: eventType}))
	}
	w.Stop()

	assert.Equal(t, len(events.MailEventTypes), handler.count())
}

func TestNotificationWorker_RejectsWhenFullOrStopped(t *testing.T) {
	handler := &recordingHandler{block: make(chan struct{})}
	w := StartNotificationWorker(events.NewInMemoryDispatcher(nil), handler, nil,
		Options{Workers: 1, QueueSize: 1, SendTimeout: time.Second})
	ctx := context.Background()

	// the single worker holds one event, the queue holds the next
	require.NoError(t, w.enqueue(ctx, events.Event{ID: "1"}))
	require.Eventually(t, func() bool { return len(w.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, w.enqueue(ctx, events.Event{ID: "2"}))
	assert.ErrorIs(t, w.enqueue(ctx, events.Event{ID: "3"}), ErrQueueFull)

	close(handler.block)
	w.Stop()
	assert.Equal(t, 2, handler.count())
	assert.ErrorIs(t, w.enqueue(ctx, events.Event{ID: "4"}), ErrStopped)
}
