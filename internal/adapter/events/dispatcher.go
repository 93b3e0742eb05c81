package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/library-lending/internal/port"
)

var (
	ErrQueueFull        = errors.New("event queue full")
	ErrDispatcherClosed = errors.New("event dispatcher closed")
)

type envelope struct {
	eventType string
	key       string
	payload   []byte
}

// Dispatcher hands events to a pool of workers that forward them to the
// underlying publisher, so a slow broker never holds a loan lock.
type Dispatcher struct {
	next    port.EventPublisher
	queue   chan envelope
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(next port.EventPublisher, queueSize int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		next:    next,
		queue:   make(chan envelope, queueSize),
		logger:  logger.With("module", "lending", "layer", "events"),
		timeout: 5 * time.Second,
	}
}

// Start launches workerCount workers. Call Close to drain and stop them.
func (d *Dispatcher) Start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
}

// Publish enqueues without blocking.
func (d *Dispatcher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- envelope{eventType: eventType, key: partitionKey, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Publish(ctx, ev.eventType, ev.key, ev.payload); err != nil {
			d.logger.Error("event delivery failed",
				"worker", id,
				"event_type", ev.eventType,
				"loan_id", ev.key,
				"error", err,
			)
		}
		cancel()
	}
}
