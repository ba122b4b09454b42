package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Publisher delivers one event to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher queues events and fans them out from a single worker. A full
// queue drops the event and logs it.
type Dispatcher struct {
	publishers []Publisher
	logger     *zap.Logger
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewDispatcher(logger *zap.Logger, buffer int, publishers ...Publisher) *Dispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	d := &Dispatcher{
		publishers: publishers,
		logger:     logger,
		timeout:    5 * time.Second,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		for _, p := range d.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := p.Publish(ctx, ev); err != nil {
				d.logger.Error("event publish failed",
					zap.String("transaction_id", ev.TransactionID),
					zap.String("kind", string(ev.Kind)),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

func (d *Dispatcher) Emit(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("event dispatcher closed, dropping event",
			zap.String("transaction_id", ev.TransactionID),
			zap.String("kind", string(ev.Kind)),
		)
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("event queue full, dropping event",
			zap.String("transaction_id", ev.TransactionID),
			zap.String("kind", string(ev.Kind)),
		)
	}
}

// Close stops accepting events and waits until queued ones are delivered
// or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Sink = (*Dispatcher)(nil)
