package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/store"
)

const (
	defaultInterval = 5 * time.Second
	batchSize       = 50
	maxAttempts     = 8
	pruneAfter      = 7 * 24 * time.Hour
)

// Dispatcher drains the outbox on a ticker and delivers each pending
// event through every sink, with per-delivery exponential backoff. An
// event is marked delivered once all sinks accept it; a sink that keeps
// failing is abandoned for that event after maxAttempts dispatcher
// passes, so one dead endpoint cannot wedge the queue.
type Dispatcher struct {
	mu       sync.RWMutex
	outbox   *store.OutboxStore
	sinks    []Sink
	metrics  Recorder
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDispatcher(outbox *store.OutboxStore, sinks []Sink, metrics Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		sinks:    sinks,
		metrics:  metrics,
		interval: defaultInterval,
		logger:   logger,
	}
}

// SetInterval overrides the tick interval. Call before Start.
func (d *Dispatcher) SetInterval(interval time.Duration) {
	if interval > 0 {
		d.interval = interval
	}
}

// Start begins the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the dispatch loop.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	events, err := d.outbox.ListPending(batchSize)
	if err != nil {
		d.logger.Error("list pending events", "error", err)
		return
	}

	for _, event := range events {
		d.dispatch(ctx, event)
	}

	if _, err := d.outbox.DeleteDelivered(time.Now().UTC().Add(-pruneAfter)); err != nil {
		d.logger.Error("prune delivered events", "error", err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event model.OutboxEvent) {
	var failed bool
	for _, sink := range d.sinks {
		backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := sink.Deliver(ctx, event); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			failed = true
			if d.metrics != nil {
				d.metrics.RecordDeliveryFailure(event.Kind, sink.Name())
			}
			d.logger.Warn("deliver event", "kind", event.Kind, "sink", sink.Name(), "attempt", event.Attempts+1, "error", err)
		}
	}

	now := time.Now().UTC()
	if !failed {
		if err := d.outbox.MarkDelivered(event.ID, now); err != nil {
			d.logger.Error("mark event delivered", "id", event.ID, "error", err)
			return
		}
		if d.metrics != nil {
			d.metrics.RecordEventDelivered(event.Kind)
		}
		return
	}

	attempts := event.Attempts + 1
	if attempts >= maxAttempts {
		// Give up: record the terminal failure and take the event
		// off the queue so it stops blocking younger events.
		d.logger.Error("abandoning event after repeated failures", "id", event.ID, "kind", event.Kind, "attempts", attempts)
		if err := d.outbox.RecordFailure(event.ID, attempts, "abandoned after max attempts"); err != nil {
			d.logger.Error("record event failure", "id", event.ID, "error", err)
		}
		if err := d.outbox.MarkDelivered(event.ID, now); err != nil {
			d.logger.Error("mark abandoned event", "id", event.ID, "error", err)
		}
		return
	}

	if err := d.outbox.RecordFailure(event.ID, attempts, "one or more sinks failed"); err != nil {
		d.logger.Error("record event failure", "id", event.ID, "error", err)
	}
}
