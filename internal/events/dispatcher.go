// Package events moves ledger events off the request path. The ledger calls
// Notify while returning to its caller; a single goroutine hands the events to
// a Sink.
package events

import (
	"context"
	"sync/atomic"
	"time"

	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
)

// Sink delivers one event, e.g. to a message broker.
type Sink interface {
	Publish(ctx context.Context, ev ledger.Event) error
}

const drainTimeout = 5 * time.Second

// Dispatcher is a bounded, non-blocking ledger.Notifier. When the buffer is
// full new events are dropped and counted.
type Dispatcher struct {
	queue   chan ledger.Event
	sink    Sink
	logger  *applog.Logger
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(sink Sink, buffer int, logger *applog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Dispatcher{
		queue:  make(chan ledger.Event, buffer),
		sink:   sink,
		logger: logger.WithComponent(applog.ComponentEvents),
	}
}

// Notify implements ledger.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, ev ledger.Event) {
	select {
	case d.queue <- ev:
	default:
		n := d.dropped.Add(1)
		d.logger.WarnContext(ctx, "Event buffer full, dropping event",
			applog.FieldEventType, ev.Type,
			"dropped_total", n)
	}
}

// Run delivers events until ctx is done, then drains what is buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev ledger.Event) {
	if err := d.sink.Publish(ctx, ev); err != nil {
		d.failed.Add(1)
		d.logger.ErrorContext(ctx, "Failed to publish event",
			applog.FieldEventType, ev.Type,
			applog.FieldError, err)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Failed returns how many events the sink rejected.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// LogSink writes events to the log. It stands in for a broker when none is
// configured.
type LogSink struct {
	Logger *applog.Logger
}

func (s LogSink) Publish(ctx context.Context, ev ledger.Event) error {
	args := []any{applog.FieldEventType, ev.Type}
	if ev.Transaction != nil {
		args = append(args,
			applog.FieldTransactionID, ev.Transaction.ID,
			applog.FieldTxStatus, ev.Transaction.Status)
	}
	if ev.Account != nil {
		args = append(args,
			applog.FieldSubAccountID, ev.Account.ID,
			applog.FieldBalanceCents, ev.Account.Balance.Cents)
	}
	s.Logger.InfoContext(ctx, "Ledger event", args...)
	return nil
}
