package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
)

type recordingSink struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Publish(_ context.Context, ev ledger.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), ledger.Event{Type: ledger.EventAccountUpdated})
	}
	deadline := time.Now().Add(time.Second)
	for sink.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if got := sink.count(); got != 5 {
		t.Errorf("delivered = %d, want 5", got)
	}
	if d.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", d.Dropped())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(&recordingSink{}, 2, nil)

	// Nothing is running, so the third event has nowhere to go.
	start := time.Now()
	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), ledger.Event{Type: ledger.EventAccountUpdated})
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("Notify blocked on a full buffer")
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(sink, 4, nil)
	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), ledger.Event{Type: ledger.EventAccountRemoved})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sink.count() != 3 {
		t.Errorf("drained = %d, want 3", sink.count())
	}
	if d.Failed() != 3 {
		t.Errorf("Failed() = %d, want 3", d.Failed())
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})
	tx := core.Transaction{ID: "txn-7", Status: core.StatusDeclined}

	err := LogSink{Logger: logger}.Publish(context.Background(), ledger.Event{Type: ledger.EventTransactionDeclined, Transaction: &tx})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"transaction.declined", "txn-7", "declined"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
