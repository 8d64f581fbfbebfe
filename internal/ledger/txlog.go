package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"famfunds/internal/core"
)

type logEntry struct {
	seq uint64
	tx  core.Transaction
}

// transactionLog keeps every transaction ever recorded. Status changes replace
// the stored record under the write lock, so a reader sees either the old or
// the new status, never a mix.
type transactionLog struct {
	mu        sync.RWMutex
	seq       uint64
	byID      map[string]*logEntry
	byAccount map[string][]*logEntry
}

func newTransactionLog() *transactionLog {
	return &transactionLog{
		byID:      make(map[string]*logEntry),
		byAccount: make(map[string][]*logEntry),
	}
}

// upsert appends t, or replaces the record with the same id in place.
func (l *transactionLog) upsert(t core.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.byID[t.ID]; ok {
		e.tx = t
		return
	}
	l.seq++
	e := &logEntry{seq: l.seq, tx: t}
	l.byID[t.ID] = e
	l.byAccount[t.SubAccountID] = append(l.byAccount[t.SubAccountID], e)
}

func (l *transactionLog) get(id string) (core.Transaction, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[id]
	if !ok {
		return core.Transaction{}, false
	}
	return e.tx, true
}

func (l *transactionLog) countFor(subAccountID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byAccount[subAccountID])
}

func (l *transactionLog) sumCompletedDebits(subAccountID string, from, to time.Time) core.Money {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum core.Money
	for _, e := range l.byAccount[subAccountID] {
		t := e.tx
		if t.Type != core.Debit || t.Status != core.StatusCompleted {
			continue
		}
		if t.Timestamp.Before(from) || t.Timestamp.After(to) {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	return sum
}

// collect copies the entries accepted by keep, newest first.
func (l *transactionLog) collect(entries func() []*logEntry, keep func(core.Transaction) bool) []core.Transaction {
	l.mu.RLock()
	src := entries()
	picked := make([]logEntry, 0, len(src))
	for _, e := range src {
		if keep == nil || keep(e.tx) {
			picked = append(picked, *e)
		}
	}
	l.mu.RUnlock()

	sort.Slice(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if !a.tx.Timestamp.Equal(b.tx.Timestamp) {
			return a.tx.Timestamp.After(b.tx.Timestamp)
		}
		return a.seq > b.seq
	})
	out := make([]core.Transaction, len(picked))
	for i, e := range picked {
		out[i] = e.tx
	}
	return out
}

// inserted returns every transaction oldest insert first.
func (l *transactionLog) inserted() []core.Transaction {
	l.mu.RLock()
	entries := l.all()
	out := make([]logEntry, len(entries))
	for i, e := range entries {
		out[i] = *e
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	txs := make([]core.Transaction, len(out))
	for i, e := range out {
		txs[i] = e.tx
	}
	return txs
}

func (l *transactionLog) all() []*logEntry {
	out := make([]*logEntry, 0, len(l.byID))
	for _, e := range l.byID {
		out = append(out, e)
	}
	return out
}

// All returns every transaction, newest first.
func (e *Engine) All() []core.Transaction {
	return e.txlog.collect(e.txlog.all, nil)
}

// BySubAccount returns the account's transactions, newest first. An unknown
// id yields an empty slice.
func (e *Engine) BySubAccount(subAccountID string) []core.Transaction {
	return e.txlog.collect(func() []*logEntry { return e.txlog.byAccount[subAccountID] }, nil)
}

// Pending returns transactions waiting for approval, newest first.
func (e *Engine) Pending() []core.Transaction {
	return e.txlog.collect(e.txlog.all, func(t core.Transaction) bool {
		return t.Status == core.StatusPending
	})
}

// ByID returns one transaction.
func (e *Engine) ByID(id string) (core.Transaction, error) {
	t, ok := e.txlog.get(id)
	if !ok {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}
	return t, nil
}
