// Package worker exports resolved ledger transactions to a spreadsheet.
package worker

import (
	"context"
	"fmt"
	"time"

	"famfunds/internal/cache"
	"famfunds/internal/core"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
	"famfunds/internal/sheets"
)

const (
	seenCacheSize = 50_000
	seenTTL       = 400 * 24 * time.Hour
)

// StateSource is where the backfill reads the full ledger from.
type StateSource interface {
	Load(ctx context.Context) (ledger.State, error)
}

// ExportWorker appends completed and declined transactions to the export
// target exactly once per process, however often an event is redelivered.
type ExportWorker struct {
	exporter sheets.Exporter
	seen     *cache.LRUCache[struct{}]
	logger   *applog.Logger
	loc      *time.Location
}

func NewExportWorker(exporter sheets.Exporter, logger *applog.Logger, loc *time.Location) *ExportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ExportWorker{
		exporter: exporter,
		seen:     cache.NewLRUCache[struct{}](seenCacheSize, seenTTL),
		logger:   logger.WithComponent(applog.ComponentWorker),
		loc:      loc,
	}
}

// Seen exposes the de-duplication cache so it can be registered with a janitor.
func (w *ExportWorker) Seen() cache.Cleaner { return w.seen }

// Preload marks every transaction already in the export for year as done.
func (w *ExportWorker) Preload(ctx context.Context, year int) error {
	ids, err := w.exporter.ExportedIDs(ctx, year)
	if err != nil {
		return fmt.Errorf("list exported transactions: %w", err)
	}
	for _, id := range ids {
		w.seen.Set(id, struct{}{})
	}
	w.logger.InfoContext(ctx, "Export state preloaded", "year", year, "count", len(ids))
	return nil
}

// HandleEvent exports the transaction carried by ev once it is terminal.
// Other events are ignored. A returned error means the event should be
// retried.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev ledger.Event) error {
	if ev.Transaction == nil || !ev.Transaction.Status.Terminal() {
		return nil
	}
	var balance *core.Money
	if ev.Account != nil {
		b := ev.Account.Balance
		balance = &b
	}
	return w.export(ctx, *ev.Transaction, balance)
}

func (w *ExportWorker) export(ctx context.Context, tx core.Transaction, balance *core.Money) error {
	if !w.seen.Add(tx.ID, struct{}{}) {
		w.logger.DebugContext(ctx, "Transaction already exported", applog.FieldTransactionID, tx.ID)
		return nil
	}

	ref, err := w.exporter.AppendTransaction(ctx, tx, balance)
	if err != nil {
		w.seen.Delete(tx.ID)
		return fmt.Errorf("export transaction %s: %w", tx.ID, err)
	}

	w.logger.InfoContext(ctx, "Transaction exported",
		applog.FieldTransactionID, tx.ID,
		applog.FieldSubAccountID, tx.SubAccountID,
		applog.FieldTxStatus, tx.Status,
		applog.FieldAmountCents, tx.Amount.Cents,
		applog.FieldOperation, applog.OpExport,
		"sheets_ref", ref)
	return nil
}

// Backfill exports terminal transactions from src that no event delivered,
// e.g. while the worker was down. Balances are unknown for these rows.
// It keeps going past individual failures and reports how many rows it wrote.
func (w *ExportWorker) Backfill(ctx context.Context, src StateSource) (int, error) {
	state, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}

	exported, failed := 0, 0
	for _, tx := range state.Transactions {
		if !tx.Status.Terminal() {
			continue
		}
		if _, done := w.seen.Get(tx.ID); done {
			continue
		}
		if err := w.export(ctx, tx, nil); err != nil {
			failed++
			w.logger.ErrorContext(ctx, "Backfill export failed",
				applog.FieldTransactionID, tx.ID,
				applog.FieldError, err)
			continue
		}
		exported++
	}

	w.logger.InfoContext(ctx, "Backfill completed",
		"total", len(state.Transactions),
		"exported", exported,
		"errors", failed)
	if failed > 0 {
		return exported, fmt.Errorf("backfill: %d transactions failed", failed)
	}
	return exported, nil
}
