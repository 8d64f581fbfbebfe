package sheets

import (
	"context"
	"time"

	"famfunds/internal/core"
)

// Ports for outbound export adapters.
type (
	// TransactionExporter appends one resolved transaction to an external
	// ledger sheet. balanceAfter is the account balance once the transaction
	// took effect, nil when unknown.
	TransactionExporter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction, balanceAfter *core.Money) (rowRef string, err error)
	}

	// ExportedLister returns the ids of transactions already exported for a
	// year, so a restarted worker does not append them twice.
	ExportedLister interface {
		ExportedIDs(ctx context.Context, year int) ([]string, error)
	}

	Exporter interface {
		TransactionExporter
		ExportedLister
	}
)

// Header is the first row of an export sheet.
var Header = []string{
	"Date", "Transaction ID", "Sub-account", "Member", "Type", "Status",
	"Category", "Description", "Merchant", "Amount", "Balance", "Resolution",
}

// Row renders a transaction in Header order. Amount is signed: debits are
// negative.
func Row(tx core.Transaction, balanceAfter *core.Money, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	balance := ""
	if balanceAfter != nil {
		balance = balanceAfter.String()
	}
	return []string{
		tx.Timestamp.In(loc).Format("2006-01-02 15:04"),
		tx.ID,
		tx.SubAccountID,
		tx.MemberID,
		string(tx.Type),
		string(tx.Status),
		tx.Category,
		tx.Description,
		tx.Merchant,
		tx.Signed().String(),
		balance,
		tx.Metadata.Resolution,
	}
}
