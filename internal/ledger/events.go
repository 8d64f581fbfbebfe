package ledger

import (
	"time"

	"famfunds/internal/core"
)

type EventType string

const (
	EventTransactionCompleted EventType = "transaction.completed"
	EventTransactionPending   EventType = "transaction.pending"
	EventTransactionDeclined  EventType = "transaction.declined"
	EventAccountProvisioned   EventType = "account.provisioned"
	EventAccountUpdated       EventType = "account.updated"
	EventAccountRemoved       EventType = "account.removed"
)

// Event describes something that already happened to the ledger. Account is
// the account state right after the change.
type Event struct {
	Type        EventType         `json:"type"`
	At          time.Time         `json:"at"`
	Account     *core.SubAccount  `json:"account,omitempty"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

func accountEvent(t EventType, acct core.SubAccount, at time.Time) Event {
	return Event{Type: t, At: at, Account: &acct}
}

func transactionEvent(tx core.Transaction, acct core.SubAccount, at time.Time) Event {
	t := EventTransactionCompleted
	switch tx.Status {
	case core.StatusPending:
		t = EventTransactionPending
	case core.StatusDeclined:
		t = EventTransactionDeclined
	}
	return Event{Type: t, At: at, Account: &acct, Transaction: &tx}
}
