package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"famfunds/internal/core"
	applog "famfunds/internal/log"
)

// ProposeRequest is a transaction intent. Amount is a positive magnitude;
// Type gives the direction.
type ProposeRequest struct {
	SubAccountID string               `json:"subAccountId"`
	Amount       core.Money           `json:"amount"`
	Type         core.TransactionType `json:"type"`
	Category     string               `json:"category"`
	Description  string               `json:"description"`
	Merchant     string               `json:"merchant,omitempty"`
}

func (r ProposeRequest) validate() error {
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidType, r.Type)
	}
	return nil
}

// Propose authorizes and records a transaction. Declined and pending outcomes
// are returned as successful calls; only invalid requests are errors.
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (core.Transaction, error) {
	if err := req.validate(); err != nil {
		return core.Transaction{}, err
	}
	req.Category = strings.TrimSpace(req.Category)
	req.Description = strings.TrimSpace(req.Description)
	req.Merchant = strings.TrimSpace(req.Merchant)

	tx, acct, err := e.propose(ctx, req)
	if err != nil {
		return core.Transaction{}, err
	}
	e.decided.LogTransactionDecided(ctx, applog.OpPropose, tx.ID, tx.SubAccountID,
		string(tx.Type), string(tx.Status), tx.Metadata.Reason, tx.Amount.Cents)
	e.notify(ctx, transactionEvent(tx, acct, tx.Timestamp))
	return tx, nil
}

func (e *Engine) propose(ctx context.Context, req ProposeRequest) (core.Transaction, core.SubAccount, error) {
	unlock := e.locks.acquire(req.SubAccountID)
	defer unlock()

	acct, ok := e.accounts.get(req.SubAccountID)
	if !ok {
		return core.Transaction{}, core.SubAccount{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, req.SubAccountID)
	}
	if !acct.IsActive {
		return core.Transaction{}, core.SubAccount{}, fmt.Errorf("%w: %s", core.ErrAccountInactive, acct.ID)
	}

	now := e.clock()
	status, reason := core.StatusCompleted, ""
	if req.Type == core.Debit {
		// A missing profile never requires approval.
		perms, _ := e.perms.get(acct.ID)
		spent := e.txlog.sumCompletedDebits(acct.ID, PeriodStart(acct.SpendPeriod, now), now)
		status, reason = decide(req.Amount, acct, perms, spent)
	}

	tx := core.Transaction{
		ID:           e.newID("txn"),
		SubAccountID: acct.ID,
		MemberID:     acct.MemberID,
		Amount:       req.Amount,
		Type:         req.Type,
		Category:     req.Category,
		Description:  req.Description,
		Merchant:     req.Merchant,
		Status:       status,
		Timestamp:    now,
		Metadata: core.Metadata{
			RequiresApproval: status == core.StatusPending,
			Reason:           reason,
		},
	}
	change := Change{Transactions: []core.Transaction{tx}}
	if status == core.StatusCompleted {
		var err error
		if acct, err = e.applyBalanceDelta(acct, tx.Signed(), now); err != nil {
			return core.Transaction{}, core.SubAccount{}, err
		}
		change.Accounts = []core.SubAccount{acct}
	}
	if err := e.commit(ctx, change); err != nil {
		return core.Transaction{}, core.SubAccount{}, err
	}
	return tx, acct, nil
}

// decide runs the debit gates in order and returns the first outcome that
// matches: insufficient funds, approval threshold, period limit.
func decide(amount core.Money, acct core.SubAccount, perms core.PermissionProfile, spent core.Money) (core.TransactionStatus, string) {
	switch {
	case amount.GreaterThan(acct.Balance):
		return core.StatusDeclined, core.ReasonInsufficientFunds
	case perms.NeedsApproval(amount):
		return core.StatusPending, core.ReasonApprovalThreshold
	}
	if total, err := spent.CheckedAdd(amount); err != nil || total.GreaterThan(acct.SpendLimit) {
		return core.StatusPending, core.ReasonPeriodLimit
	}
	return core.StatusCompleted, ""
}

// Approve settles a pending transaction. Funds are checked again against the
// current balance; if they no longer cover the debit the transaction is
// declined instead. The period limit is not re-applied.
func (e *Engine) Approve(ctx context.Context, id string) (core.Transaction, error) {
	return e.resolveLogged(ctx, applog.OpApprove, id, true)
}

// Decline rejects a pending transaction. Declining anything that is not
// pending is an error, including a second decline.
func (e *Engine) Decline(ctx context.Context, id string) (core.Transaction, error) {
	return e.resolveLogged(ctx, applog.OpDecline, id, false)
}

func (e *Engine) resolveLogged(ctx context.Context, op, id string, approve bool) (core.Transaction, error) {
	tx, acct, at, err := e.resolve(ctx, id, approve)
	if err != nil {
		return core.Transaction{}, err
	}
	e.decided.LogTransactionDecided(ctx, op, tx.ID, tx.SubAccountID,
		string(tx.Type), string(tx.Status), tx.Metadata.Resolution, tx.Amount.Cents)
	e.notify(ctx, transactionEvent(tx, acct, at))
	return tx, nil
}

// resolve returns the settled transaction, its account and the resolution time.
func (e *Engine) resolve(ctx context.Context, id string, approve bool) (core.Transaction, core.SubAccount, time.Time, error) {
	tx, ok := e.txlog.get(id)
	if !ok {
		return core.Transaction{}, core.SubAccount{}, time.Time{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, id)
	}

	unlock := e.locks.acquire(tx.SubAccountID)
	defer unlock()

	// Re-read: another resolution may have won the lock first.
	tx, _ = e.txlog.get(id)
	if tx.Status != core.StatusPending {
		return core.Transaction{}, core.SubAccount{}, time.Time{}, fmt.Errorf("%w: %s is %s", core.ErrNotPending, id, tx.Status)
	}
	acct, ok := e.accounts.get(tx.SubAccountID)
	if !ok {
		return core.Transaction{}, core.SubAccount{}, time.Time{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, tx.SubAccountID)
	}

	now := e.clock()
	var change Change
	switch {
	case !approve:
		tx.Status = core.StatusDeclined
		tx.Metadata.Resolution = core.ResolutionDeclined
	case tx.Type == core.Debit && tx.Amount.GreaterThan(acct.Balance):
		tx.Status = core.StatusDeclined
		tx.Metadata.Resolution = core.ResolutionDeclinedOnApproval
	default:
		tx.Status = core.StatusCompleted
		tx.Metadata.Resolution = core.ResolutionApproved
		var err error
		if acct, err = e.applyBalanceDelta(acct, tx.Signed(), now); err != nil {
			return core.Transaction{}, core.SubAccount{}, time.Time{}, err
		}
		change.Accounts = []core.SubAccount{acct}
	}
	change.Transactions = []core.Transaction{tx}

	if err := e.commit(ctx, change); err != nil {
		return core.Transaction{}, core.SubAccount{}, time.Time{}, err
	}
	return tx, acct, now, nil
}
