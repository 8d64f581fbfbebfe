package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"famfunds/internal/core"
)

// Provisioning defaults, as the family dashboard offered them.
var (
	DefaultSpendLimit      = core.Cents(100_00)
	DefaultSpendPeriod     = core.Weekly
	DefaultPermissionLevel = core.LevelLimited
)

// accountTable indexes sub-accounts by id and by member. Field writes happen
// only inside the owning account's critical section; the RWMutex only guards
// the maps.
type accountTable struct {
	mu        sync.RWMutex
	byID      map[string]core.SubAccount
	memberIdx map[string]string
	order     []string
}

func newAccountTable() *accountTable {
	return &accountTable{
		byID:      make(map[string]core.SubAccount),
		memberIdx: make(map[string]string),
	}
}

func (t *accountTable) get(id string) (core.SubAccount, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.byID[id]
	return a, ok
}

func (t *accountTable) byMember(memberID string) (core.SubAccount, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.memberIdx[memberID]
	if !ok {
		return core.SubAccount{}, false
	}
	return t.byID[id], true
}

func (t *accountTable) put(a core.SubAccount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[a.ID]; !ok {
		t.order = append(t.order, a.ID)
	}
	t.byID[a.ID] = a
	t.memberIdx[a.MemberID] = a.ID
}

func (t *accountTable) delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	if t.memberIdx[a.MemberID] == id {
		delete(t.memberIdx, a.MemberID)
	}
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *accountTable) list() []core.SubAccount {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.SubAccount, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

type ProvisionRequest struct {
	MemberID       string     `json:"memberId"`
	InitialBalance core.Money `json:"initialBalance"`
	// SpendLimit defaults to DefaultSpendLimit only when nil.
	SpendLimit      *core.Money          `json:"spendLimit,omitempty"`
	SpendPeriod     core.SpendPeriod     `json:"spendPeriod"`
	PermissionLevel core.PermissionLevel `json:"permissionLevel"`
}

func (r ProvisionRequest) withDefaults() ProvisionRequest {
	if r.SpendLimit == nil {
		r.SpendLimit = DefaultSpendLimit.Ptr()
	}
	if r.SpendPeriod == "" {
		r.SpendPeriod = DefaultSpendPeriod
	}
	if r.PermissionLevel == "" {
		r.PermissionLevel = DefaultPermissionLevel
	}
	return r
}

func (r ProvisionRequest) validate() error {
	if r.InitialBalance.IsNegative() {
		return core.ErrInvalidBalance
	}
	if !r.SpendLimit.IsPositive() {
		return core.ErrInvalidLimit
	}
	if !r.SpendPeriod.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidPeriod, r.SpendPeriod)
	}
	if !r.PermissionLevel.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidLevel, r.PermissionLevel)
	}
	return nil
}

// AccountUpdate is a partial update; nil fields are left alone. Balance is
// deliberately absent: it only moves through ApplyBalanceDelta.
type AccountUpdate struct {
	SpendLimit      *core.Money           `json:"spendLimit,omitempty"`
	SpendPeriod     *core.SpendPeriod     `json:"spendPeriod,omitempty"`
	PermissionLevel *core.PermissionLevel `json:"permissionLevel,omitempty"`
	IsActive        *bool                 `json:"isActive,omitempty"`
}

// Provision creates a sub-account for a member together with its derived
// permission profile.
func (e *Engine) Provision(ctx context.Context, req ProvisionRequest) (core.SubAccount, error) {
	req = req.withDefaults()
	if err := req.validate(); err != nil {
		return core.SubAccount{}, err
	}

	acct, err := e.provision(ctx, req)
	if err != nil {
		return core.SubAccount{}, err
	}
	e.logger.InfoContext(ctx, "Sub-account provisioned",
		"sub_account_id", acct.ID,
		"member_id", acct.MemberID,
		"permission_level", acct.PermissionLevel)
	e.notify(ctx, accountEvent(EventAccountProvisioned, acct, acct.CreatedAt))
	return acct, nil
}

func (e *Engine) provision(ctx context.Context, req ProvisionRequest) (core.SubAccount, error) {
	e.registryMu.Lock()
	defer e.registryMu.Unlock()

	member, err := e.members.get(req.MemberID)
	if err != nil {
		return core.SubAccount{}, err
	}
	if existing, ok := e.accounts.byMember(member.ID); ok {
		return core.SubAccount{}, fmt.Errorf("%w: member %s already has %s", core.ErrAccountExists, member.ID, existing.ID)
	}

	now := e.clock()
	acct := core.SubAccount{
		ID:              e.newID("sub"),
		MemberID:        member.ID,
		Balance:         req.InitialBalance,
		SpendLimit:      *req.SpendLimit,
		SpendPeriod:     req.SpendPeriod,
		PermissionLevel: req.PermissionLevel,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	perms := core.DefaultPermissions(acct.ID, acct.PermissionLevel)

	if err := e.commit(ctx, Change{
		Accounts:    []core.SubAccount{acct},
		Permissions: []core.PermissionProfile{perms},
	}); err != nil {
		return core.SubAccount{}, err
	}
	return acct, nil
}

// Account returns a copy of one sub-account.
func (e *Engine) Account(id string) (core.SubAccount, error) {
	a, ok := e.accounts.get(id)
	if !ok {
		return core.SubAccount{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return a, nil
}

// AccountByMember returns the member's sub-account.
func (e *Engine) AccountByMember(memberID string) (core.SubAccount, error) {
	a, ok := e.accounts.byMember(memberID)
	if !ok {
		return core.SubAccount{}, fmt.Errorf("%w: no sub-account for member %s", core.ErrAccountNotFound, memberID)
	}
	return a, nil
}

// Accounts returns every sub-account in provisioning order.
func (e *Engine) Accounts() []core.SubAccount {
	return e.accounts.list()
}

// UpdateAccount applies a partial update and refreshes UpdatedAt.
func (e *Engine) UpdateAccount(ctx context.Context, id string, u AccountUpdate) (core.SubAccount, error) {
	if u.SpendLimit != nil && !u.SpendLimit.IsPositive() {
		return core.SubAccount{}, core.ErrInvalidLimit
	}
	if u.SpendPeriod != nil && !u.SpendPeriod.Valid() {
		return core.SubAccount{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, *u.SpendPeriod)
	}
	if u.PermissionLevel != nil && !u.PermissionLevel.Valid() {
		return core.SubAccount{}, fmt.Errorf("%w: %q", core.ErrInvalidLevel, *u.PermissionLevel)
	}

	acct, err := e.updateAccount(ctx, id, u)
	if err != nil {
		return core.SubAccount{}, err
	}
	e.notify(ctx, accountEvent(EventAccountUpdated, acct, acct.UpdatedAt))
	return acct, nil
}

func (e *Engine) updateAccount(ctx context.Context, id string, u AccountUpdate) (core.SubAccount, error) {
	unlock := e.locks.acquire(id)
	defer unlock()

	acct, ok := e.accounts.get(id)
	if !ok {
		return core.SubAccount{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	if u.SpendLimit != nil {
		acct.SpendLimit = *u.SpendLimit
	}
	if u.SpendPeriod != nil {
		acct.SpendPeriod = *u.SpendPeriod
	}
	if u.PermissionLevel != nil {
		acct.PermissionLevel = *u.PermissionLevel
	}
	if u.IsActive != nil {
		acct.IsActive = *u.IsActive
	}
	acct.UpdatedAt = e.clock()

	if err := e.commit(ctx, Change{Accounts: []core.SubAccount{acct}}); err != nil {
		return core.SubAccount{}, err
	}
	return acct, nil
}

// Activate re-enables a sub-account.
func (e *Engine) Activate(ctx context.Context, id string) (core.SubAccount, error) {
	active := true
	return e.UpdateAccount(ctx, id, AccountUpdate{IsActive: &active})
}

// Deactivate stops a sub-account from accepting new transactions.
func (e *Engine) Deactivate(ctx context.Context, id string) (core.SubAccount, error) {
	active := false
	return e.UpdateAccount(ctx, id, AccountUpdate{IsActive: &active})
}

// UpdateSpendLimit changes limit and period together.
func (e *Engine) UpdateSpendLimit(ctx context.Context, id string, limit core.Money, period core.SpendPeriod) (core.SubAccount, error) {
	return e.UpdateAccount(ctx, id, AccountUpdate{SpendLimit: &limit, SpendPeriod: &period})
}

// ApplyBalanceDelta adjusts a balance by a signed amount outside of any
// transaction, e.g. a manual correction, and returns the new balance.
func (e *Engine) ApplyBalanceDelta(ctx context.Context, id string, delta core.Money) (core.Money, error) {
	unlock := e.locks.acquire(id)
	acct, ok := e.accounts.get(id)
	if !ok {
		unlock()
		return core.Money{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	acct, err := e.applyBalanceDelta(acct, delta, e.clock())
	if err == nil {
		err = e.commit(ctx, Change{Accounts: []core.SubAccount{acct}})
	}
	unlock()
	if err != nil {
		return core.Money{}, err
	}

	e.decided.LogBalanceAdjusted(ctx, id, acct.MemberID, delta.Cents, acct.Balance.Cents)
	e.notify(ctx, accountEvent(EventAccountUpdated, acct, acct.UpdatedAt))
	return acct.Balance, nil
}

// applyBalanceDelta is the single place a balance changes. The caller holds
// the account's lock and commits the returned record. A delta that would
// overflow the balance is rejected and acct is returned unchanged.
func (e *Engine) applyBalanceDelta(acct core.SubAccount, delta core.Money, at time.Time) (core.SubAccount, error) {
	balance, err := acct.Balance.CheckedAdd(delta)
	if err != nil {
		return acct, fmt.Errorf("%w: %s by %s", err, acct.ID, delta)
	}
	acct.Balance = balance
	acct.UpdatedAt = at
	return acct, nil
}

// Remove deletes a sub-account and its permission profile. It reports false
// when the account does not exist. Accounts referenced by transactions cannot
// be removed; deactivate them instead.
func (e *Engine) Remove(ctx context.Context, id string) (bool, error) {
	e.registryMu.Lock()
	defer e.registryMu.Unlock()

	unlock := e.locks.acquire(id)
	acct, ok := e.accounts.get(id)
	if !ok {
		unlock()
		return false, nil
	}
	if n := e.txlog.countFor(id); n > 0 {
		unlock()
		return false, fmt.Errorf("%w: %s has %d", core.ErrAccountHasTxns, id, n)
	}
	if err := e.commit(ctx, Change{RemovedAccounts: []string{id}}); err != nil {
		unlock()
		return false, err
	}
	e.locks.forget(id)
	unlock()

	e.logger.InfoContext(ctx, "Sub-account removed", "sub_account_id", id, "member_id", acct.MemberID)
	e.notify(ctx, accountEvent(EventAccountRemoved, acct, e.clock()))
	return true, nil
}

// SpendLimitView reports how much of the period allowance is used.
type SpendLimitView struct {
	SubAccountID string           `json:"subAccountId"`
	Period       core.SpendPeriod `json:"period"`
	Limit        core.Money       `json:"limit"`
	PeriodStart  time.Time        `json:"periodStart"`
	Spent        core.Money       `json:"spent"`
	Remaining    core.Money       `json:"remaining"`
}

// SpendLimit computes the account's period usage as of asOf.
func (e *Engine) SpendLimit(id string, asOf time.Time) (SpendLimitView, error) {
	acct, err := e.Account(id)
	if err != nil {
		return SpendLimitView{}, err
	}
	asOf = asOf.In(e.loc)
	spent := e.CurrentSpend(id, acct.SpendPeriod, asOf)
	remaining := acct.SpendLimit.Sub(spent)
	if remaining.IsNegative() {
		remaining = core.Money{}
	}
	return SpendLimitView{
		SubAccountID: id,
		Period:       acct.SpendPeriod,
		Limit:        acct.SpendLimit,
		PeriodStart:  PeriodStart(acct.SpendPeriod, asOf),
		Spent:        spent,
		Remaining:    remaining,
	}, nil
}
