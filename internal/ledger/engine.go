// Package ledger is the sub-account ledger and transaction-authorization
// engine. It owns members, sub-accounts, permission profiles and the
// transaction log, and it is the only code allowed to change a balance.
//
// Every mutation touching a sub-account runs inside that account's critical
// section: read, decide, journal, apply. Different accounts never contend.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"famfunds/internal/core"
	applog "famfunds/internal/log"
)

// Journal persists committed changes. Commit must be all-or-nothing: when it
// returns an error the engine leaves its in-memory state untouched.
type Journal interface {
	Commit(ctx context.Context, c Change) error
}

// Notifier receives events after a change has been applied. Implementations
// must not block; the engine calls Notify outside any account lock.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Change is one atomic unit of work handed to the Journal.
type Change struct {
	Members         []core.Member
	Accounts        []core.SubAccount
	Permissions     []core.PermissionProfile
	Transactions    []core.Transaction
	RemovedAccounts []string
}

// State is a full copy of the ledger, used to restore from a journal and to
// import fixtures. Transactions are in insertion order.
type State struct {
	Members      []core.Member
	Accounts     []core.SubAccount
	Permissions  []core.PermissionProfile
	Transactions []core.Transaction
}

type Engine struct {
	members  *memberRegistry
	accounts *accountTable
	perms    *permissionStore
	txlog    *transactionLog
	locks    *lockRegistry

	// registryMu serializes member writes and sub-account provisioning, so
	// the one-account-per-member check and the insert happen as one step.
	registryMu sync.Mutex

	journal  Journal
	notifier Notifier
	now      func() time.Time
	loc      *time.Location
	newID    func(prefix string) string
	logger   *applog.Logger
	decided  *applog.StructuredLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal makes every change write-through to j before it is applied.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithNotifier publishes ledger events to n.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone used for spend-period boundaries.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *applog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent(applog.ComponentLedger)
		}
	}
}

// WithIDGenerator overrides id generation. The generator receives the entity
// prefix ("mem", "sub", "txn").
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New builds an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		members:  newMemberRegistry(),
		accounts: newAccountTable(),
		perms:    newPermissionStore(),
		txlog:    newTransactionLog(),
		locks:    newLockRegistry(),
		now:      time.Now,
		loc:      time.UTC,
		newID:    func(prefix string) string { return prefix + "-" + uuid.NewString() },
		logger:   applog.Discard().WithComponent(applog.ComponentLedger),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.decided = applog.NewStructuredLogger(e.logger)
	return e
}

// Location returns the zone used for spend-period boundaries.
func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) clock() time.Time {
	return e.now().In(e.loc)
}

// commit journals c and then applies it to memory. Callers hold the locks that
// make c valid.
func (e *Engine) commit(ctx context.Context, c Change) error {
	if e.journal != nil {
		if err := e.journal.Commit(ctx, c); err != nil {
			return fmt.Errorf("journal commit: %w", err)
		}
	}
	e.apply(c)
	return nil
}

func (e *Engine) apply(c Change) {
	for _, m := range c.Members {
		e.members.put(m)
	}
	for _, a := range c.Accounts {
		e.accounts.put(a)
	}
	for _, p := range c.Permissions {
		e.perms.put(p)
	}
	for _, t := range c.Transactions {
		e.txlog.upsert(t)
	}
	for _, id := range c.RemovedAccounts {
		e.accounts.delete(id)
		e.perms.delete(id)
	}
}

func (e *Engine) notify(ctx context.Context, events ...Event) {
	if e.notifier == nil {
		return
	}
	for _, ev := range events {
		e.notifier.Notify(ctx, ev)
	}
}

// Restore loads s into an empty engine without journaling it. It is how a
// persisted ledger comes back after a restart.
func (e *Engine) Restore(ctx context.Context, s State) error {
	if err := e.checkState(s); err != nil {
		return err
	}
	e.apply(stateChange(s))
	e.logger.InfoContext(ctx, "Ledger restored",
		"members", len(s.Members),
		"accounts", len(s.Accounts),
		"transactions", len(s.Transactions))
	return nil
}

// Import journals s and loads it. Records are taken as they are: balances and
// transaction statuses are not recomputed or re-authorized.
func (e *Engine) Import(ctx context.Context, s State) error {
	if err := e.checkState(s); err != nil {
		return err
	}
	return e.commit(ctx, stateChange(s))
}

func stateChange(s State) Change {
	return Change{
		Members:      s.Members,
		Accounts:     s.Accounts,
		Permissions:  s.Permissions,
		Transactions: s.Transactions,
	}
}

// checkState verifies referential integrity of s against itself and the
// records already loaded.
func (e *Engine) checkState(s State) error {
	members := make(map[string]bool, len(s.Members))
	for _, m := range s.Members {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
		members[m.ID] = true
	}
	owners := make(map[string]string, len(s.Accounts))
	accounts := make(map[string]bool, len(s.Accounts))
	for _, a := range s.Accounts {
		if !members[a.MemberID] {
			if _, err := e.members.get(a.MemberID); err != nil {
				return fmt.Errorf("account %s: %w", a.ID, err)
			}
		}
		if other, dup := owners[a.MemberID]; dup {
			return fmt.Errorf("account %s: member %s already owns %s: %w", a.ID, a.MemberID, other, core.ErrAccountExists)
		}
		if existing, ok := e.accounts.byMember(a.MemberID); ok && existing.ID != a.ID {
			return fmt.Errorf("account %s: %w", a.ID, core.ErrAccountExists)
		}
		if !a.SpendPeriod.Valid() {
			return fmt.Errorf("account %s: %w", a.ID, core.ErrInvalidPeriod)
		}
		if !a.PermissionLevel.Valid() {
			return fmt.Errorf("account %s: %w", a.ID, core.ErrInvalidLevel)
		}
		owners[a.MemberID] = a.ID
		accounts[a.ID] = true
	}
	known := func(id string) bool {
		if accounts[id] {
			return true
		}
		_, ok := e.accounts.get(id)
		return ok
	}
	for _, p := range s.Permissions {
		if !known(p.SubAccountID) {
			return fmt.Errorf("permissions for %s: %w", p.SubAccountID, core.ErrAccountNotFound)
		}
	}
	for _, t := range s.Transactions {
		if !known(t.SubAccountID) {
			return fmt.Errorf("transaction %s: %w", t.ID, core.ErrAccountNotFound)
		}
		if !t.Type.Valid() || !t.Status.Valid() {
			return fmt.Errorf("transaction %s: %w", t.ID, core.ErrInvalidType)
		}
		if err := t.Amount.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

// Snapshot copies the whole ledger. Accounts are read one at a time, so
// concurrent writers may make it inconsistent across accounts.
func (e *Engine) Snapshot() State {
	return State{
		Members:      e.members.list(),
		Accounts:     e.accounts.list(),
		Permissions:  e.perms.list(),
		Transactions: e.txlog.inserted(),
	}
}
