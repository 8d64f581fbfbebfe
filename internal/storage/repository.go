// Package storage is the SQLite write-through journal behind the ledger.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"famfunds/internal/core"
	"famfunds/internal/ledger"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteRepository persists ledger changes. Each Change is one SQL
// transaction, so a crash never leaves a balance without its transaction.
type SQLiteRepository struct {
	db *sql.DB
}

// DSN adds the pragmas the journal relies on to a database path.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Commit implements ledger.Journal.
func (r *SQLiteRepository) Commit(ctx context.Context, c ledger.Change) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range c.Members {
		if err := upsertMember(ctx, tx, m); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
	}
	for _, a := range c.Accounts {
		if err := upsertAccount(ctx, tx, a); err != nil {
			return fmt.Errorf("sub-account %s: %w", a.ID, err)
		}
	}
	for _, p := range c.Permissions {
		if err := upsertPermissions(ctx, tx, p); err != nil {
			return fmt.Errorf("permissions %s: %w", p.SubAccountID, err)
		}
	}
	for _, t := range c.Transactions {
		if err := upsertTransaction(ctx, tx, t); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}
	for _, id := range c.RemovedAccounts {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sub_accounts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("remove sub-account %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertMember(ctx context.Context, tx *sql.Tx, m core.Member) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO members (id, name, email, avatar, age, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			avatar = excluded.avatar,
			age = excluded.age`,
		m.ID, m.Name, m.Email, m.Avatar, m.Age, string(m.Role), m.CreatedAt.Format(timeLayout))
	return err
}

func upsertAccount(ctx context.Context, tx *sql.Tx, a core.SubAccount) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sub_accounts (id, member_id, balance_cents, spend_limit_cents, spend_period,
			permission_level, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			balance_cents = excluded.balance_cents,
			spend_limit_cents = excluded.spend_limit_cents,
			spend_period = excluded.spend_period,
			permission_level = excluded.permission_level,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		a.ID, a.MemberID, a.Balance.Cents, a.SpendLimit.Cents, string(a.SpendPeriod),
		string(a.PermissionLevel), a.IsActive, a.CreatedAt.Format(timeLayout), a.UpdatedAt.Format(timeLayout))
	return err
}

func upsertPermissions(ctx context.Context, tx *sql.Tx, p core.PermissionProfile) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO permission_profiles (sub_account_id, can_transfer, can_view_family,
			can_request_funds, requires_approval, approval_threshold_cents)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (sub_account_id) DO UPDATE SET
			can_transfer = excluded.can_transfer,
			can_view_family = excluded.can_view_family,
			can_request_funds = excluded.can_request_funds,
			requires_approval = excluded.requires_approval,
			approval_threshold_cents = excluded.approval_threshold_cents`,
		p.SubAccountID, p.CanTransfer, p.CanViewFamily, p.CanRequestFunds, p.RequiresApproval, p.ApprovalThreshold.Cents)
	return err
}

// upsertTransaction only ever changes status fields of an existing row; the
// rowid keeps the original insertion order.
func upsertTransaction(ctx context.Context, tx *sql.Tx, t core.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, sub_account_id, member_id, amount_cents, type, category,
			description, merchant, status, timestamp, requires_approval, reason, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			requires_approval = excluded.requires_approval,
			reason = excluded.reason,
			resolution = excluded.resolution`,
		t.ID, t.SubAccountID, t.MemberID, t.Amount.Cents, string(t.Type), t.Category,
		t.Description, t.Merchant, string(t.Status), t.Timestamp.Format(timeLayout),
		t.Metadata.RequiresApproval, t.Metadata.Reason, t.Metadata.Resolution)
	return err
}

// Load reads the whole ledger back, transactions in insertion order.
func (r *SQLiteRepository) Load(ctx context.Context) (ledger.State, error) {
	var (
		s   ledger.State
		err error
	)
	if s.Members, err = r.loadMembers(ctx); err != nil {
		return ledger.State{}, fmt.Errorf("load members: %w", err)
	}
	if s.Accounts, err = r.loadAccounts(ctx); err != nil {
		return ledger.State{}, fmt.Errorf("load sub-accounts: %w", err)
	}
	if s.Permissions, err = r.loadPermissions(ctx); err != nil {
		return ledger.State{}, fmt.Errorf("load permissions: %w", err)
	}
	if s.Transactions, err = r.loadTransactions(ctx); err != nil {
		return ledger.State{}, fmt.Errorf("load transactions: %w", err)
	}

	slog.InfoContext(ctx, "Ledger loaded from SQLite",
		"members", len(s.Members),
		"accounts", len(s.Accounts),
		"transactions", len(s.Transactions))
	return s, nil
}

func (r *SQLiteRepository) loadMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, avatar, age, role, created_at FROM members ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var (
			m       core.Member
			role    string
			created string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Avatar, &m.Age, &role, &created); err != nil {
			return nil, err
		}
		m.Role = core.Role(role)
		if m.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("member %s created_at: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadAccounts(ctx context.Context) ([]core.SubAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, balance_cents, spend_limit_cents, spend_period, permission_level,
			is_active, created_at, updated_at
		FROM sub_accounts ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.SubAccount
	for rows.Next() {
		var (
			a                core.SubAccount
			period, level    string
			created, updated string
		)
		if err := rows.Scan(&a.ID, &a.MemberID, &a.Balance.Cents, &a.SpendLimit.Cents, &period, &level,
			&a.IsActive, &created, &updated); err != nil {
			return nil, err
		}
		a.SpendPeriod = core.SpendPeriod(period)
		a.PermissionLevel = core.PermissionLevel(level)
		if a.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("sub-account %s created_at: %w", a.ID, err)
		}
		if a.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("sub-account %s updated_at: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadPermissions(ctx context.Context) ([]core.PermissionProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sub_account_id, can_transfer, can_view_family, can_request_funds,
			requires_approval, approval_threshold_cents
		FROM permission_profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.PermissionProfile
	for rows.Next() {
		var p core.PermissionProfile
		if err := rows.Scan(&p.SubAccountID, &p.CanTransfer, &p.CanViewFamily, &p.CanRequestFunds,
			&p.RequiresApproval, &p.ApprovalThreshold.Cents); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) loadTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sub_account_id, member_id, amount_cents, type, category, description, merchant,
			status, timestamp, requires_approval, reason, resolution
		FROM transactions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t           core.Transaction
			typ, status string
			ts          string
		)
		if err := rows.Scan(&t.ID, &t.SubAccountID, &t.MemberID, &t.Amount.Cents, &typ, &t.Category,
			&t.Description, &t.Merchant, &status, &ts, &t.Metadata.RequiresApproval,
			&t.Metadata.Reason, &t.Metadata.Resolution); err != nil {
			return nil, err
		}
		t.Type = core.TransactionType(typ)
		t.Status = core.TransactionStatus(status)
		if t.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("transaction %s timestamp: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
