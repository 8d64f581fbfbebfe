// Package seed loads the demo family used by local and in-memory deployments.
package seed

import (
	"context"
	"fmt"
	"time"

	"famfunds/internal/core"
	"famfunds/internal/ledger"
)

var (
	created = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	updated = time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC)
)

func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

// Family returns the demo state: two parents, two children, one sub-account
// each and a week of October 2024 activity, including one debit that is
// still waiting for approval.
func Family() ledger.State {
	member := func(id, name, email, avatar string, role core.Role, age int) core.Member {
		return core.Member{ID: id, Name: name, Email: email, Avatar: avatar, Role: role, Age: age, CreatedAt: created}
	}
	account := func(id, memberID string, balance, limit int64, period core.SpendPeriod, level core.PermissionLevel) core.SubAccount {
		return core.SubAccount{
			ID:              id,
			MemberID:        memberID,
			Balance:         core.Cents(balance),
			SpendLimit:      core.Cents(limit),
			SpendPeriod:     period,
			PermissionLevel: level,
			IsActive:        true,
			CreatedAt:       created,
			UpdatedAt:       updated,
		}
	}
	type txSpec struct {
		id, sub, member string
		cents           int64
		typ             core.TransactionType
		category, desc  string
		merchant        string
		ts              time.Time
	}
	settled := func(s txSpec) core.Transaction {
		return core.Transaction{
			ID:           s.id,
			SubAccountID: s.sub,
			MemberID:     s.member,
			Amount:       core.Cents(s.cents),
			Type:         s.typ,
			Category:     s.category,
			Description:  s.desc,
			Merchant:     s.merchant,
			Status:       core.StatusCompleted,
			Timestamp:    s.ts,
		}
	}

	pending := settled(txSpec{"txn-5", "sub-4", "member-4", 60_00, core.Debit, "entertainment", "Video game purchase", "Game Store", at(time.October, 16, 10, 20)})
	pending.Status = core.StatusPending
	pending.Metadata = core.Metadata{RequiresApproval: true, Reason: core.ReasonApprovalThreshold}

	return ledger.State{
		Members: []core.Member{
			member("member-1", "Sarah Johnson", "sarah.johnson@example.com", "👩‍💼", core.RoleParent, 42),
			member("member-2", "Michael Johnson", "michael.johnson@example.com", "👨‍💼", core.RoleParent, 44),
			member("member-3", "Emma Johnson", "emma.johnson@example.com", "👧", core.RoleChild, 16),
			member("member-4", "Lucas Johnson", "lucas.johnson@example.com", "👦", core.RoleChild, 13),
		},
		Accounts: []core.SubAccount{
			account("sub-1", "member-1", 5000_00, 2000_00, core.Monthly, core.LevelFull),
			account("sub-2", "member-2", 4500_00, 2000_00, core.Monthly, core.LevelFull),
			account("sub-3", "member-3", 350_00, 200_00, core.Weekly, core.LevelLimited),
			account("sub-4", "member-4", 150_00, 50_00, core.Weekly, core.LevelViewOnly),
		},
		Permissions: []core.PermissionProfile{
			{SubAccountID: "sub-1", CanTransfer: true, CanViewFamily: true, CanRequestFunds: true},
			{SubAccountID: "sub-2", CanTransfer: true, CanViewFamily: true, CanRequestFunds: true},
			{SubAccountID: "sub-3", CanViewFamily: true, CanRequestFunds: true, RequiresApproval: true, ApprovalThreshold: core.Cents(50_00)},
			{SubAccountID: "sub-4", CanRequestFunds: true, RequiresApproval: true, ApprovalThreshold: core.Cents(25_00)},
		},
		Transactions: []core.Transaction{
			settled(txSpec{"txn-1", "sub-3", "member-3", 45_99, core.Debit, "shopping", "New clothes", "Fashion Store", at(time.October, 14, 14, 30)}),
			settled(txSpec{"txn-2", "sub-4", "member-4", 12_50, core.Debit, "food", "School lunch", "School Cafeteria", at(time.October, 15, 12, 15)}),
			settled(txSpec{"txn-3", "sub-3", "member-3", 25_00, core.Credit, "allowance", "Weekly allowance", "", at(time.October, 13, 9, 0)}),
			settled(txSpec{"txn-4", "sub-1", "member-1", 125_75, core.Debit, "groceries", "Weekly groceries", "Supermarket", at(time.October, 15, 18, 45)}),
			pending,
			settled(txSpec{"txn-6", "sub-2", "member-2", 89_99, core.Debit, "utilities", "Internet bill", "ISP Provider", at(time.October, 12, 8, 30)}),
			settled(txSpec{"txn-7", "sub-3", "member-3", 15_00, core.Debit, "transportation", "Bus pass", "Transit Authority", at(time.October, 10, 7, 15)}),
		},
	}
}

// Demo imports Family into e. If the demo members are already present it
// returns an error wrapping core.ErrMemberExists and leaves e untouched.
func Demo(ctx context.Context, e *ledger.Engine) error {
	family := Family()
	for _, m := range family.Members {
		if _, err := e.Member(m.ID); err == nil {
			return fmt.Errorf("seed demo family: %s: %w", m.ID, core.ErrMemberExists)
		}
	}
	if err := e.Import(ctx, family); err != nil {
		return fmt.Errorf("seed demo family: %w", err)
	}
	return nil
}
