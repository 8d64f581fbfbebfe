package ledger

import (
	"time"

	"famfunds/internal/core"
)

// RecentWindow is how far back Overview looks for recent spending.
const RecentWindow = 30 * 24 * time.Hour

type AccountSummary struct {
	SubAccountID    string               `json:"subAccountId"`
	MemberID        string               `json:"memberId"`
	MemberName      string               `json:"memberName"`
	Balance         core.Money           `json:"balance"`
	SpendLimit      core.Money           `json:"spendLimit"`
	SpendPeriod     core.SpendPeriod     `json:"spendPeriod"`
	PeriodSpend     core.Money           `json:"periodSpend"`
	PermissionLevel core.PermissionLevel `json:"permissionLevel"`
	IsActive        bool                 `json:"isActive"`
}

// Overview is a read-only dashboard snapshot.
type Overview struct {
	AsOf         time.Time        `json:"asOf"`
	TotalBalance core.Money       `json:"totalBalance"`
	RecentSpend  core.Money       `json:"recentSpend"`
	PendingCount int              `json:"pendingCount"`
	Accounts     []AccountSummary `json:"accounts"`
}

// Overview aggregates balances of active accounts, completed debits over the
// last RecentWindow and the approval queue. Accounts are read one at a time,
// so the totals are not a single atomic cut across accounts.
func (e *Engine) Overview(asOf time.Time) Overview {
	asOf = asOf.In(e.loc)
	from := asOf.Add(-RecentWindow)
	ov := Overview{AsOf: asOf, Accounts: []AccountSummary{}}

	for _, a := range e.accounts.list() {
		s := AccountSummary{
			SubAccountID:    a.ID,
			MemberID:        a.MemberID,
			Balance:         a.Balance,
			SpendLimit:      a.SpendLimit,
			SpendPeriod:     a.SpendPeriod,
			PeriodSpend:     e.txlog.sumCompletedDebits(a.ID, PeriodStart(a.SpendPeriod, asOf), asOf),
			PermissionLevel: a.PermissionLevel,
			IsActive:        a.IsActive,
		}
		if m, err := e.members.get(a.MemberID); err == nil {
			s.MemberName = m.Name
		}
		if a.IsActive {
			ov.TotalBalance = ov.TotalBalance.Add(a.Balance)
		}
		ov.RecentSpend = ov.RecentSpend.Add(e.txlog.sumCompletedDebits(a.ID, from, asOf))
		ov.Accounts = append(ov.Accounts, s)
	}
	ov.PendingCount = len(e.Pending())
	return ov
}
