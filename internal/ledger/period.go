package ledger

import (
	"time"

	"famfunds/internal/core"
)

// PeriodStart returns the first instant of the period containing asOf, in
// asOf's location. Weeks start on Sunday.
func PeriodStart(period core.SpendPeriod, asOf time.Time) time.Time {
	y, m, d := asOf.Date()
	loc := asOf.Location()
	switch period {
	case core.Daily:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case core.Weekly:
		return time.Date(y, m, d-int(asOf.Weekday()), 0, 0, 0, 0, loc)
	case core.Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	}
	return asOf
}

// CurrentSpend sums completed debits of the account between the start of the
// period and asOf, both inclusive. Pending and declined debits do not count.
func (e *Engine) CurrentSpend(subAccountID string, period core.SpendPeriod, asOf time.Time) core.Money {
	asOf = asOf.In(e.loc)
	return e.txlog.sumCompletedDebits(subAccountID, PeriodStart(period, asOf), asOf)
}
