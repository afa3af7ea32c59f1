// Package latefee computes the surcharge owed on an overdue installment.
package latefee

import (
	"time"

	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/shopspring/decimal"
)

// DefaultDailyRate is the daily surcharge, in percent, used when none is configured.
var DefaultDailyRate = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of a late-fee computation.
type Result struct {
	DaysOverdue int             `json:"days_overdue"`
	Fee         decimal.Decimal `json:"fee"`
}

// Compute returns the whole calendar days from dueDate to now's calendar day
// and the fee amount × days × dailyRatePercent / 100, rounded half-up to
// cents. now is read as a date in its own location, the same way student
// status and the overdue sweep read "today", so a payment on the due date
// owes nothing whatever the hour or zone. Compute never fails.
func Compute(amount decimal.Decimal, dueDate time.Time, dailyRatePercent decimal.Decimal, now time.Time) Result {
	days := calendar.DaysBetween(calendar.Truncate(dueDate), calendar.Truncate(now))
	if days <= 0 {
		return Result{Fee: decimal.Zero}
	}
	if dailyRatePercent.Sign() <= 0 {
		return Result{DaysOverdue: days, Fee: decimal.Zero}
	}

	fee := amount.
		Mul(decimal.NewFromInt(int64(days))).
		Mul(dailyRatePercent).
		Div(hundred).
		Round(2)
	return Result{DaysOverdue: days, Fee: fee}
}
