package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/latefee"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/schedule"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PendingInstallment is an unpaid installment with the late fee it would carry if paid now.
type PendingInstallment struct {
	*models.Installment
	DaysOverdue int             `json:"days_overdue"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

// SuggestedInstallment describes the installment an advance payment would create.
type SuggestedInstallment struct {
	Sequence int             `json:"sequence"`
	DueDate  time.Time       `json:"due_date"`
	Amount   decimal.Decimal `json:"amount"`
}

// PendingOrNext lists what a student can pay.
type PendingOrNext struct {
	Pending       []PendingInstallment  `json:"pending"`
	SuggestedNext *SuggestedInstallment `json:"suggested_next,omitempty"`
}

// ListPendingOrNext returns the student's pending and overdue installments.
// When there are none it suggests the next installment instead, without
// creating it.
func (l *Ledger) ListPendingOrNext(ctx context.Context, studentID uuid.UUID) (*PendingOrNext, error) {
	st, err := l.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	open, err := l.storage.GetInstallmentsForStudent(ctx, studentID,
		models.InstallmentStatusPending, models.InstallmentStatusOverdue)
	if err != nil {
		return nil, err
	}

	out := &PendingOrNext{Pending: []PendingInstallment{}}
	if len(open) > 0 {
		rate, err := l.rates.DailyRate(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read late-fee rate")
		}
		now := l.now()
		for _, inst := range open {
			fee := latefee.Compute(inst.Amount, inst.DueDate, rate, now)
			out.Pending = append(out.Pending, PendingInstallment{Installment: inst, DaysOverdue: fee.DaysOverdue, LateFee: fee.Fee})
		}
		return out, nil
	}

	plan, err := l.GetPlan(ctx, st.PlanID)
	if err != nil {
		return nil, err
	}
	last, err := l.storage.GetLastInstallment(ctx, studentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		out.SuggestedNext = &SuggestedInstallment{Sequence: 1, DueDate: st.StartDate, Amount: plan.InstallmentAmount}
	case err != nil:
		return nil, err
	default:
		out.SuggestedNext = &SuggestedInstallment{
			Sequence: last.Sequence + 1,
			DueDate:  schedule.NextDueDate(last.DueDate, st.StartDate.Day()),
			Amount:   plan.InstallmentAmount,
		}
	}
	return out, nil
}
