package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/schedule"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ResolveInstallment finds the installment a payment for studentID targets.
// With an explicit installmentID the installment must belong to the student.
// Without one, allowAdvance extends the schedule by one installment and
// returns it; the new installment is persisted.
func (l *Ledger) ResolveInstallment(ctx context.Context, studentID uuid.UUID, installmentID *uuid.UUID, allowAdvance bool) (*models.Installment, error) {
	var inst *models.Installment
	err := l.withStudent(ctx, studentID, func(tx store.Repository, st *models.Student) error {
		var err error
		inst, err = l.resolve(ctx, tx, st, installmentID, allowAdvance)
		return err
	})
	return inst, err
}

func (l *Ledger) resolve(ctx context.Context, tx store.Repository, st *models.Student, installmentID *uuid.UUID, allowAdvance bool) (*models.Installment, error) {
	if installmentID != nil {
		inst, err := tx.GetInstallment(ctx, *installmentID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && inst.StudentID != st.ID) {
			return nil, ErrInstallmentNotFound
		}
		return inst, err
	}
	if !allowAdvance {
		return nil, ErrInstallmentRequired
	}
	return l.advance(ctx, tx, st)
}

// advance appends the installment following the student's last one, priced
// at the plan's current installment amount.
func (l *Ledger) advance(ctx context.Context, tx store.Repository, st *models.Student) (*models.Installment, error) {
	last, err := tx.GetLastInstallment(ctx, st.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoScheduleBase
	}
	if err != nil {
		return nil, err
	}

	plan, err := tx.GetPlan(ctx, st.PlanID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	next := schedule.Next(last, st.StartDate.Day(), plan.InstallmentAmount)
	next.CreatedAt = l.now()
	next.UpdatedAt = next.CreatedAt
	if err := tx.CreateInstallments(ctx, []*models.Installment{next}); err != nil {
		return nil, err
	}

	l.logger.Info("schedule advanced",
		zap.String("student_id", st.ID.String()),
		zap.Int("sequence", next.Sequence),
		zap.Time("due_date", next.DueDate),
	)
	return next, nil
}
