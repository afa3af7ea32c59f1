package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (l *Ledger) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	st, err := l.storage.GetStudent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrStudentNotFound
	}
	return st, err
}

// Withdraw applies the withdrawn override. Status recomputation leaves a
// withdrawn student untouched from then on.
func (l *Ledger) Withdraw(ctx context.Context, studentID uuid.UUID, reason string) (*models.Student, error) {
	var out *models.Student
	err := l.withStudent(ctx, studentID, func(tx store.Repository, st *models.Student) error {
		now := l.now()
		if err := tx.WithdrawStudent(ctx, st.ID, reason, now); err != nil {
			return err
		}
		st.UpdatedAt = now
		st.Status = models.StudentStatusWithdrawn
		st.WithdrawalReason = reason
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("student withdrawn", zap.String("student_id", studentID.String()))
	return out, nil
}

// ListInstallments returns all installments of a student in sequence order.
func (l *Ledger) ListInstallments(ctx context.Context, studentID uuid.UUID) ([]*models.Installment, error) {
	if _, err := l.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return l.storage.GetInstallmentsForStudent(ctx, studentID)
}
