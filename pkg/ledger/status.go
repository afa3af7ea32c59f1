package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/store"
)

// DeriveStatus computes a student's standing from installment counts.
// Withdrawn is an override and is returned unchanged. Otherwise any overdue
// installment makes the student overdue, then any pending one makes them
// owing. With nothing outstanding the student is graduated once validUntil
// has been reached and current before that.
func DeriveStatus(current models.StudentStatus, counts map[models.InstallmentStatus]int, validUntil, now time.Time) models.StudentStatus {
	switch {
	case current == models.StudentStatusWithdrawn:
		return models.StudentStatusWithdrawn
	case counts[models.InstallmentStatusOverdue] > 0:
		return models.StudentStatusOverdue
	case counts[models.InstallmentStatusPending] > 0:
		return models.StudentStatusOwing
	case !validUntil.After(calendar.Truncate(now)):
		return models.StudentStatusGraduated
	default:
		return models.StudentStatusCurrent
	}
}

// RecomputeStatus re-derives and persists a student's status.
func (l *Ledger) RecomputeStatus(ctx context.Context, studentID uuid.UUID) (models.StudentStatus, error) {
	var status models.StudentStatus
	err := l.withStudent(ctx, studentID, func(tx store.Repository, st *models.Student) error {
		var err error
		status, err = l.recompute(ctx, tx, st)
		return err
	})
	return status, err
}

// recompute writes the student's status only when it changed.
func (l *Ledger) recompute(ctx context.Context, tx store.Repository, st *models.Student) (models.StudentStatus, error) {
	if st.Status == models.StudentStatusWithdrawn {
		return st.Status, nil
	}
	counts, err := tx.CountInstallmentsByStatus(ctx, st.ID)
	if err != nil {
		return "", err
	}
	now := l.now()
	status := DeriveStatus(st.Status, counts, st.ValidUntil, now)
	if status == st.Status {
		return status, nil
	}
	if err := tx.UpdateStudentStatus(ctx, st.ID, status, now); err != nil {
		return "", err
	}
	st.Status = status
	st.UpdatedAt = now
	return status, nil
}
