package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"go.uber.org/zap"
)

// SweepResult reports what an overdue sweep changed.
type SweepResult struct {
	Flipped  int         `json:"flipped"`
	Students []uuid.UUID `json:"students"`
}

// SweepOverdue marks every pending installment due before today as overdue
// and recomputes the status of each affected student, all in one
// transaction. Students are locked in id order before their installments
// are touched, the same order payments use. Running it twice on the same
// day changes nothing.
func (l *Ledger) SweepOverdue(ctx context.Context) (*SweepResult, error) {
	now := l.now()
	today := calendar.Truncate(now)
	res := &SweepResult{Students: []uuid.UUID{}}

	err := l.storage.WithTx(ctx, func(tx store.Repository) error {
		students, err := tx.ListStudentsPendingBefore(ctx, today)
		if err != nil {
			return err
		}
		for _, id := range students {
			st, err := tx.LockStudent(ctx, id)
			if err != nil {
				return err
			}
			n, err := tx.MarkInstallmentsOverdue(ctx, id, today, now)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			if _, err := l.recompute(ctx, tx, st); err != nil {
				return err
			}
			res.Flipped += n
			res.Students = append(res.Students, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("overdue sweep finished",
		zap.Int("flipped", res.Flipped),
		zap.Int("students", len(res.Students)),
		zap.String("as_of", calendar.Format(today)),
	)
	return res, nil
}
