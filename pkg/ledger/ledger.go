package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/latefee"
	"github.com/mcclellann/tuitionLedger/pkg/locker"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCancelReason = "Cancelled by user"

// Ledger is the billing and collections engine: it materializes installment
// schedules, applies and reverses payments and keeps student status in line
// with the installment set.
type Ledger struct {
	storage          store.Storage
	rates            RateSource
	locks            locker.Locker
	logger           *zap.Logger
	now              func() time.Time
	enrollmentPrefix string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithRateSource replaces the store-backed late-fee rate.
func WithRateSource(r RateSource) Option {
	return func(l *Ledger) { l.rates = r }
}

// WithLocker replaces the in-process per-student locker.
func WithLocker(lk locker.Locker) Option {
	return func(l *Ledger) { l.locks = lk }
}

// WithLogger sets the logger completed mutations are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithEnrollmentPrefix sets the prefix of generated enrollment numbers.
func WithEnrollmentPrefix(prefix string) Option {
	return func(l *Ledger) { l.enrollmentPrefix = prefix }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage:          s,
		locks:            locker.NewLocal(),
		logger:           zap.NewNop(),
		now:              time.Now,
		enrollmentPrefix: "STU",
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rates == nil {
		l.rates = NewStoreRate(s, latefee.DefaultDailyRate)
	}
	return l
}

// withStudent runs fn in a transaction holding both the per-student lock and
// the student's row lock.
func (l *Ledger) withStudent(ctx context.Context, studentID uuid.UUID, fn func(tx store.Repository, st *models.Student) error) error {
	unlock, err := l.locks.Lock(ctx, "student:"+studentID.String())
	if err != nil {
		return errors.Wrap(err, "failed to lock student")
	}
	defer unlock()

	return l.storage.WithTx(ctx, func(tx store.Repository) error {
		st, err := tx.LockStudent(ctx, studentID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrStudentNotFound
		}
		if err != nil {
			return err
		}
		return fn(tx, st)
	})
}

// ApplyPayment records a payment and, for installment payments, marks the
// target installment paid. Payment, installment and student status are
// written in one transaction.
func (l *Ledger) ApplyPayment(ctx context.Context, req models.PaymentRequest) (*models.Payment, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	switch req.Category {
	case models.PaymentCategoryInstallment:
		if req.InstallmentID == nil && !req.Advance {
			return nil, ErrInstallmentRequired
		}
	case models.PaymentCategoryAdjustment:
		if req.InstallmentID != nil {
			return nil, ErrInstallmentNotAllowed
		}
	}

	rate := latefee.DefaultDailyRate
	if req.Category == models.PaymentCategoryInstallment {
		var err error
		if rate, err = l.rates.DailyRate(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to read late-fee rate")
		}
	}

	var payment *models.Payment
	err := l.withStudent(ctx, req.StudentID, func(tx store.Repository, st *models.Student) error {
		var inst *models.Installment
		var err error
		switch {
		case req.Category == models.PaymentCategoryInstallment:
			inst, err = l.resolve(ctx, tx, st, req.InstallmentID, req.Advance)
		case req.InstallmentID != nil:
			inst, err = l.resolve(ctx, tx, st, req.InstallmentID, false)
		}
		if err != nil {
			return err
		}

		now := l.now()
		p := newPayment(req, now)

		lateFee := decimal.Zero
		if req.LateFee != nil {
			lateFee = *req.LateFee
		}
		if inst != nil {
			id, due := inst.ID, inst.DueDate
			p.InstallmentID = &id
			p.DueDate = &due

			// fee is read from the installment before it is written
			fee := latefee.Compute(inst.Amount, inst.DueDate, rate, now)
			p.DaysLate = fee.DaysOverdue
			if req.Category == models.PaymentCategoryInstallment {
				lateFee = fee.Fee
				if p.Concept == "" {
					p.Concept = fmt.Sprintf("Installment #%d", inst.Sequence)
				}
			}
		}
		if p.Concept == "" {
			p.Concept = req.Category.Label()
		}
		p.LateFee = lateFee
		p.Total = p.Amount.Sub(p.Discount).Add(lateFee)

		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		if req.Category == models.PaymentCategoryInstallment {
			err := tx.MarkInstallmentPaid(ctx, inst.ID, req.PaidAt, now)
			if errors.Is(err, store.ErrConflict) {
				return ErrInstallmentNotPayable.withf("installment #%d is %s", inst.Sequence, inst.Status)
			}
			if err != nil {
				return err
			}
		}
		if _, err := l.recompute(ctx, tx, st); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment applied",
		zap.String("student_id", payment.StudentID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("receipt", payment.ReceiptNumber),
		zap.String("category", string(payment.Category)),
		zap.String("total", payment.Total.StringFixed(2)),
	)
	return payment, nil
}

func newPayment(req models.PaymentRequest, now time.Time) *models.Payment {
	return &models.Payment{
		ID:            uuid.New(),
		ReceiptNumber: ReceiptNumber(now),
		StudentID:     req.StudentID,
		Category:      req.Category,
		Concept:       req.Concept,
		Amount:        req.Amount,
		Discount:      req.Discount,
		Method:        req.Method,
		Reference:     req.Reference,
		Bank:          req.Bank,
		PaidAt:        req.PaidAt,
		CashierID:     req.CashierID,
		Notes:         req.Notes,
		ReceiptURL:    req.ReceiptURL,
		Status:        models.PaymentStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RecordAdjustment records a manual correction. It never references an
// installment and never computes a late fee.
func (l *Ledger) RecordAdjustment(ctx context.Context, req models.AdjustmentRequest) (*models.Payment, error) {
	return l.ApplyPayment(ctx, models.PaymentRequest{
		StudentID: req.StudentID,
		Category:  models.PaymentCategoryAdjustment,
		Concept:   req.Concept,
		Amount:    req.Amount,
		Discount:  req.Discount,
		Method:    req.Method,
		PaidAt:    req.PaidAt,
		Reference: req.Reference,
		Bank:      req.Bank,
		CashierID: req.CashierID,
		Notes:     req.Notes,
	})
}

// CancelPayment soft-reverses a payment. An installment payment returns its
// installment to pending with no paid date.
func (l *Ledger) CancelPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	if reason == "" {
		reason = defaultCancelReason
	}

	p, err := l.storage.GetPayment(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Status == models.PaymentStatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	err = l.withStudent(ctx, p.StudentID, func(tx store.Repository, st *models.Student) error {
		now := l.now()
		err := tx.CancelPayment(ctx, p.ID, reason, now)
		if errors.Is(err, store.ErrConflict) {
			return ErrAlreadyCancelled
		}
		if err != nil {
			return err
		}
		if p.Category == models.PaymentCategoryInstallment && p.InstallmentID != nil {
			if err := tx.ReopenInstallment(ctx, *p.InstallmentID, now); err != nil {
				return err
			}
		}
		if _, err := l.recompute(ctx, tx, st); err != nil {
			return err
		}
		p.Status = models.PaymentStatusCancelled
		p.CancelledAt = &now
		p.CancellationReason = reason
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment cancelled",
		zap.String("student_id", p.StudentID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.String("receipt", p.ReceiptNumber),
		zap.String("reason", reason),
	)
	return p, nil
}

// GetPayment retrieves a payment by its ID.
func (l *Ledger) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := l.storage.GetPayment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// ListPayments returns a student's payments, most recent first.
func (l *Ledger) ListPayments(ctx context.Context, studentID uuid.UUID) ([]*models.Payment, error) {
	if _, err := l.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return l.storage.GetPaymentsForStudent(ctx, studentID)
}
