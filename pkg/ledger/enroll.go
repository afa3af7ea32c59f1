package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/schedule"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Enroll materializes the installment schedule of a student. A zero planID or
// startDate uses the student's own; a different one is written back to the
// student together with the validity end it implies, so later advances and
// status checks follow the schedule. Enrolling a student that already has a
// schedule is a no-op returning the existing installments.
func (l *Ledger) Enroll(ctx context.Context, studentID, planID uuid.UUID, startDate time.Time) ([]*models.Installment, error) {
	var installments []*models.Installment
	created := false
	err := l.withStudent(ctx, studentID, func(tx store.Repository, st *models.Student) error {
		existing, err := tx.GetInstallmentsForStudent(ctx, st.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			installments = existing
			return nil
		}

		if planID == uuid.Nil {
			planID = st.PlanID
		}
		if startDate.IsZero() {
			startDate = st.StartDate
		}
		startDate = calendar.Truncate(startDate)
		plan, err := l.activePlan(ctx, tx, planID)
		if err != nil {
			return err
		}

		if plan.ID != st.PlanID || !startDate.Equal(st.StartDate) {
			st.PlanID = plan.ID
			st.StartDate = startDate
			st.ValidUntil = calendar.AddMonths(startDate, plan.ValidityMonths, 0)
			st.UpdatedAt = l.now()
			if err := tx.UpdateStudentEnrollment(ctx, st); err != nil {
				return err
			}
		}

		installments, err = l.createSchedule(ctx, tx, st, plan, startDate)
		if err != nil {
			return err
		}
		created = true
		_, err = l.recompute(ctx, tx, st)
		return err
	})
	if err != nil {
		return nil, err
	}

	if created {
		l.logger.Info("schedule generated",
			zap.String("student_id", studentID.String()),
			zap.Int("installments", len(installments)),
		)
	}
	return installments, nil
}

// Admit creates a student on a plan together with their installment schedule.
func (l *Ledger) Admit(ctx context.Context, req models.NewStudent) (*models.Student, []*models.Installment, error) {
	if err := validateStruct(req); err != nil {
		return nil, nil, err
	}

	// enrollment numbers are sequential per year
	unlock, err := l.locks.Lock(ctx, "enrollment-number")
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to lock enrollment numbers")
	}
	defer unlock()

	start := calendar.Truncate(req.StartDate)
	enrolledOn := start
	if !req.EnrolledOn.IsZero() {
		enrolledOn = calendar.Truncate(req.EnrolledOn)
	}

	var st *models.Student
	var installments []*models.Installment
	err = l.storage.WithTx(ctx, func(tx store.Repository) error {
		plan, err := l.activePlan(ctx, tx, req.PlanID)
		if err != nil {
			return err
		}

		number := strings.TrimSpace(req.EnrollmentNumber)
		if number == "" {
			n, err := tx.CountStudentsEnrolledIn(ctx, enrolledOn.Year())
			if err != nil {
				return err
			}
			number = fmt.Sprintf("%s-%d-%03d", l.enrollmentPrefix, enrolledOn.Year(), n+1)
		}

		now := l.now()
		st = &models.Student{
			ID:               uuid.New(),
			EnrollmentNumber: number,
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			Email:            req.Email,
			Phone:            req.Phone,
			PlanID:           plan.ID,
			EnrolledOn:       enrolledOn,
			StartDate:        start,
			ValidUntil:       calendar.AddMonths(start, plan.ValidityMonths, 0),
			Status:           models.StudentStatusCurrent,
			Notes:            req.Notes,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreateStudent(ctx, st); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return &Error{Kind: KindConflict, Code: "enrollment_number_taken", Field: "enrollment_number",
					Message: fmt.Sprintf("enrollment number %s is already in use", number)}
			}
			return err
		}

		installments, err = l.createSchedule(ctx, tx, st, plan, start)
		if err != nil {
			return err
		}
		_, err = l.recompute(ctx, tx, st)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	l.logger.Info("student admitted",
		zap.String("student_id", st.ID.String()),
		zap.String("enrollment_number", st.EnrollmentNumber),
		zap.Int("installments", len(installments)),
	)
	return st, installments, nil
}

func (l *Ledger) activePlan(ctx context.Context, tx store.Repository, planID uuid.UUID) (*models.Plan, error) {
	plan, err := tx.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, ErrPlanInactive.withf("plan %s is not active", plan.Name)
	}
	return plan, nil
}

func (l *Ledger) createSchedule(ctx context.Context, tx store.Repository, st *models.Student, plan *models.Plan, start time.Time) ([]*models.Installment, error) {
	installments := schedule.Generate(st.ID, start, plan)
	now := l.now()
	for _, inst := range installments {
		inst.CreatedAt, inst.UpdatedAt = now, now
	}
	err := tx.CreateInstallments(ctx, installments)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrScheduleExists
	}
	if err != nil {
		return nil, err
	}
	return installments, nil
}
