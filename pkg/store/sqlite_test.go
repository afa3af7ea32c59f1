package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store_test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStudent(t *testing.T, s *SQLiteStore) (*models.Plan, *models.Student) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	plan := &models.Plan{
		ID:                uuid.New(),
		Name:              "Primary",
		InstallmentCount:  3,
		InstallmentAmount: decimal.RequireFromString("1500.50"),
		EnrollmentFee:     decimal.NewFromInt(500),
		ValidityMonths:    12,
		ExtensionMonths:   4,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("Failed to create plan: %v", err)
	}
	student := &models.Student{
		ID:               uuid.New(),
		EnrollmentNumber: "STU-2024-" + uuid.NewString()[:4],
		FirstName:        "Ana",
		LastName:         "Ruiz",
		PlanID:           plan.ID,
		EnrolledOn:       calendar.Date(2024, time.January, 10),
		StartDate:        calendar.Date(2024, time.January, 15),
		ValidUntil:       calendar.Date(2025, time.January, 15),
		Status:           models.StudentStatusOwing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.CreateStudent(ctx, student); err != nil {
		t.Fatalf("Failed to create student: %v", err)
	}
	return plan, student
}

func seedInstallments(t *testing.T, s *SQLiteStore, studentID uuid.UUID, dues ...time.Time) []*models.Installment {
	t.Helper()
	var insts []*models.Installment
	for i, due := range dues {
		insts = append(insts, &models.Installment{
			ID:        uuid.New(),
			StudentID: studentID,
			Sequence:  i + 1,
			DueDate:   due,
			Amount:    decimal.RequireFromString("1500.50"),
			Status:    models.InstallmentStatusPending,
		})
	}
	if err := s.CreateInstallments(context.Background(), insts); err != nil {
		t.Fatalf("Failed to create installments: %v", err)
	}
	return insts
}

func TestSQLiteStore_CreateAndGetPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedStudent(t, s)

	fetched, err := s.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("Failed to get plan: %v", err)
	}
	if fetched.Name != plan.Name {
		t.Errorf("Expected Name %s, got %s", plan.Name, fetched.Name)
	}
	if !fetched.InstallmentAmount.Equal(plan.InstallmentAmount) {
		t.Errorf("Expected InstallmentAmount %s, got %s", plan.InstallmentAmount, fetched.InstallmentAmount)
	}
	if !fetched.Active {
		t.Errorf("Expected plan to be active")
	}

	fetched.Active = false
	fetched.UpdatedAt = time.Now()
	if err := s.UpdatePlan(ctx, fetched); err != nil {
		t.Fatalf("Failed to update plan: %v", err)
	}
	active, err := s.GetAllPlans(ctx, true)
	if err != nil {
		t.Fatalf("Failed to list plans: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active plans, got %d", len(active))
	}

	if _, err := s.GetPlan(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_StudentDatesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, student := seedStudent(t, s)

	fetched, err := s.LockStudent(ctx, student.ID)
	if err != nil {
		t.Fatalf("Failed to get student: %v", err)
	}
	if !fetched.StartDate.Equal(student.StartDate) || !fetched.ValidUntil.Equal(student.ValidUntil) {
		t.Errorf("Dates did not round trip: got %s / %s", fetched.StartDate, fetched.ValidUntil)
	}

	n, err := s.CountStudentsEnrolledIn(ctx, 2024)
	if err != nil {
		t.Fatalf("Failed to count students: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 student enrolled in 2024, got %d", n)
	}

	withdrawnAt := time.Date(2024, time.April, 2, 8, 0, 0, 0, time.UTC)
	if err := s.WithdrawStudent(ctx, student.ID, "moved away", withdrawnAt); err != nil {
		t.Fatalf("Failed to withdraw student: %v", err)
	}
	fetched, _ = s.GetStudent(ctx, student.ID)
	if fetched.Status != models.StudentStatusWithdrawn || fetched.WithdrawalReason != "moved away" {
		t.Errorf("Expected withdrawn with reason, got %s %q", fetched.Status, fetched.WithdrawalReason)
	}
	if !fetched.UpdatedAt.Equal(withdrawnAt) {
		t.Errorf("Expected updated_at %s, got %s", withdrawnAt, fetched.UpdatedAt)
	}

	fetched.PlanID = uuid.New()
	fetched.StartDate = calendar.Date(2024, time.January, 31)
	fetched.ValidUntil = calendar.Date(2025, time.January, 31)
	fetched.UpdatedAt = withdrawnAt.Add(time.Hour)
	if err := s.UpdateStudentEnrollment(ctx, fetched); err != nil {
		t.Fatalf("Failed to update enrollment: %v", err)
	}
	moved, _ := s.GetStudent(ctx, student.ID)
	if moved.PlanID != fetched.PlanID || !moved.StartDate.Equal(fetched.StartDate) || !moved.ValidUntil.Equal(fetched.ValidUntil) {
		t.Errorf("Enrollment change did not persist: %s %s %s", moved.PlanID, moved.StartDate, moved.ValidUntil)
	}
	ghost := *fetched
	ghost.ID = uuid.New()
	if err := s.UpdateStudentEnrollment(ctx, &ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown student, got %v", err)
	}

	dup := *student
	dup.ID = uuid.New()
	if err := s.CreateStudent(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on duplicate enrollment number, got %v", err)
	}
}

func TestSQLiteStore_Installments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, student := seedStudent(t, s)
	insts := seedInstallments(t, s, student.ID,
		calendar.Date(2024, time.January, 15),
		calendar.Date(2024, time.February, 15),
		calendar.Date(2024, time.March, 15),
	)

	last, err := s.GetLastInstallment(ctx, student.ID)
	if err != nil {
		t.Fatalf("Failed to get last installment: %v", err)
	}
	if last.Sequence != 3 || !last.DueDate.Equal(calendar.Date(2024, time.March, 15)) {
		t.Errorf("Unexpected last installment: %d %s", last.Sequence, last.DueDate)
	}

	paidAt := time.Date(2024, time.January, 14, 10, 0, 0, 0, time.UTC)
	recordedAt := paidAt.Add(2 * time.Hour)
	if err := s.MarkInstallmentPaid(ctx, insts[0].ID, paidAt, recordedAt); err != nil {
		t.Fatalf("Failed to mark paid: %v", err)
	}
	paid, _ := s.GetInstallment(ctx, insts[0].ID)
	if !paid.UpdatedAt.Equal(recordedAt) {
		t.Errorf("Expected updated_at %s, got %s", recordedAt, paid.UpdatedAt)
	}
	if err := s.MarkInstallmentPaid(ctx, insts[0].ID, paidAt, recordedAt); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on second payment, got %v", err)
	}

	pending, err := s.GetInstallmentsForStudent(ctx, student.ID, models.InstallmentStatusPending, models.InstallmentStatusOverdue)
	if err != nil {
		t.Fatalf("Failed to list installments: %v", err)
	}
	if len(pending) != 2 || pending[0].Sequence != 2 {
		t.Errorf("Expected installments 2 and 3 pending, got %d", len(pending))
	}

	counts, err := s.CountInstallmentsByStatus(ctx, student.ID)
	if err != nil {
		t.Fatalf("Failed to count installments: %v", err)
	}
	if counts[models.InstallmentStatusPaid] != 1 || counts[models.InstallmentStatusPending] != 2 {
		t.Errorf("Unexpected counts: %v", counts)
	}

	if err := s.ReopenInstallment(ctx, insts[0].ID, recordedAt.Add(time.Hour)); err != nil {
		t.Fatalf("Failed to reopen installment: %v", err)
	}
	reopened, _ := s.GetInstallment(ctx, insts[0].ID)
	if reopened.Status != models.InstallmentStatusPending || reopened.PaidAt != nil {
		t.Errorf("Expected pending with no paid date, got %s %v", reopened.Status, reopened.PaidAt)
	}

	dup := *insts[2]
	dup.ID = uuid.New()
	if err := s.CreateInstallments(ctx, []*models.Installment{&dup}); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on duplicate sequence, got %v", err)
	}
}

func TestSQLiteStore_MarkInstallmentsOverdue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, student := seedStudent(t, s)
	insts := seedInstallments(t, s, student.ID,
		calendar.Date(2024, time.January, 15),
		calendar.Date(2024, time.February, 15),
		calendar.Date(2024, time.March, 15),
	)
	asOf := calendar.Date(2024, time.February, 15)
	at := asOf.Add(90 * time.Minute)

	students, err := s.ListStudentsPendingBefore(ctx, asOf)
	if err != nil {
		t.Fatalf("Failed to list students: %v", err)
	}
	if len(students) != 1 || students[0] != student.ID {
		t.Errorf("Expected the student to be listed, got %v", students)
	}

	if n, err := s.MarkInstallmentsOverdue(ctx, uuid.New(), asOf, at); err != nil || n != 0 {
		t.Errorf("Expected nothing flipped for another student, got %d (%v)", n, err)
	}

	n, err := s.MarkInstallmentsOverdue(ctx, student.ID, asOf, at)
	if err != nil {
		t.Fatalf("Failed to sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected one flipped installment, got %d", n)
	}
	flipped, _ := s.GetInstallment(ctx, insts[0].ID)
	if flipped.Status != models.InstallmentStatusOverdue || !flipped.UpdatedAt.Equal(at) {
		t.Errorf("Expected overdue stamped %s, got %s %s", at, flipped.Status, flipped.UpdatedAt)
	}

	n, err = s.MarkInstallmentsOverdue(ctx, student.ID, asOf, at)
	if err != nil {
		t.Fatalf("Failed to sweep again: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected sweep to be idempotent, flipped %d", n)
	}
	if students, _ := s.ListStudentsPendingBefore(ctx, asOf); len(students) != 0 {
		t.Errorf("Expected no students left to sweep, got %v", students)
	}
}

func TestSQLiteStore_Payments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, student := seedStudent(t, s)
	insts := seedInstallments(t, s, student.ID, calendar.Date(2024, time.January, 15))

	due := insts[0].DueDate
	now := time.Now()
	payment := &models.Payment{
		ID:            uuid.New(),
		ReceiptNumber: "REC-20240125-1234",
		StudentID:     student.ID,
		InstallmentID: &insts[0].ID,
		Category:      models.PaymentCategoryInstallment,
		Concept:       "Installment #1",
		Amount:        decimal.RequireFromString("1500.50"),
		Discount:      decimal.Zero,
		LateFee:       decimal.RequireFromString("150.05"),
		Total:         decimal.RequireFromString("1650.55"),
		Method:        models.PaymentMethodCash,
		PaidAt:        time.Date(2024, time.January, 25, 9, 30, 0, 0, time.UTC),
		DueDate:       &due,
		DaysLate:      10,
		CashierID:     "cashier-1",
		Status:        models.PaymentStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("Failed to create payment: %v", err)
	}

	fetched, err := s.GetPayment(ctx, payment.ID)
	if err != nil {
		t.Fatalf("Failed to get payment: %v", err)
	}
	if !fetched.Total.Equal(payment.Total) {
		t.Errorf("Expected Total %s, got %s", payment.Total, fetched.Total)
	}
	if fetched.InstallmentID == nil || *fetched.InstallmentID != insts[0].ID {
		t.Errorf("Expected installment reference to round trip")
	}
	if fetched.DueDate == nil || !fetched.DueDate.Equal(due) || fetched.CashierID != "cashier-1" {
		t.Errorf("Expected detail fields to round trip")
	}

	at := time.Now()
	if err := s.CancelPayment(ctx, payment.ID, "wrong student", at); err != nil {
		t.Fatalf("Failed to cancel payment: %v", err)
	}
	if err := s.CancelPayment(ctx, payment.ID, "again", at); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict on second cancel, got %v", err)
	}

	payments, err := s.GetPaymentsForStudent(ctx, student.ID)
	if err != nil {
		t.Fatalf("Failed to list payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Status != models.PaymentStatusCancelled || payments[0].CancellationReason != "wrong student" {
		t.Errorf("Expected one cancelled payment, got %+v", payments)
	}
}

func TestSQLiteStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, student := seedStudent(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Repository) error {
		if err := tx.UpdateStudentStatus(ctx, student.ID, models.StudentStatusCurrent, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	fetched, _ := s.GetStudent(ctx, student.ID)
	if fetched.Status != models.StudentStatusOwing {
		t.Errorf("Expected status to be rolled back to owing, got %s", fetched.Status)
	}
}

func TestSQLiteStore_Settings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "late_fee_daily_rate"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.PutSetting(ctx, "late_fee_daily_rate", "1.5", time.Now()); err != nil {
		t.Fatalf("Failed to put setting: %v", err)
	}
	if err := s.PutSetting(ctx, "late_fee_daily_rate", "2", time.Now()); err != nil {
		t.Fatalf("Failed to overwrite setting: %v", err)
	}
	v, err := s.GetSetting(ctx, "late_fee_daily_rate")
	if err != nil || v != "2" {
		t.Errorf("Expected 2, got %q (%v)", v, err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := sqliteDSN("tuition.db")
	want := "file:tuition.db?_txlock=immediate&_foreign_keys=on&_busy_timeout=5000"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if got := sqliteDSN("file:x.db?_txlock=immediate&_foreign_keys=on&_busy_timeout=100"); got != "file:x.db?_txlock=immediate&_foreign_keys=on&_busy_timeout=100" {
		t.Errorf("Expected DSN to be left alone, got %s", got)
	}
}
