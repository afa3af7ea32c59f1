package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update matched no row because
	// the record was not in the expected state.
	ErrConflict = errors.New("record not in expected state")
)

// Repository defines the data access operations for plans, students,
// installments, payments and settings. It is implemented both by a store and
// by the transaction handle passed to Storage.WithTx.
type Repository interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	GetAllPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error)

	CreateStudent(ctx context.Context, student *models.Student) error
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	// LockStudent reads a student and holds a write lock on its row until the
	// enclosing transaction ends.
	LockStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	UpdateStudentStatus(ctx context.Context, id uuid.UUID, status models.StudentStatus, at time.Time) error
	// UpdateStudentEnrollment persists the student's plan, start date and
	// validity end, stamping updated_at with st.UpdatedAt.
	UpdateStudentEnrollment(ctx context.Context, st *models.Student) error
	WithdrawStudent(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	CountStudentsEnrolledIn(ctx context.Context, year int) (int, error)

	// CreateInstallments inserts installments. Zero CreatedAt/UpdatedAt are
	// filled with the current time.
	CreateInstallments(ctx context.Context, installments []*models.Installment) error
	GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error)
	// GetInstallmentsForStudent returns the student's installments ordered by
	// sequence, restricted to the given statuses when any are passed.
	GetInstallmentsForStudent(ctx context.Context, studentID uuid.UUID, statuses ...models.InstallmentStatus) ([]*models.Installment, error)
	// GetLastInstallment returns the installment with the highest sequence, whatever its status.
	GetLastInstallment(ctx context.Context, studentID uuid.UUID) (*models.Installment, error)
	CountInstallmentsByStatus(ctx context.Context, studentID uuid.UUID) (map[models.InstallmentStatus]int, error)
	// MarkInstallmentPaid sets a pending or overdue installment to paid.
	// It returns ErrConflict when the installment is in any other state.
	MarkInstallmentPaid(ctx context.Context, id uuid.UUID, paidAt, at time.Time) error
	// ReopenInstallment returns an installment to pending and clears its paid date.
	ReopenInstallment(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListStudentsPendingBefore returns, ordered by id, the students holding a
	// pending installment due before asOf.
	ListStudentsPendingBefore(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
	// MarkInstallmentsOverdue flips one student's pending installments due
	// before asOf to overdue and returns how many changed.
	MarkInstallmentsOverdue(ctx context.Context, studentID uuid.UUID, asOf, at time.Time) (int, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetPaymentsForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Payment, error)
	// CancelPayment marks an active payment cancelled. It returns ErrConflict
	// when the payment is already cancelled.
	CancelPayment(ctx context.Context, id uuid.UUID, reason string, at time.Time) error

	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string, at time.Time) error
}

// Storage is a Repository that can run a group of operations atomically.
type Storage interface {
	Repository

	// WithTx runs fn inside a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	Close() error
}
