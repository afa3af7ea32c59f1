package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// gormRepo implements Repository with gorm.
type gormRepo struct {
	db *gorm.DB
}

// PostgresStore is a Storage backed by PostgreSQL through gorm.
type PostgresStore struct {
	gormRepo
}

var _ Storage = (*PostgresStore)(nil)

// NewPostgresStore opens a connection pool and migrates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "could not get connection pool")
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &PostgresStore{gormRepo{db: db}}, nil
}

// AutoMigrate runs database migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Plan{},
		&models.Student{},
		&models.Installment{},
		&models.Payment{},
		&models.Setting{},
	)
	return errors.Wrap(err, "failed to migrate schema")
}

// WithTx runs fn in a gorm transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepo{db: tx})
	})
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (r *gormRepo) CreatePlan(ctx context.Context, plan *models.Plan) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(plan).Error, "failed to create plan")
}

func (r *gormRepo) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to get plan")
	}
	return &plan, nil
}

func (r *gormRepo) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	res := r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", plan.ID).Updates(map[string]any{
		"name":               plan.Name,
		"description":        plan.Description,
		"installment_count":  plan.InstallmentCount,
		"installment_amount": plan.InstallmentAmount,
		"enrollment_fee":     plan.EnrollmentFee,
		"validity_months":    plan.ValidityMonths,
		"extension_months":   plan.ExtensionMonths,
		"active":             plan.Active,
		"updated_at":         plan.UpdatedAt,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update plan")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) GetAllPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	q := r.db.WithContext(ctx).Order("name ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var plans []*models.Plan
	return plans, errors.Wrap(q.Find(&plans).Error, "failed to get plans")
}

func (r *gormRepo) CreateStudent(ctx context.Context, st *models.Student) error {
	err := r.db.WithContext(ctx).Create(st).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(ErrConflict, "enrollment number %s already in use", st.EnrollmentNumber)
	}
	return errors.Wrap(err, "failed to create student")
}

func (r *gormRepo) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var st models.Student
	if err := r.db.WithContext(ctx).First(&st, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to get student")
	}
	return &st, nil
}

// LockStudent reads the student row with SELECT ... FOR UPDATE.
func (r *gormRepo) LockStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	var st models.Student
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&st, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "failed to lock student")
	}
	return &st, nil
}

func (r *gormRepo) UpdateStudentStatus(ctx context.Context, id uuid.UUID, status models.StudentStatus, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update student status")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) UpdateStudentEnrollment(ctx context.Context, st *models.Student) error {
	res := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", st.ID).Updates(map[string]any{
		"plan_id":     st.PlanID,
		"start_date":  st.StartDate,
		"valid_until": st.ValidUntil,
		"updated_at":  st.UpdatedAt,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update student enrollment")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) WithdrawStudent(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Updates(map[string]any{
		"status":            models.StudentStatusWithdrawn,
		"withdrawal_reason": reason,
		"updated_at":        at,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to withdraw student")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) CountStudentsEnrolledIn(ctx context.Context, year int) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Student{}).
		Where("enrolled_on >= ? AND enrolled_on < ?", calendar.Date(year, time.January, 1), calendar.Date(year+1, time.January, 1)).
		Count(&n).Error
	return int(n), errors.Wrap(err, "failed to count students")
}

func (r *gormRepo) CreateInstallments(ctx context.Context, installments []*models.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Create(installments).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(ErrConflict, "installment already exists")
	}
	return errors.Wrap(err, "failed to create installments")
}

func (r *gormRepo) GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	var inst models.Installment
	if err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to get installment")
	}
	return &inst, nil
}

func (r *gormRepo) GetInstallmentsForStudent(ctx context.Context, studentID uuid.UUID, statuses ...models.InstallmentStatus) ([]*models.Installment, error) {
	q := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var installments []*models.Installment
	err := q.Order("sequence ASC").Find(&installments).Error
	return installments, errors.Wrapf(err, "failed to get installments for student %s", studentID)
}

func (r *gormRepo) GetLastInstallment(ctx context.Context, studentID uuid.UUID) (*models.Installment, error) {
	var inst models.Installment
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).Order("sequence DESC").First(&inst).Error
	if err != nil {
		return nil, notFound(err, "failed to get last installment")
	}
	return &inst, nil
}

func (r *gormRepo) CountInstallmentsByStatus(ctx context.Context, studentID uuid.UUID) (map[models.InstallmentStatus]int, error) {
	var rows []struct {
		Status models.InstallmentStatus
		N      int
	}
	err := r.db.WithContext(ctx).Model(&models.Installment{}).
		Select("status, COUNT(*) AS n").
		Where("student_id = ?", studentID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count installments")
	}
	counts := make(map[models.InstallmentStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

func (r *gormRepo) MarkInstallmentPaid(ctx context.Context, id uuid.UUID, paidAt, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Installment{}).
		Where("id = ? AND status IN ?", id, []models.InstallmentStatus{models.InstallmentStatusPending, models.InstallmentStatusOverdue}).
		Updates(map[string]any{"status": models.InstallmentStatusPaid, "paid_at": paidAt, "updated_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to mark installment paid")
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *gormRepo) ReopenInstallment(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Installment{}).Where("id = ?", id).
		Updates(map[string]any{"status": models.InstallmentStatusPending, "paid_at": nil, "updated_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to reopen installment")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) ListStudentsPendingBefore(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	var students []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.Installment{}).
		Distinct("student_id").
		Where("status = ? AND due_date < ?", models.InstallmentStatusPending, calendar.Truncate(asOf)).
		Order("student_id").
		Pluck("student_id", &students).Error
	return students, errors.Wrap(err, "failed to find overdue installments")
}

func (r *gormRepo) MarkInstallmentsOverdue(ctx context.Context, studentID uuid.UUID, asOf, at time.Time) (int, error) {
	res := r.db.WithContext(ctx).Model(&models.Installment{}).
		Where("student_id = ? AND status = ? AND due_date < ?", studentID, models.InstallmentStatusPending, calendar.Truncate(asOf)).
		Updates(map[string]any{"status": models.InstallmentStatusOverdue, "updated_at": at})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to mark installments overdue")
	}
	return int(res.RowsAffected), nil
}

func (r *gormRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(p).Error, "failed to create payment")
}

func (r *gormRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to get payment")
	}
	return &p, nil
}

func (r *gormRepo) GetPaymentsForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.WithContext(ctx).Where("student_id = ?", studentID).
		Order("paid_at DESC, created_at DESC").Find(&payments).Error
	return payments, errors.Wrapf(err, "failed to get payments for student %s", studentID)
}

func (r *gormRepo) CancelPayment(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusActive).
		Updates(map[string]any{
			"status":              models.PaymentStatusCancelled,
			"cancelled_at":        at,
			"cancellation_reason": reason,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to cancel payment")
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *gormRepo) GetSetting(ctx context.Context, key string) (string, error) {
	var s models.Setting
	if err := r.db.WithContext(ctx).First(&s, "key = ?", key).Error; err != nil {
		return "", notFound(err, "failed to get setting "+key)
	}
	return s.Value, nil
}

func (r *gormRepo) PutSetting(ctx context.Context, key, value string, at time.Time) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Setting{Key: key, Value: value, UpdatedAt: at}).Error
	return errors.Wrapf(err, "failed to put setting %s", key)
}
