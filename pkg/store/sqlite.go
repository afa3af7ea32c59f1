package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteParams are appended to every DSN. _txlock=immediate makes BeginTx take
// the database write lock up front, which serializes ledger transactions.
var sqliteParams = []string{"_txlock=immediate", "_foreign_keys=on", "_busy_timeout=5000"}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteRepo implements Repository on top of a querier.
type sqliteRepo struct {
	q querier
}

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	sqliteRepo
	db *sql.DB
}

var _ Storage = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dataSourceName))
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not connect to database")
	}

	s := &SQLiteStore{sqliteRepo: sqliteRepo{q: db}, db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not initialize schema")
	}
	return s, nil
}

func sqliteDSN(dsn string) string {
	var missing []string
	for _, p := range sqliteParams {
		key := p[:strings.Index(p, "=")+1]
		if !strings.Contains(dsn, key) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + strings.Join(missing, "&")
}

// initSchema creates the database tables if they don't already exist and adds new columns if necessary.
// Money is stored as TEXT so no precision is lost; due dates are TEXT in YYYY-MM-DD form.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		installment_count INTEGER NOT NULL,
		installment_amount TEXT NOT NULL,
		enrollment_fee TEXT NOT NULL DEFAULT '0',
		validity_months INTEGER NOT NULL DEFAULT 12,
		extension_months INTEGER NOT NULL DEFAULT 4,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		enrollment_number TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		plan_id TEXT NOT NULL,
		enrolled_on TEXT NOT NULL,
		start_date TEXT NOT NULL,
		valid_until TEXT NOT NULL,
		status TEXT NOT NULL,
		withdrawal_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(plan_id) REFERENCES plans(id)
	);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(student_id, sequence),
		FOREIGN KEY(student_id) REFERENCES students(id)
	);
	CREATE INDEX IF NOT EXISTS idx_installments_status_due ON installments(status, due_date);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		receipt_number TEXT NOT NULL,
		student_id TEXT NOT NULL,
		installment_id TEXT,
		category TEXT NOT NULL,
		concept TEXT NOT NULL,
		amount TEXT NOT NULL,
		discount TEXT NOT NULL,
		late_fee TEXT NOT NULL,
		total TEXT NOT NULL,
		method TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		bank TEXT NOT NULL DEFAULT '',
		paid_at DATETIME NOT NULL,
		due_date TEXT,
		days_late INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		cancelled_at DATETIME,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(student_id) REFERENCES students(id),
		FOREIGN KEY(installment_id) REFERENCES installments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_payments_student ON payments(student_id);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Columns added to payments after the first release.
	columns := []string{
		"cashier_id TEXT NOT NULL DEFAULT ''",
		"receipt_url TEXT NOT NULL DEFAULT ''",
	}

	for _, col := range columns {
		_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE payments ADD COLUMN %s", col))
		if err != nil && !isDuplicateColumnError(err) {
			return errors.Wrapf(err, "failed to add column %s", col)
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error indicates a duplicate column.
func isDuplicateColumnError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "duplicate column name")
}

// WithTx runs fn in a transaction. The DSN's _txlock=immediate turns BeginTx
// into BEGIN IMMEDIATE.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(&sqliteRepo{q: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const planColumns = `id, name, description, installment_count, installment_amount, enrollment_fee, validity_months, extension_months, active, created_at, updated_at`

// CreatePlan inserts a new plan.
func (r *sqliteRepo) CreatePlan(ctx context.Context, plan *models.Plan) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID.String(), plan.Name, plan.Description, plan.InstallmentCount, plan.InstallmentAmount, plan.EnrollmentFee,
		plan.ValidityMonths, plan.ExtensionMonths, plan.Active, plan.CreatedAt.UTC(), plan.UpdatedAt.UTC(),
	)
	return errors.Wrap(err, "failed to create plan")
}

// GetPlan retrieves a plan by its ID.
func (r *sqliteRepo) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = ?`, id.String())
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get plan")
	}
	return plan, nil
}

// UpdatePlan overwrites the editable fields of a plan.
func (r *sqliteRepo) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE plans SET name = ?, description = ?, installment_count = ?, installment_amount = ?, enrollment_fee = ?, validity_months = ?, extension_months = ?, active = ?, updated_at = ? WHERE id = ?`,
		plan.Name, plan.Description, plan.InstallmentCount, plan.InstallmentAmount, plan.EnrollmentFee,
		plan.ValidityMonths, plan.ExtensionMonths, plan.Active, plan.UpdatedAt.UTC(), plan.ID.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update plan")
	}
	return expectOne(result, ErrNotFound)
}

// GetAllPlans lists plans by name.
func (r *sqliteRepo) GetAllPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	rows, err := r.q.QueryContext(ctx, query+` ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get plans")
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan plan row")
		}
		plans = append(plans, plan)
	}
	return plans, errors.Wrap(rows.Err(), "error during rows iteration for plans")
}

const studentColumns = `id, enrollment_number, first_name, last_name, email, phone, plan_id, enrolled_on, start_date, valid_until, status, withdrawal_reason, notes, created_at, updated_at`

// CreateStudent inserts a new student.
func (r *sqliteRepo) CreateStudent(ctx context.Context, st *models.Student) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO students (`+studentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID.String(), st.EnrollmentNumber, st.FirstName, st.LastName, st.Email, st.Phone, st.PlanID.String(),
		calendar.Format(st.EnrolledOn), calendar.Format(st.StartDate), calendar.Format(st.ValidUntil),
		st.Status, st.WithdrawalReason, st.Notes, st.CreatedAt.UTC(), st.UpdatedAt.UTC(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Wrapf(ErrConflict, "enrollment number %s already in use", st.EnrollmentNumber)
	}
	return errors.Wrap(err, "failed to create student")
}

// GetStudent retrieves a student by its ID.
func (r *sqliteRepo) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id.String())
	st, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get student")
	}
	return st, nil
}

// LockStudent is a plain read: transactions already hold the database write
// lock from BEGIN IMMEDIATE.
func (r *sqliteRepo) LockStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	return r.GetStudent(ctx, id)
}

// UpdateStudentStatus persists a student's status.
func (r *sqliteRepo) UpdateStudentStatus(ctx context.Context, id uuid.UUID, status models.StudentStatus, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE students SET status = ?, updated_at = ? WHERE id = ?`,
		status, at.UTC(), id.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update student status")
	}
	return expectOne(result, ErrNotFound)
}

// UpdateStudentEnrollment rewrites the plan and dates a schedule was built from.
func (r *sqliteRepo) UpdateStudentEnrollment(ctx context.Context, st *models.Student) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE students SET plan_id = ?, start_date = ?, valid_until = ?, updated_at = ? WHERE id = ?`,
		st.PlanID.String(), calendar.Format(st.StartDate), calendar.Format(st.ValidUntil), st.UpdatedAt.UTC(), st.ID.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update student enrollment")
	}
	return expectOne(result, ErrNotFound)
}

// WithdrawStudent sets the withdrawn override and records the reason.
func (r *sqliteRepo) WithdrawStudent(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE students SET status = ?, withdrawal_reason = ?, updated_at = ? WHERE id = ?`,
		models.StudentStatusWithdrawn, reason, at.UTC(), id.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to withdraw student")
	}
	return expectOne(result, ErrNotFound)
}

// CountStudentsEnrolledIn counts students whose enrollment date falls in year.
func (r *sqliteRepo) CountStudentsEnrolledIn(ctx context.Context, year int) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students WHERE enrolled_on >= ? AND enrolled_on < ?`,
		calendar.Format(calendar.Date(year, time.January, 1)), calendar.Format(calendar.Date(year+1, time.January, 1)),
	).Scan(&n)
	return n, errors.Wrap(err, "failed to count students")
}

const installmentColumns = `id, student_id, sequence, due_date, amount, status, paid_at, created_at, updated_at`

// CreateInstallments inserts a batch of installments.
func (r *sqliteRepo) CreateInstallments(ctx context.Context, installments []*models.Installment) error {
	now := time.Now().UTC()
	for _, inst := range installments {
		if inst.CreatedAt.IsZero() {
			inst.CreatedAt = now
		}
		if inst.UpdatedAt.IsZero() {
			inst.UpdatedAt = now
		}
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO installments (`+installmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID.String(), inst.StudentID.String(), inst.Sequence, calendar.Format(inst.DueDate), inst.Amount,
			inst.Status, nullTime(inst.PaidAt), inst.CreatedAt.UTC(), inst.UpdatedAt.UTC(),
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return errors.Wrapf(ErrConflict, "installment %d already exists", inst.Sequence)
			}
			return errors.Wrapf(err, "failed to create installment %d", inst.Sequence)
		}
	}
	return nil
}

// GetInstallment retrieves an installment by its ID.
func (r *sqliteRepo) GetInstallment(ctx context.Context, id uuid.UUID) (*models.Installment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+installmentColumns+` FROM installments WHERE id = ?`, id.String())
	inst, err := scanInstallment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get installment")
	}
	return inst, nil
}

// GetInstallmentsForStudent retrieves a student's installments in sequence order.
func (r *sqliteRepo) GetInstallmentsForStudent(ctx context.Context, studentID uuid.UUID, statuses ...models.InstallmentStatus) ([]*models.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE student_id = ?`
	args := []any{studentID.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	rows, err := r.q.QueryContext(ctx, query+` ORDER BY sequence ASC`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get installments for student %s", studentID)
	}
	defer rows.Close()

	var installments []*models.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan installment row")
		}
		installments = append(installments, inst)
	}
	return installments, errors.Wrap(rows.Err(), "error during rows iteration for installments")
}

// GetLastInstallment retrieves the student's installment with the highest sequence.
func (r *sqliteRepo) GetLastInstallment(ctx context.Context, studentID uuid.UUID) (*models.Installment, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+installmentColumns+` FROM installments WHERE student_id = ? ORDER BY sequence DESC LIMIT 1`,
		studentID.String(),
	)
	inst, err := scanInstallment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get last installment")
	}
	return inst, nil
}

// CountInstallmentsByStatus groups a student's installments by status.
func (r *sqliteRepo) CountInstallmentsByStatus(ctx context.Context, studentID uuid.UUID) (map[models.InstallmentStatus]int, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM installments WHERE student_id = ? GROUP BY status`,
		studentID.String(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count installments")
	}
	defer rows.Close()

	counts := make(map[models.InstallmentStatus]int)
	for rows.Next() {
		var status models.InstallmentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan installment count")
		}
		counts[status] = n
	}
	return counts, errors.Wrap(rows.Err(), "error during rows iteration for installment counts")
}

// MarkInstallmentPaid sets a payable installment to paid.
func (r *sqliteRepo) MarkInstallmentPaid(ctx context.Context, id uuid.UUID, paidAt, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE installments SET status = ?, paid_at = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		models.InstallmentStatusPaid, paidAt.UTC(), at.UTC(), id.String(),
		models.InstallmentStatusPending, models.InstallmentStatusOverdue,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark installment paid")
	}
	return expectOne(result, ErrConflict)
}

// ReopenInstallment returns an installment to pending.
func (r *sqliteRepo) ReopenInstallment(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE installments SET status = ?, paid_at = NULL, updated_at = ? WHERE id = ?`,
		models.InstallmentStatusPending, at.UTC(), id.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to reopen installment")
	}
	return expectOne(result, ErrNotFound)
}

// ListStudentsPendingBefore finds students with a pending installment due before asOf.
func (r *sqliteRepo) ListStudentsPendingBefore(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT student_id FROM installments WHERE status = ? AND due_date < ? ORDER BY student_id`,
		models.InstallmentStatusPending, calendar.Format(asOf),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find overdue installments")
	}
	defer rows.Close()

	var students []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, errors.Wrap(err, "failed to scan student id")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse student id")
		}
		students = append(students, id)
	}
	return students, errors.Wrap(rows.Err(), "error during rows iteration for overdue students")
}

// MarkInstallmentsOverdue flips a student's pending installments due before asOf.
func (r *sqliteRepo) MarkInstallmentsOverdue(ctx context.Context, studentID uuid.UUID, asOf, at time.Time) (int, error) {
	result, err := r.q.ExecContext(ctx,
		`UPDATE installments SET status = ?, updated_at = ? WHERE student_id = ? AND status = ? AND due_date < ?`,
		models.InstallmentStatusOverdue, at.UTC(), studentID.String(), models.InstallmentStatusPending, calendar.Format(asOf),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark installments overdue")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to check rows affected")
	}
	return int(n), nil
}

const paymentColumns = `id, receipt_number, student_id, installment_id, category, concept, amount, discount, late_fee, total, method, reference, bank, paid_at, due_date, days_late, cashier_id, notes, receipt_url, status, cancelled_at, cancellation_reason, created_at, updated_at`

// CreatePayment inserts a new payment.
func (r *sqliteRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	var installmentID sql.NullString
	if p.InstallmentID != nil {
		installmentID = sql.NullString{String: p.InstallmentID.String(), Valid: true}
	}
	var dueDate sql.NullString
	if p.DueDate != nil {
		dueDate = sql.NullString{String: calendar.Format(*p.DueDate), Valid: true}
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.ReceiptNumber, p.StudentID.String(), installmentID, p.Category, p.Concept,
		p.Amount, p.Discount, p.LateFee, p.Total, p.Method, p.Reference, p.Bank, p.PaidAt.UTC(),
		dueDate, p.DaysLate, p.CashierID, p.Notes, p.ReceiptURL, p.Status, nullTime(p.CancelledAt),
		p.CancellationReason, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return errors.Wrap(err, "failed to create payment")
}

// GetPayment retrieves a payment by its ID.
func (r *sqliteRepo) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get payment")
	}
	return p, nil
}

// GetPaymentsForStudent retrieves all payments of a student, most recent first.
func (r *sqliteRepo) GetPaymentsForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE student_id = ? ORDER BY paid_at DESC, created_at DESC`,
		studentID.String(),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get payments for student %s", studentID)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan payment row")
		}
		payments = append(payments, p)
	}
	return payments, errors.Wrap(rows.Err(), "error during rows iteration for payments")
}

// CancelPayment marks an active payment cancelled.
func (r *sqliteRepo) CancelPayment(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE payments SET status = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.PaymentStatusCancelled, at.UTC(), reason, at.UTC(), id.String(), models.PaymentStatusActive,
	)
	if err != nil {
		return errors.Wrap(err, "failed to cancel payment")
	}
	return expectOne(result, ErrConflict)
}

// GetSetting reads a setting value.
func (r *sqliteRepo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, errors.Wrapf(err, "failed to get setting %s", key)
}

// PutSetting inserts or replaces a setting value.
func (r *sqliteRepo) PutSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, at.UTC(),
	)
	return errors.Wrapf(err, "failed to put setting %s", key)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*models.Plan, error) {
	var plan models.Plan
	var idStr string
	if err := row.Scan(&idStr, &plan.Name, &plan.Description, &plan.InstallmentCount, &plan.InstallmentAmount,
		&plan.EnrollmentFee, &plan.ValidityMonths, &plan.ExtensionMonths, &plan.Active, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		return nil, err
	}
	plan.ID = uuid.MustParse(idStr)
	return &plan, nil
}

func scanStudent(row scanner) (*models.Student, error) {
	var st models.Student
	var idStr, planIDStr, enrolledOn, startDate, validUntil string
	if err := row.Scan(&idStr, &st.EnrollmentNumber, &st.FirstName, &st.LastName, &st.Email, &st.Phone, &planIDStr,
		&enrolledOn, &startDate, &validUntil, &st.Status, &st.WithdrawalReason, &st.Notes, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.ID = uuid.MustParse(idStr)
	st.PlanID = uuid.MustParse(planIDStr)
	var err error
	if st.EnrolledOn, err = calendar.Parse(enrolledOn); err != nil {
		return nil, err
	}
	if st.StartDate, err = calendar.Parse(startDate); err != nil {
		return nil, err
	}
	if st.ValidUntil, err = calendar.Parse(validUntil); err != nil {
		return nil, err
	}
	return &st, nil
}

func scanInstallment(row scanner) (*models.Installment, error) {
	var inst models.Installment
	var idStr, studentIDStr, dueDate string
	var paidAt sql.NullTime
	if err := row.Scan(&idStr, &studentIDStr, &inst.Sequence, &dueDate, &inst.Amount, &inst.Status,
		&paidAt, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	inst.ID = uuid.MustParse(idStr)
	inst.StudentID = uuid.MustParse(studentIDStr)
	var err error
	if inst.DueDate, err = calendar.Parse(dueDate); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		inst.PaidAt = &paidAt.Time
	}
	return &inst, nil
}

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	var idStr, studentIDStr string
	var installmentID, dueDate sql.NullString
	var cancelledAt sql.NullTime
	if err := row.Scan(&idStr, &p.ReceiptNumber, &studentIDStr, &installmentID, &p.Category, &p.Concept,
		&p.Amount, &p.Discount, &p.LateFee, &p.Total, &p.Method, &p.Reference, &p.Bank, &p.PaidAt,
		&dueDate, &p.DaysLate, &p.CashierID, &p.Notes, &p.ReceiptURL, &p.Status, &cancelledAt,
		&p.CancellationReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.StudentID = uuid.MustParse(studentIDStr)
	if installmentID.Valid {
		id := uuid.MustParse(installmentID.String)
		p.InstallmentID = &id
	}
	if dueDate.Valid {
		d, err := calendar.Parse(dueDate.String)
		if err != nil {
			return nil, err
		}
		p.DueDate = &d
	}
	if cancelledAt.Valid {
		p.CancelledAt = &cancelledAt.Time
	}
	return &p, nil
}

// expectOne returns notMatched when the statement affected no row.
func expectOne(result sql.Result, notMatched error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
