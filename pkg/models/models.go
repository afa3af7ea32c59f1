package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StudentStatus string

const (
	StudentStatusCurrent   StudentStatus = "current"
	StudentStatusOwing     StudentStatus = "owing"
	StudentStatusOverdue   StudentStatus = "overdue"
	StudentStatusGraduated StudentStatus = "graduated"
	StudentStatusWithdrawn StudentStatus = "withdrawn" // administrative override, never recomputed
)

type InstallmentStatus string

const (
	InstallmentStatusPending   InstallmentStatus = "pending"
	InstallmentStatusPaid      InstallmentStatus = "paid"
	InstallmentStatusOverdue   InstallmentStatus = "overdue"
	InstallmentStatusCancelled InstallmentStatus = "cancelled"
)

type PaymentCategory string

const (
	PaymentCategoryInstallment   PaymentCategory = "installment"
	PaymentCategoryEnrollmentFee PaymentCategory = "enrollment_fee"
	PaymentCategoryLateFee       PaymentCategory = "late_fee"
	PaymentCategoryExtension     PaymentCategory = "extension"
	PaymentCategoryMiscellaneous PaymentCategory = "miscellaneous"
	PaymentCategoryAdjustment    PaymentCategory = "adjustment"
)

// Label is the default concept printed on a receipt for the category.
func (c PaymentCategory) Label() string {
	switch c {
	case PaymentCategoryInstallment:
		return "Installment"
	case PaymentCategoryEnrollmentFee:
		return "Enrollment fee"
	case PaymentCategoryLateFee:
		return "Late fee"
	case PaymentCategoryExtension:
		return "Schedule extension"
	case PaymentCategoryAdjustment:
		return "Manual adjustment"
	default:
		return "Miscellaneous"
	}
}

type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodTransfer   PaymentMethod = "transfer"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodCheck      PaymentMethod = "check"
	PaymentMethodOther      PaymentMethod = "other"
)

type PaymentStatus string

const (
	PaymentStatusActive    PaymentStatus = "active"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

type Plan struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`
	Description       string          `gorm:"type:text" json:"description,omitempty"`
	InstallmentCount  int             `gorm:"not null" json:"installment_count"`
	InstallmentAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"installment_amount"`
	EnrollmentFee     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"enrollment_fee"`
	ValidityMonths    int             `gorm:"not null;default:12" json:"validity_months"`
	ExtensionMonths   int             `gorm:"not null;default:4" json:"extension_months"` // grace period granted on top of validity
	Active            bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Student struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	EnrollmentNumber string        `gorm:"type:varchar(50);uniqueIndex;not null" json:"enrollment_number"`
	FirstName        string        `gorm:"type:varchar(255);not null" json:"first_name"`
	LastName         string        `gorm:"type:varchar(255)" json:"last_name"`
	Email            string        `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone            string        `gorm:"type:varchar(50)" json:"phone,omitempty"`
	PlanID           uuid.UUID     `gorm:"type:uuid;index;not null" json:"plan_id"`
	EnrolledOn       time.Time     `gorm:"type:date;not null" json:"enrolled_on"`
	StartDate        time.Time     `gorm:"type:date;not null" json:"start_date"`
	ValidUntil       time.Time     `gorm:"type:date;not null" json:"valid_until"` // StartDate + plan validity months
	Status           StudentStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	WithdrawalReason string        `gorm:"type:text" json:"withdrawal_reason,omitempty"`
	Notes            string        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type Installment struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:ux_installment_student_sequence,priority:1" json:"student_id"`
	Sequence  int               `gorm:"not null;uniqueIndex:ux_installment_student_sequence,priority:2" json:"sequence"`
	DueDate   time.Time         `gorm:"type:date;not null;index" json:"due_date"`
	Amount    decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status    InstallmentStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	PaidAt    *time.Time        `json:"paid_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Payment is immutable once created apart from cancellation.
type Payment struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptNumber      string          `gorm:"type:varchar(40);index;not null" json:"receipt_number"`
	StudentID          uuid.UUID       `gorm:"type:uuid;index;not null" json:"student_id"`
	InstallmentID      *uuid.UUID      `gorm:"type:uuid;index" json:"installment_id,omitempty"`
	Category           PaymentCategory `gorm:"type:varchar(20);not null" json:"category"`
	Concept            string          `gorm:"type:varchar(255);not null" json:"concept"`
	Amount             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Discount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount"`
	LateFee            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"late_fee"`
	Total              decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"` // Amount - Discount + LateFee
	Method             PaymentMethod   `gorm:"type:varchar(20);not null" json:"method"`
	Reference          string          `gorm:"type:varchar(255)" json:"reference,omitempty"`
	Bank               string          `gorm:"type:varchar(255)" json:"bank,omitempty"`
	PaidAt             time.Time       `gorm:"not null" json:"paid_at"`
	DueDate            *time.Time      `gorm:"type:date" json:"due_date,omitempty"`
	DaysLate           int             `gorm:"not null;default:0" json:"days_late"`
	CashierID          string          `gorm:"type:varchar(100)" json:"cashier_id,omitempty"`
	Notes              string          `gorm:"type:text" json:"notes,omitempty"`
	ReceiptURL         string          `gorm:"type:text" json:"receipt_url,omitempty"`
	Status             PaymentStatus   `gorm:"type:varchar(20);index;not null" json:"status"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason string          `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Setting is a key/value row of runtime configuration, e.g. the late-fee rate.
type Setting struct {
	Key       string    `gorm:"type:varchar(100);primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
