package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest contains what a cashier submits to record a payment.
// Total is never accepted from the caller.
type PaymentRequest struct {
	StudentID     uuid.UUID        `json:"student_id" validate:"required"`
	InstallmentID *uuid.UUID       `json:"installment_id,omitempty"`
	Advance       bool             `json:"advance"` // synthesize the next installment when none is referenced
	Category      PaymentCategory  `json:"category" validate:"required,oneof=installment enrollment_fee late_fee extension miscellaneous adjustment"`
	Concept       string           `json:"concept" validate:"max=255"`
	Amount        decimal.Decimal  `json:"amount" validate:"gte=0"`
	Discount      decimal.Decimal  `json:"discount" validate:"gte=0"`
	LateFee       *decimal.Decimal `json:"late_fee,omitempty" validate:"omitempty,gte=0"`
	Method        PaymentMethod    `json:"method" validate:"required,oneof=cash transfer debit_card credit_card check other"`
	Reference     string           `json:"reference,omitempty"`
	Bank          string           `json:"bank,omitempty"`
	PaidAt        time.Time        `json:"paid_at" validate:"required"`
	CashierID     string           `json:"cashier_id,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	ReceiptURL    string           `json:"receipt_url,omitempty"`
}

// AdjustmentRequest is a manual correction that never touches the schedule.
type AdjustmentRequest struct {
	StudentID uuid.UUID       `json:"student_id"`
	Amount    decimal.Decimal `json:"amount"`
	Discount  decimal.Decimal `json:"discount"`
	Concept   string          `json:"concept"`
	Method    PaymentMethod   `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
	Reference string          `json:"reference,omitempty"`
	Bank      string          `json:"bank,omitempty"`
	CashierID string          `json:"cashier_id,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

type NewPlan struct {
	Name              string          `json:"name" validate:"required,max=255"`
	Description       string          `json:"description"`
	InstallmentCount  int             `json:"installment_count" validate:"gte=1"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" validate:"gte=0"`
	EnrollmentFee     decimal.Decimal `json:"enrollment_fee" validate:"gte=0"`
	ValidityMonths    int             `json:"validity_months" validate:"gte=0"` // 0 means default
	ExtensionMonths   *int            `json:"extension_months" validate:"omitempty,gte=0"`
}

// UpdatePlan only changes the fields that are set.
type UpdatePlan struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description       *string          `json:"description"`
	InstallmentCount  *int             `json:"installment_count" validate:"omitempty,gte=1"`
	InstallmentAmount *decimal.Decimal `json:"installment_amount" validate:"omitempty,gte=0"`
	EnrollmentFee     *decimal.Decimal `json:"enrollment_fee" validate:"omitempty,gte=0"`
	ValidityMonths    *int             `json:"validity_months" validate:"omitempty,gte=1"`
	ExtensionMonths   *int             `json:"extension_months" validate:"omitempty,gte=0"`
	Active            *bool            `json:"active"`
}

type NewStudent struct {
	EnrollmentNumber string    `json:"enrollment_number" validate:"max=50"`
	FirstName        string    `json:"first_name" validate:"required,max=255"`
	LastName         string    `json:"last_name" validate:"max=255"`
	Email            string    `json:"email" validate:"omitempty,email"`
	Phone            string    `json:"phone" validate:"max=50"`
	PlanID           uuid.UUID `json:"plan_id" validate:"required"`
	EnrolledOn       time.Time `json:"enrolled_on"` // defaults to StartDate
	StartDate        time.Time `json:"start_date" validate:"required"`
	Notes            string    `json:"notes"`
}
