// Package schedule materializes the monthly installment schedule of a plan.
package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/shopspring/decimal"
)

// Generate returns plan.InstallmentCount pending installments for a student
// starting on startDate. Installment i is due i-1 calendar months after
// startDate on startDate's day of month, clamped to the end of shorter months.
// Every installment carries the plan's flat InstallmentAmount.
func Generate(studentID uuid.UUID, startDate time.Time, plan *models.Plan) []*models.Installment {
	if plan == nil || plan.InstallmentCount <= 0 {
		return nil
	}

	start := calendar.Truncate(startDate)
	anchor := start.Day()
	installments := make([]*models.Installment, 0, plan.InstallmentCount)
	for i := 1; i <= plan.InstallmentCount; i++ {
		installments = append(installments, &models.Installment{
			ID:        uuid.New(),
			StudentID: studentID,
			Sequence:  i,
			DueDate:   calendar.AddMonths(start, i-1, anchor),
			Amount:    plan.InstallmentAmount,
			Status:    models.InstallmentStatusPending,
		})
	}
	return installments
}

// NextDueDate is the due date of the installment following one due on last.
// anchorDay pins the day of month; pass the student's start day so that a
// schedule that went through February returns to the 30th or 31st.
// A zero anchorDay keeps last's day.
func NextDueDate(last time.Time, anchorDay int) time.Time {
	return calendar.AddMonths(calendar.Truncate(last), 1, anchorDay)
}

// Next synthesizes the installment that follows last, priced at amount.
func Next(last *models.Installment, anchorDay int, amount decimal.Decimal) *models.Installment {
	return &models.Installment{
		ID:        uuid.New(),
		StudentID: last.StudentID,
		Sequence:  last.Sequence + 1,
		DueDate:   NextDueDate(last.DueDate, anchorDay),
		Amount:    amount,
		Status:    models.InstallmentStatusPending,
	}
}
