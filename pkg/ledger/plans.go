package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
)

const (
	defaultValidityMonths  = 12
	defaultExtensionMonths = 4
)

func (l *Ledger) CreatePlan(ctx context.Context, req models.NewPlan) (*models.Plan, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	now := l.now()
	plan := &models.Plan{
		ID:                uuid.New(),
		Name:              req.Name,
		Description:       req.Description,
		InstallmentCount:  req.InstallmentCount,
		InstallmentAmount: req.InstallmentAmount,
		EnrollmentFee:     req.EnrollmentFee,
		ValidityMonths:    req.ValidityMonths,
		ExtensionMonths:   defaultExtensionMonths,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if plan.ValidityMonths == 0 {
		plan.ValidityMonths = defaultValidityMonths
	}
	if req.ExtensionMonths != nil {
		plan.ExtensionMonths = *req.ExtensionMonths
	}
	if err := l.storage.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (l *Ledger) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := l.storage.GetPlan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	return plan, err
}

func (l *Ledger) ListPlans(ctx context.Context, activeOnly bool) ([]*models.Plan, error) {
	return l.storage.GetAllPlans(ctx, activeOnly)
}

// UpdatePlan applies the set fields of req. Price changes only affect
// installments created afterwards.
func (l *Ledger) UpdatePlan(ctx context.Context, id uuid.UUID, req models.UpdatePlan) (*models.Plan, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	plan, err := l.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.InstallmentCount != nil {
		plan.InstallmentCount = *req.InstallmentCount
	}
	if req.InstallmentAmount != nil {
		plan.InstallmentAmount = *req.InstallmentAmount
	}
	if req.EnrollmentFee != nil {
		plan.EnrollmentFee = *req.EnrollmentFee
	}
	if req.ValidityMonths != nil {
		plan.ValidityMonths = *req.ValidityMonths
	}
	if req.ExtensionMonths != nil {
		plan.ExtensionMonths = *req.ExtensionMonths
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}
	plan.UpdatedAt = l.now()
	if err := l.storage.UpdatePlan(ctx, plan); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// DeactivatePlan stops new enrollments on a plan. Existing students keep it.
func (l *Ledger) DeactivatePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	inactive := false
	return l.UpdatePlan(ctx, id, models.UpdatePlan{Active: &inactive})
}
