package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_GeneratesSchedule(t *testing.T) {
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 12, "1500")

	st, insts := f.admit(t, plan, calendar.Date(2024, time.January, 15))
	assert.Equal(t, "STU-2024-001", st.EnrollmentNumber)
	assert.Equal(t, calendar.Date(2025, time.January, 15), st.ValidUntil)
	assert.Equal(t, models.StudentStatusOwing, st.Status)

	require.Len(t, insts, 12)
	assert.Equal(t, calendar.Date(2024, time.January, 15), insts[0].DueDate)
	assert.Equal(t, calendar.Date(2024, time.December, 15), insts[11].DueDate)

	second, _ := f.admit(t, plan, calendar.Date(2024, time.February, 1))
	assert.Equal(t, "STU-2024-002", second.EnrollmentNumber)
}

func TestAdmit_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 12, "1500")

	_, _, err := f.ledger.Admit(ctx, models.NewStudent{FirstName: "Ana", PlanID: uuid.New(), StartDate: f.clock.Now()})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, _, err = f.ledger.Admit(ctx, models.NewStudent{FirstName: "Ana", Email: "not-an-email", PlanID: plan.ID})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)

	_, err = f.ledger.DeactivatePlan(ctx, plan.ID)
	require.NoError(t, err)
	_, _, err = f.ledger.Admit(ctx, models.NewStudent{FirstName: "Ana", PlanID: plan.ID, StartDate: f.clock.Now()})
	assert.ErrorIs(t, err, ErrPlanInactive)
	assert.Equal(t, KindConflict, KindOf(err))

	n, err := f.store.CountStudentsEnrolledIn(ctx, 2024)
	require.NoError(t, err)
	assert.Zero(t, n, "failed admissions leave nothing behind")
}

func TestAdmit_DuplicateEnrollmentNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 2, "1500")

	req := models.NewStudent{EnrollmentNumber: "IIT-2024-777", FirstName: "Ana", PlanID: plan.ID, StartDate: f.clock.Now()}
	_, _, err := f.ledger.Admit(ctx, req)
	require.NoError(t, err)

	_, _, err = f.ledger.Admit(ctx, req)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestEnroll_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 12, "1500")
	st, insts := f.admit(t, plan, calendar.Date(2024, time.January, 15))

	again, err := f.ledger.Enroll(ctx, st.ID, uuid.Nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, again, 12)
	for i := range insts {
		assert.Equal(t, insts[i].ID, again[i].ID)
	}

	all, err := f.ledger.ListInstallments(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestEnroll_ExistingStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 4, "900")

	st := &models.Student{
		ID:               uuid.New(),
		EnrollmentNumber: "LEGACY-7",
		FirstName:        "Jorge",
		PlanID:           plan.ID,
		EnrolledOn:       calendar.Date(2024, time.January, 2),
		StartDate:        calendar.Date(2024, time.January, 31),
		ValidUntil:       calendar.Date(2025, time.January, 31),
		Status:           models.StudentStatusCurrent,
	}
	require.NoError(t, f.store.CreateStudent(ctx, st))

	_, err := f.ledger.Enroll(ctx, st.ID, uuid.New(), time.Time{})
	assert.ErrorIs(t, err, ErrPlanNotFound)
	none, err := f.ledger.ListInstallments(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	insts, err := f.ledger.Enroll(ctx, st.ID, uuid.Nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, insts, 4)
	assert.Equal(t, calendar.Date(2024, time.February, 29), insts[1].DueDate)
	assert.Equal(t, calendar.Date(2024, time.April, 30), insts[3].DueDate)
	assert.Equal(t, models.StudentStatusOwing, f.student(t, st.ID).Status)

	_, err = f.ledger.Enroll(ctx, uuid.New(), uuid.Nil, time.Time{})
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))

	plan, err := f.ledger.CreatePlan(ctx, models.NewPlan{Name: "Evening", InstallmentCount: 10, InstallmentAmount: dec("1200")})
	require.NoError(t, err)
	assert.Equal(t, 12, plan.ValidityMonths)
	assert.Equal(t, 4, plan.ExtensionMonths)
	assert.True(t, plan.Active)

	_, err = f.ledger.CreatePlan(ctx, models.NewPlan{Name: "", InstallmentCount: 0, InstallmentAmount: dec("-1")})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 3)

	name := "Evening (2025)"
	updated, err := f.ledger.UpdatePlan(ctx, plan.ID, models.UpdatePlan{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.True(t, updated.InstallmentAmount.Equal(dec("1200")))

	_, err = f.ledger.UpdatePlan(ctx, uuid.New(), models.UpdatePlan{Name: &name})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = f.ledger.DeactivatePlan(ctx, plan.ID)
	require.NoError(t, err)
	active, err := f.ledger.ListPlans(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.ledger.ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSweepOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 12, "1500")
	st, insts := f.admit(t, plan, calendar.Date(2024, time.January, 15))
	clean, _ := f.admit(t, plan, calendar.Date(2024, time.June, 1))

	f.clock.Set(calendar.Date(2024, time.March, 1).Add(2 * time.Hour))
	res, err := f.ledger.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Flipped)
	assert.Equal(t, []uuid.UUID{st.ID}, res.Students)
	assert.Equal(t, models.StudentStatusOverdue, f.student(t, st.ID).Status)
	assert.Equal(t, models.StudentStatusOwing, f.student(t, clean.ID).Status)

	res, err = f.ledger.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Flipped)

	// overdue installments stay payable and carry the fee
	p := f.pay(t, st.ID, insts[0])
	assert.Equal(t, 46, p.DaysLate)
	assert.Equal(t, "690.00", p.LateFee.StringFixed(2))
	assert.Equal(t, models.StudentStatusOverdue, f.student(t, st.ID).Status)

	f.pay(t, st.ID, insts[1])
	assert.Equal(t, models.StudentStatusOwing, f.student(t, st.ID).Status)
}

func TestListPendingOrNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	plan := f.plan(t, 2, "1500")
	st, insts := f.admit(t, plan, calendar.Date(2024, time.January, 15))

	f.clock.Set(calendar.Date(2024, time.January, 20))
	out, err := f.ledger.ListPendingOrNext(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, out.Pending, 2)
	assert.Nil(t, out.SuggestedNext)
	assert.Equal(t, 5, out.Pending[0].DaysOverdue)
	assert.Equal(t, "75.00", out.Pending[0].LateFee.StringFixed(2))
	assert.True(t, out.Pending[1].LateFee.IsZero())

	for _, inst := range insts {
		f.pay(t, st.ID, inst)
	}

	out, err = f.ledger.ListPendingOrNext(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, out.Pending)
	require.NotNil(t, out.SuggestedNext)
	assert.Equal(t, 3, out.SuggestedNext.Sequence)
	assert.Equal(t, calendar.Date(2024, time.March, 15), out.SuggestedNext.DueDate)
	assert.True(t, out.SuggestedNext.Amount.Equal(dec("1500")))

	all, err := f.ledger.ListInstallments(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2, "suggesting does not create")

	_, err = f.ledger.ListPendingOrNext(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestEnroll_ExplicitPlanAndStartMoveTheStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, calendar.Date(2024, time.January, 10))
	old := f.plan(t, 4, "900")
	short, err := f.ledger.CreatePlan(ctx, models.NewPlan{
		Name:              "Intensive",
		InstallmentCount:  2,
		InstallmentAmount: dec("2000"),
		ValidityMonths:    6,
	})
	require.NoError(t, err)

	st := &models.Student{
		ID:               uuid.New(),
		EnrollmentNumber: "LEGACY-9",
		FirstName:        "Rosa",
		PlanID:           old.ID,
		EnrolledOn:       calendar.Date(2024, time.January, 2),
		StartDate:        calendar.Date(2024, time.January, 15),
		ValidUntil:       calendar.Date(2025, time.January, 15),
		Status:           models.StudentStatusCurrent,
	}
	require.NoError(t, f.store.CreateStudent(ctx, st))

	insts, err := f.ledger.Enroll(ctx, st.ID, short.ID, calendar.Date(2024, time.January, 31))
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, calendar.Date(2024, time.February, 29), insts[1].DueDate)

	moved := f.student(t, st.ID)
	assert.Equal(t, short.ID, moved.PlanID)
	assert.Equal(t, calendar.Date(2024, time.January, 31), moved.StartDate)
	assert.Equal(t, calendar.Date(2024, time.July, 31), moved.ValidUntil)
	assert.True(t, moved.UpdatedAt.Equal(f.clock.Now()), "updated_at %s", moved.UpdatedAt)

	for _, inst := range insts {
		f.pay(t, st.ID, inst)
	}

	// validity ends with the new plan
	f.clock.Set(calendar.Date(2024, time.August, 1))
	status, err := f.ledger.RecomputeStatus(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusGraduated, status)

	next, err := f.ledger.ResolveInstallment(ctx, st.ID, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 3, next.Sequence)
	assert.Equal(t, calendar.Date(2024, time.March, 31), next.DueDate)
	assert.True(t, next.Amount.Equal(dec("2000")), "advance prices from the enrolled plan, got %s", next.Amount)
}
