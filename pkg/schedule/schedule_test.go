package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/tuitionLedger/pkg/calendar"
	"github.com/mcclellann/tuitionLedger/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(count int, amount string) *models.Plan {
	return &models.Plan{
		ID:                uuid.New(),
		Name:              "Regular",
		InstallmentCount:  count,
		InstallmentAmount: decimal.RequireFromString(amount),
	}
}

func TestGenerate_TwelveMonthly(t *testing.T) {
	studentID := uuid.New()
	got := Generate(studentID, calendar.Date(2024, time.January, 15), plan(12, "1500"))

	require.Len(t, got, 12)
	assert.Equal(t, calendar.Date(2024, time.January, 15), got[0].DueDate)
	assert.Equal(t, calendar.Date(2024, time.December, 15), got[11].DueDate)

	for i, inst := range got {
		assert.Equal(t, i+1, inst.Sequence)
		assert.Equal(t, studentID, inst.StudentID)
		assert.Equal(t, models.InstallmentStatusPending, inst.Status)
		assert.True(t, inst.Amount.Equal(decimal.NewFromInt(1500)))
		assert.Nil(t, inst.PaidAt)
		if i > 0 {
			assert.True(t, inst.DueDate.After(got[i-1].DueDate), "due dates must increase")
			assert.Equal(t, calendar.AddMonths(got[0].DueDate, i, 15), inst.DueDate)
		}
	}
}

func TestGenerate_EndOfMonthStart(t *testing.T) {
	got := Generate(uuid.New(), calendar.Date(2024, time.January, 31), plan(4, "100"))

	want := []time.Time{
		calendar.Date(2024, time.January, 31),
		calendar.Date(2024, time.February, 29),
		calendar.Date(2024, time.March, 31),
		calendar.Date(2024, time.April, 30),
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], got[i].DueDate, "installment %d", i+1)
	}
}

func TestGenerate_DropsTimeOfDay(t *testing.T) {
	start := time.Date(2024, time.March, 5, 18, 30, 0, 0, time.UTC)
	got := Generate(uuid.New(), start, plan(1, "10"))
	require.Len(t, got, 1)
	assert.Equal(t, calendar.Date(2024, time.March, 5), got[0].DueDate)
}

func TestGenerate_EmptyPlan(t *testing.T) {
	assert.Empty(t, Generate(uuid.New(), time.Now(), plan(0, "10")))
	assert.Empty(t, Generate(uuid.New(), time.Now(), nil))
}

func TestNext(t *testing.T) {
	last := &models.Installment{
		StudentID: uuid.New(),
		Sequence:  3,
		DueDate:   calendar.Date(2024, time.March, 15),
		Amount:    decimal.NewFromInt(1500),
		Status:    models.InstallmentStatusPaid,
	}

	next := Next(last, 15, decimal.NewFromInt(1750))
	assert.Equal(t, 4, next.Sequence)
	assert.Equal(t, last.StudentID, next.StudentID)
	assert.Equal(t, calendar.Date(2024, time.April, 15), next.DueDate)
	assert.True(t, next.Amount.Equal(decimal.NewFromInt(1750)))
	assert.Equal(t, models.InstallmentStatusPending, next.Status)
	assert.NotEqual(t, uuid.Nil, next.ID)
}

func TestNextDueDate_AnchorRestoresDay(t *testing.T) {
	assert.Equal(t, calendar.Date(2024, time.March, 31), NextDueDate(calendar.Date(2024, time.February, 29), 31))
	assert.Equal(t, calendar.Date(2024, time.March, 29), NextDueDate(calendar.Date(2024, time.February, 29), 0))
}
