package ledger

import (
	"context"

	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateSettingKey is the settings key holding the daily late-fee rate in percent.
const RateSettingKey = "late_fee_daily_rate"

// RateSource yields the active daily late-fee rate in percent.
type RateSource interface {
	DailyRate(ctx context.Context) (decimal.Decimal, error)
}

// StoreRate reads the rate from the settings table.
type StoreRate struct {
	repo     store.Repository
	fallback decimal.Decimal
}

// NewStoreRate returns a RateSource that falls back to fallback when the
// setting is absent or unreadable.
func NewStoreRate(repo store.Repository, fallback decimal.Decimal) *StoreRate {
	return &StoreRate{repo: repo, fallback: fallback}
}

func (r *StoreRate) DailyRate(ctx context.Context) (decimal.Decimal, error) {
	v, err := r.repo.GetSetting(ctx, RateSettingKey)
	if errors.Is(err, store.ErrNotFound) {
		return r.fallback, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := decimal.NewFromString(v)
	if err != nil || rate.IsNegative() {
		return r.fallback, nil
	}
	return rate, nil
}

// DailyRate returns the rate used for late fees.
func (l *Ledger) DailyRate(ctx context.Context) (decimal.Decimal, error) {
	return l.rates.DailyRate(ctx)
}

// SetDailyRate persists a new daily late-fee rate. It applies to fees
// computed from now on; recorded payments keep their fee.
func (l *Ledger) SetDailyRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return ErrInvalidRate
	}
	if err := l.storage.PutSetting(ctx, RateSettingKey, rate.String(), l.now()); err != nil {
		return err
	}
	if inv, ok := l.rates.(interface{ Invalidate(context.Context) error }); ok {
		if err := inv.Invalidate(ctx); err != nil {
			return errors.Wrap(err, "failed to invalidate cached rate")
		}
	}
	l.logger.Info("late-fee rate updated", zap.String("rate", rate.String()))
	return nil
}
