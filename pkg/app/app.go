// Package app wires configuration into a ready-to-use Ledger for the binaries.
package app

import (
	"github.com/mcclellann/tuitionLedger/pkg/cache"
	"github.com/mcclellann/tuitionLedger/pkg/config"
	"github.com/mcclellann/tuitionLedger/pkg/ledger"
	"github.com/mcclellann/tuitionLedger/pkg/locker"
	"github.com/mcclellann/tuitionLedger/pkg/store"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// App holds the long-lived resources shared by a process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Storage store.Storage
	Ledger  *ledger.Ledger

	redis *cache.RedisCache
}

// NewLogger builds the process logger.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// OpenStorage opens the configured database.
func OpenStorage(cfg *config.Config) (store.Storage, error) {
	switch cfg.DBDriver {
	case "postgres":
		s, err := store.NewPostgresStore(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

// Open connects storage and, when configured, Redis, and builds the Ledger.
// With Redis the late-fee rate is cached and student locks are distributed;
// without it both stay in-process.
func Open(cfg *config.Config, logger *zap.Logger) (*App, error) {
	s, err := OpenStorage(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open storage")
	}

	a := &App{Config: cfg, Logger: logger, Storage: s}

	var rates ledger.RateSource = ledger.NewStoreRate(s, cfg.DefaultLateFeeRate)
	opts := []ledger.Option{
		ledger.WithLogger(logger.Named("ledger")),
		ledger.WithEnrollmentPrefix(cfg.EnrollmentPrefix),
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		a.redis = rc
		rates = cache.NewCachedRate(rc, rates, cfg.LateFeeCacheTTL)
		opts = append(opts, ledger.WithLocker(locker.NewRedis(rc.Client(), cfg.LockTTL)))
		logger.Info("redis enabled for rate cache and student locks")
	}

	opts = append(opts, ledger.WithRateSource(rates))
	a.Ledger = ledger.NewLedger(s, opts...)
	return a, nil
}

// Close releases Redis and storage.
func (a *App) Close() error {
	var firstErr error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.Storage.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
