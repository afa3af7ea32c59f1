// Package config loads runtime settings from defaults, an optional .env file
// and TUITION_* environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/teambition/rrule-go"
)

const EnvPrefix = "TUITION"

type Config struct {
	Debug bool

	HTTPAddr string

	DBDriver string // sqlite or postgres
	DBDSN    string

	RedisURL string // empty disables Redis

	DefaultLateFeeRate decimal.Decimal
	LateFeeCacheTTL    time.Duration
	LockTTL            time.Duration

	SweepRRule string

	EnrollmentPrefix string
}

// Load reads ./.env when present, then the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is ignored.
func LoadFile(dotEnvPath string) (*Config, error) {
	if dotEnvPath != "" {
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				return nil, errors.Wrapf(err, "config: load %s", dotEnvPath)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "config: stat %s", dotEnvPath)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "tuition.db")
	v.SetDefault("redis.url", "")
	v.SetDefault("latefee.default_rate", "1.0")
	v.SetDefault("latefee.cache_ttl", 5*time.Minute)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("sweep.rrule", "FREQ=DAILY;BYHOUR=1;BYMINUTE=0;BYSECOND=0")
	v.SetDefault("enrollment.prefix", "STU")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rate, err := decimal.NewFromString(v.GetString("latefee.default_rate"))
	if err != nil {
		return nil, errors.Wrap(err, "config: latefee.default_rate")
	}

	c := &Config{
		Debug:              v.GetBool("debug"),
		HTTPAddr:           v.GetString("http.addr"),
		DBDriver:           strings.ToLower(v.GetString("db.driver")),
		DBDSN:              v.GetString("db.dsn"),
		RedisURL:           v.GetString("redis.url"),
		DefaultLateFeeRate: rate,
		LateFeeCacheTTL:    v.GetDuration("latefee.cache_ttl"),
		LockTTL:            v.GetDuration("lock.ttl"),
		SweepRRule:         v.GetString("sweep.rrule"),
		EnrollmentPrefix:   v.GetString("enrollment.prefix"),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("config: unknown db.driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("config: db.dsn is required")
	}
	if c.DefaultLateFeeRate.IsNegative() {
		return errors.New("config: latefee.default_rate must not be negative")
	}
	if c.LockTTL <= 0 {
		return errors.New("config: lock.ttl must be positive")
	}
	if _, err := rrule.StrToRRule(c.SweepRRule); err != nil {
		return errors.Wrap(err, "config: sweep.rrule")
	}
	return nil
}
