package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "invoicehub-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "invoicehub", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Numbering.MaxAttempts)
		assert.True(t, cfg.Numbering.IdempotencyEnabled)
		assert.Equal(t, 24*time.Hour, cfg.Numbering.IdempotencyTTL)
		assert.True(t, cfg.Reconciliation.AmountTolerance.IsZero())
		assert.True(t, cfg.Reconciliation.AbsoluteAmountPass)
		assert.Equal(t, 7, cfg.Reconciliation.CandidateWindowDays)
		assert.True(t, cfg.Swagger.Enabled)
	})

	t.Run("loads values from environment variables with INVOICEHUB prefix", func(t *testing.T) {
		t.Setenv("INVOICEHUB_APP_NAME", "test-app")
		t.Setenv("INVOICEHUB_APP_PORT", "9000")
		t.Setenv("INVOICEHUB_DATABASE_HOST", "testdb.local")
		t.Setenv("INVOICEHUB_DATABASE_PORT", "5433")
		t.Setenv("INVOICEHUB_NUMBERING_MAX_ATTEMPTS", "8")
		t.Setenv("INVOICEHUB_NUMBERING_IDEMPOTENCY_ENABLED", "false")
		t.Setenv("INVOICEHUB_RECONCILIATION_AMOUNT_TOLERANCE", "0.01")
		t.Setenv("INVOICEHUB_RECONCILIATION_ABSOLUTE_AMOUNT_PASS", "false")
		t.Setenv("INVOICEHUB_RECONCILIATION_CANDIDATE_WINDOW_DAYS", "3")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 8, cfg.Numbering.MaxAttempts)
		assert.False(t, cfg.Numbering.IdempotencyEnabled)
		assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.Reconciliation.AmountTolerance))
		assert.False(t, cfg.Reconciliation.AbsoluteAmountPass)
		assert.Equal(t, 3, cfg.Reconciliation.CandidateWindowDays)
	})

	t.Run("rejects a malformed tolerance", func(t *testing.T) {
		t.Setenv("INVOICEHUB_RECONCILIATION_AMOUNT_TOLERANCE", "one cent")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "amount_tolerance")
	})

	t.Run("production requires a strong jwt secret", func(t *testing.T) {
		t.Setenv("INVOICEHUB_APP_ENV", "production")
		t.Setenv("INVOICEHUB_JWT_SECRET", "short")
		t.Setenv("INVOICEHUB_DATABASE_PASSWORD", "secret")
		t.Setenv("INVOICEHUB_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, base().validate())
	})

	t.Run("idle conns cannot exceed open conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxIdleConns = 50
		assert.Error(t, cfg.validate())
	})

	t.Run("negative tolerance is rejected", func(t *testing.T) {
		cfg := base()
		cfg.Reconciliation.AmountTolerance = decimal.RequireFromString("-0.01")
		assert.Error(t, cfg.validate())
	})

	t.Run("backoff bounds must be ordered", func(t *testing.T) {
		cfg := base()
		cfg.Numbering.MaxBackoff = time.Millisecond
		assert.Error(t, cfg.validate())
	})

	t.Run("storage needs credentials", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Enabled = true
		assert.Error(t, cfg.validate())
		cfg.Storage.AccessKey = "key"
		cfg.Storage.SecretKey = "secret"
		assert.NoError(t, cfg.validate())
	})

	t.Run("profiling needs a server", func(t *testing.T) {
		cfg := base()
		cfg.Telemetry.ProfilingEnabled = true
		assert.Error(t, cfg.validate())
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "app",
		Password: "p@ss/word",
		DBName:   "invoicehub",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/invoicehub?sslmode=disable", d.DSN())
}
