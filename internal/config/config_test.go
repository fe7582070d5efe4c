package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/rfq_test")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 7090, cfg.HTTP.Port)
	assert.Equal(t, "notify", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Race.HoldWindowStandard)
	assert.Equal(t, 4*time.Hour, cfg.Race.HoldWindowUrgent)
	assert.Equal(t, 5*time.Minute, cfg.Race.SweepInterval)
	assert.InDelta(t, 0.5, cfg.Matcher.CategoryWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Matcher.KeywordWeight, 1e-9)
	assert.InDelta(t, 0.2, cfg.Matcher.WorkloadWeight, 1e-9)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/rfq_test")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("HOLD_WINDOW_STANDARD", "12h")
	t.Setenv("HOLD_WINDOW_URGENT", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTP.Port)
	assert.Equal(t, 12*time.Hour, cfg.Race.HoldWindowStandard)
	assert.Equal(t, time.Hour, cfg.Race.HoldWindowUrgent)

	assert.Equal(t, time.Hour, cfg.HoldWindow(true))
	assert.Equal(t, 12*time.Hour, cfg.HoldWindow(false))
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		t.Setenv("DB_DSN", "")
		t.Setenv("JWT_ACCESS_SECRET", "secret")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("DB_DSN", "postgres://localhost/rfq_test")
		t.Setenv("JWT_ACCESS_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("inverted hold windows", func(t *testing.T) {
		t.Setenv("DB_DSN", "postgres://localhost/rfq_test")
		t.Setenv("JWT_ACCESS_SECRET", "secret")
		t.Setenv("HOLD_WINDOW_STANDARD", "1h")
		t.Setenv("HOLD_WINDOW_URGENT", "4h")
		_, err := Load()
		assert.Error(t, err)
	})
}
