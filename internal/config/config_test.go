package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, 8, cfg.PasswordMinLength)
	require.True(t, cfg.IsPlatformAdmin("Admin"))
	require.False(t, cfg.IsPlatformAdmin("alice"))
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")

	_, err := Load()
	require.Error(t, err)
}

func TestGetListTrims(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	require.Equal(t, []string{"a:9092", "b:9092"}, getList("KAFKA_BROKERS", nil))
}

func TestGetFloatFallsBack(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	require.InDelta(t, 0.25, getFloat("OTEL_TRACES_SAMPLER_ARG", 1), 1e-9)

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "lots")
	require.InDelta(t, 1.0, getFloat("OTEL_TRACES_SAMPLER_ARG", 1), 1e-9)
}
