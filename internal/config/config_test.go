package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadMemoryBackendDefaults(t *testing.T) {
	setBase(t)
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 30*time.Minute, cfg.Booking.SlotGranularity)
	assert.Equal(t, 3, cfg.Booking.ReserveAttempts)
	assert.Equal(t, "RSV", cfg.Booking.ConfirmationCode)
	assert.Equal(t, NotifyRabbitMQ, cfg.Notify.Backend)
	assert.Equal(t, "booking.events", cfg.Notify.Queue)
	assert.False(t, cfg.IsDev())
}

func TestLoadRequiresDatabaseForMySQL(t *testing.T) {
	setBase(t)
	t.Setenv("STORE_BACKEND", "mysql")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "DB_NAME")
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_BACKEND", "memory")

	_, err := Load()
	require.Error(t, err)
	for _, k := range []string{"APP_ENV", "APP_PORT", "JWT_SECRET"} {
		assert.Contains(t, err.Error(), k)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	setBase(t)
	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("NOTIFY_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "")
	_, err = Load()
	assert.ErrorContains(t, err, "KAFKA_BROKERS")
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 1, rl.RefillTokens)
	assert.Equal(t, 2*time.Second, rl.RefillInterval)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestRedisConfigHostPortWins(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	assert.Equal(t, "redis:6380", LoadRedisConfig().Addr)
	assert.Nil(t, NewRedisClient(RedisConfig{}, nil))
}
