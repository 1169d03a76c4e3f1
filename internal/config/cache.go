package config

import "time"

// AvailabilityCacheConfig controls the Redis cache of computed availability.
// When Enabled is false or no Redis client is configured, every query is
// computed from the store.
type AvailabilityCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadAvailabilityCacheConfig reads AVAILABILITY_CACHE_* variables.
func LoadAvailabilityCacheConfig() AvailabilityCacheConfig {
	c := AvailabilityCacheConfig{
		Enabled: envBool("AVAILABILITY_CACHE_ENABLED", true),
		TTL:     envDur("AVAILABILITY_CACHE_TTL", 15*time.Second),
		Prefix:  envStr("AVAILABILITY_CACHE_PREFIX", "avail"),
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Second
	}
	return c
}
