package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// AvailabilityCache stores computed slot lists in Redis.  One hash per
// restaurant and date holds a field per party size, so a single DEL
// invalidates every party size after a mutation.  A generation counter per
// restaurant and date is bumped on every invalidation; a list is only
// written back if the generation read before computing it is still
// current.  A nil cache is valid and always misses.  The reservation path
// never reads from it.
type AvailabilityCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewAvailabilityCache returns nil when rdb is nil so callers can wire it
// unconditionally.
func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration, prefix string, log *slog.Logger) *AvailabilityCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if prefix == "" {
		prefix = "avail"
	}
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

// generationTTL outlives any cached list.
const generationTTL = 24 * time.Hour

// cacheSetScript writes one party size only while the generation in
// KEYS[2] still equals ARGV[1].
var cacheSetScript = redis.NewScript(`
    local gen = redis.call('GET', KEYS[2]) or '0'
    if gen ~= ARGV[1] then
        return 0
    end
    redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
    redis.call('PEXPIRE', KEYS[1], ARGV[4])
    return 1
`)

func (c *AvailabilityCache) key(restaurantID, date string) string {
	return c.prefix + ":" + restaurantID + ":" + date
}

func (c *AvailabilityCache) genKey(restaurantID, date string) string {
	return c.prefix + ":gen:" + restaurantID + ":" + date
}

// Generation returns the current generation for the restaurant and date.
// ok is false when it cannot be read; the caller must then skip Set.
func (c *AvailabilityCache) Generation(ctx context.Context, restaurantID, date string) (gen string, ok bool) {
	if c == nil {
		return "", false
	}
	gen, err := c.rdb.Get(ctx, c.genKey(restaurantID, date)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", true
	case err != nil:
		c.log.Warn("availability cache generation read failed", "restaurant_id", restaurantID, "date", date, "err", err)
		return "", false
	}
	return gen, true
}

// Get returns the cached slots for the query, if any.
func (c *AvailabilityCache) Get(ctx context.Context, restaurantID, date string, partySize int) ([]model.AvailabilitySlot, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.HGet(ctx, c.key(restaurantID, date), strconv.Itoa(partySize)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("availability cache read failed", "restaurant_id", restaurantID, "date", date, "err", err)
		}
		return nil, false
	}
	var slots []model.AvailabilitySlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false
	}
	return slots, true
}

// Set stores slots unless the restaurant and date were invalidated since
// gen was read, and refreshes the hash's TTL.
func (c *AvailabilityCache) Set(ctx context.Context, restaurantID, date, gen string, partySize int, slots []model.AvailabilitySlot) {
	if c == nil || gen == "" {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	key := c.key(restaurantID, date)
	keys := []string{key, c.genKey(restaurantID, date)}
	if err := cacheSetScript.Run(ctx, c.rdb, keys, setArgs(gen, partySize, raw, c.ttl)...).Err(); err != nil {
		c.log.Warn("availability cache write failed", "key", key, "err", err)
	}
}

func setArgs(gen string, partySize int, raw []byte, ttl time.Duration) []interface{} {
	return []interface{}{gen, strconv.Itoa(partySize), string(raw), ttl.Milliseconds()}
}

// Invalidate drops every cached party size for the restaurant and date.
func (c *AvailabilityCache) Invalidate(ctx context.Context, restaurantID, date string) {
	if c == nil {
		return
	}
	genKey := c.genKey(restaurantID, date)
	if err := c.rdb.Incr(ctx, genKey).Err(); err != nil {
		c.log.Warn("availability cache generation bump failed", "restaurant_id", restaurantID, "date", date, "err", err)
	} else if err := c.rdb.Expire(ctx, genKey, generationTTL).Err(); err != nil {
		c.log.Warn("availability cache generation expire failed", "key", genKey, "err", err)
	}
	if err := c.rdb.Del(ctx, c.key(restaurantID, date)).Err(); err != nil {
		c.log.Warn("availability cache invalidate failed", "restaurant_id", restaurantID, "date", date, "err", err)
	}
}
