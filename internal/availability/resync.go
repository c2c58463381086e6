// Package availability maintains a Redis-cached view of each provider's
// open native slots so availability reads never hit the slot ledger.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const (
	keyPrefix  = "availability:provider:"
	defaultTTL = 5 * time.Minute
)

// SlotSource produces the authoritative open-slot view for a provider.
type SlotSource interface {
	OpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.Slot, error)
}

// Cache stores serialized slot lists in Redis with a TTL. Stale reads
// are acceptable; booking still goes through the conditional claim.
type Cache struct {
	rdb    *redis.Client
	source SlotSource
	ttl    time.Duration
	logger *logging.Logger
}

// NewCache creates the availability cache.
func NewCache(rdb *redis.Client, source SlotSource, ttl time.Duration, logger *logging.Logger) *Cache {
	if rdb == nil {
		panic("availability: redis client required")
	}
	if source == nil {
		panic("availability: slot source required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{rdb: rdb, source: source, ttl: ttl, logger: logger.Component("availability")}
}

func cacheKey(providerID uuid.UUID) string {
	return keyPrefix + providerID.String()
}

// Resync reloads the provider's open slots from the ledger and replaces
// the cached entry.
func (c *Cache) Resync(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.Slot, error) {
	slots, err := c.source.OpenSlots(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: resync provider %s: %w", providerID, err)
	}

	payload, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("availability: marshal slots: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(providerID), payload, c.ttl).Err(); err != nil {
		// cache write failure is not fatal; callers still get fresh slots
		c.logger.Warn("availability cache write failed", "provider_id", providerID, "error", err)
	}
	return slots, nil
}

// OpenSlots serves the cached view, falling back to a resync on miss.
func (c *Cache) OpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]scheduling.Slot, error) {
	payload, err := c.rdb.Get(ctx, cacheKey(providerID)).Bytes()
	if err == redis.Nil {
		return c.Resync(ctx, providerID, from, to)
	}
	if err != nil {
		c.logger.Warn("availability cache read failed, falling back to ledger", "provider_id", providerID, "error", err)
		return c.source.OpenSlots(ctx, providerID, from, to)
	}

	var slots []scheduling.Slot
	if err := json.Unmarshal(payload, &slots); err != nil {
		c.logger.Warn("availability cache entry corrupt, resyncing", "provider_id", providerID, "error", err)
		return c.Resync(ctx, providerID, from, to)
	}

	// the cached window may be wider than requested
	filtered := slots[:0]
	for _, s := range slots {
		if !s.Start.Before(from) && s.Start.Before(to) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// Invalidate drops the cached entry after a booking or cancellation
// changes the ledger.
func (c *Cache) Invalidate(ctx context.Context, providerID uuid.UUID) {
	if err := c.rdb.Del(ctx, cacheKey(providerID)).Err(); err != nil {
		c.logger.Warn("availability cache invalidate failed", "provider_id", providerID, "error", err)
	}
}
