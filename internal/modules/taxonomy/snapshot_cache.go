package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/medcurio/taxonomy-backend/internal/logger"
)

// SnapshotCache keeps category snapshots in Redis for the lock-free read
// path. Eventual consistency is acceptable here: a stale snapshot only feeds
// proposal building, and the reconciler re-validates every invariant against
// live state at commit time. A nil cache is valid and disables caching.
type SnapshotCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSnapshotCache(log *logger.Logger) (*SnapshotCache, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttl := 5 * time.Minute
	if v := strings.TrimSpace(os.Getenv("SNAPSHOT_CACHE_TTL_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			ttl = d
		}
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &SnapshotCache{
		log: log.With("component", "SnapshotCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func snapshotKey(categoryID string) string {
	return "taxonomy:snapshot:" + categoryID
}

func (c *SnapshotCache) Get(ctx context.Context, categoryID string) (*CategorySnapshot, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, snapshotKey(categoryID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap CategorySnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.log.Warn("Dropping undecodable cached snapshot", "category_id", categoryID, "error", err)
		_ = c.rdb.Del(ctx, snapshotKey(categoryID)).Err()
		return nil, false
	}
	return &snap, true
}

func (c *SnapshotCache) Set(ctx context.Context, snap *CategorySnapshot) {
	if c == nil || c.rdb == nil || snap == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey(snap.CategoryID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("Snapshot cache write failed", "category_id", snap.CategoryID, "error", err)
	}
}

func (c *SnapshotCache) Invalidate(ctx context.Context, categoryID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, snapshotKey(categoryID)).Err(); err != nil {
		c.log.Warn("Snapshot cache invalidation failed", "category_id", categoryID, "error", err)
	}
}
