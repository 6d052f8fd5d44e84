// Package timeline maintains the per-user timeline caches backed by Redis
// sorted sets. Each entry holds candidate post ids scored by the post id
// itself, so recency ordering falls out of the id scheme. The cache is a
// performance accelerator only; the post store stays authoritative.
package timeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bharti-cmyk/instagram/config"
	"github.com/redis/go-redis/v9"
)

// Connect creates a Redis client and verifies the connection.
func Connect(cfg config.TomlRedis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

// Cache is the bounded per-user ordered set of candidate post ids.
type Cache struct {
	rdb       *redis.Client
	maxSize   int
	retention time.Duration
}

func NewCache(rdb *redis.Client, maxSize int, retention time.Duration) *Cache {
	return &Cache{
		rdb:       rdb,
		maxSize:   maxSize,
		retention: retention,
	}
}

func key(userID int64) string {
	return "feed:" + strconv.FormatInt(userID, 10)
}

// Push adds the post to the follower's timeline entry, trims the entry to
// the configured max size and refreshes its expiry. All three commands run
// in one transactional pipeline so a crash cannot leave the entry unbounded
// or missing the new id. ZADD on an existing member is an upsert, so
// redelivered jobs are no-ops.
func (c *Cache) Push(ctx context.Context, followerID int64, postID int64) error {
	feedKey := key(followerID)

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, feedKey, redis.Z{
		Score:  float64(postID),
		Member: strconv.FormatInt(postID, 10),
	})
	// Keep only the maxSize highest scored members
	pipe.ZRemRangeByRank(ctx, feedKey, 0, int64(-(c.maxSize + 1)))
	pipe.Expire(ctx, feedKey, c.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("timeline push for user %d: %w", followerID, err)
	}

	return nil
}

// RangeBefore returns up to limit post ids older than the cursor, newest
// first. A zero cursor means no upper bound.
func (c *Cache) RangeBefore(ctx context.Context, userID int64, cursor int64, limit int) ([]int64, error) {
	max := "+inf"
	if cursor != 0 {
		max = "(" + strconv.FormatInt(cursor, 10)
	}

	members, err := c.rdb.ZRevRangeByScore(ctx, key(userID), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    max,
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("timeline range for user %d: %w", userID, err)
	}

	return parseMembers(members)
}

// RangeAfter returns all post ids newer than the after marker, oldest
// first. Used for forward catch-up queries.
func (c *Cache) RangeAfter(ctx context.Context, userID int64, after int64) ([]int64, error) {
	members, err := c.rdb.ZRangeByScore(ctx, key(userID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(after, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("timeline range for user %d: %w", userID, err)
	}

	return parseMembers(members)
}

// Size returns the number of ids in the user's timeline entry.
func (c *Cache) Size(ctx context.Context, userID int64) (int64, error) {
	return c.rdb.ZCard(ctx, key(userID)).Result()
}

func parseMembers(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed timeline member %q: %w", member, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
