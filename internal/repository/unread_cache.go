package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"campus_social/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	unreadTotalKeyPrefix   = "unread:total:%d"
	unreadVersionKeyPrefix = "unread:version:%d"

	// Version keys must outlive any in-flight fill.
	unreadVersionTTL = 24 * time.Hour
)

// setIfVersion writes the total only while the user's version key still
// holds the value read before the database sum.
var setIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// UnreadCache holds each user's total unread message count for a short TTL.
// Invalidate bumps a per-user version so a fill that started before it
// cannot write its stale total back.
type UnreadCache interface {
	Get(ctx context.Context, userID int64) (int, bool, error)
	Version(ctx context.Context, userID int64) (int64, error)
	// SetIfVersion stores total unless the user was invalidated since version
	// was read. It reports whether the value was written.
	SetIfVersion(ctx context.Context, userID int64, total int, version int64) (bool, error)
	Invalidate(ctx context.Context, userIDs ...int64) error
}

type unreadCache struct {
	rdb *redis.Client
	ttl time.Duration
	log logger.Logger
}

func NewUnreadCache(rdb *redis.Client, ttl time.Duration, log logger.Logger) UnreadCache {
	return &unreadCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *unreadCache) key(userID int64) string {
	return fmt.Sprintf(unreadTotalKeyPrefix, userID)
}

func (c *unreadCache) versionKey(userID int64) string {
	return fmt.Sprintf(unreadVersionKeyPrefix, userID)
}

func (c *unreadCache) Get(ctx context.Context, userID int64) (int, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get unread total: %w", err)
	}
	total, err := strconv.Atoi(raw)
	if err != nil {
		c.log.Warn("Corrupt unread cache entry", "user_id", userID, "value", raw)
		return 0, false, nil
	}
	return total, true, nil
}

func (c *unreadCache) Version(ctx context.Context, userID int64) (int64, error) {
	version, err := c.rdb.Get(ctx, c.versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get unread version: %w", err)
	}
	return version, nil
}

func (c *unreadCache) SetIfVersion(ctx context.Context, userID int64, total int, version int64) (bool, error) {
	keys := []string{c.key(userID), c.versionKey(userID)}
	written, err := setIfVersion.Run(ctx, c.rdb, keys,
		strconv.FormatInt(version, 10), total, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("set unread total: %w", err)
	}
	return written == 1, nil
}

func (c *unreadCache) Invalidate(ctx context.Context, userIDs ...int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, c.key(id))
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Expire(ctx, c.versionKey(id), unreadVersionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate unread total: %w", err)
	}
	return nil
}
