package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bilet/internal/config"
	bileterr "bilet/internal/errors"
)

// acquireSlotScript increments the slot counter only while it is below
// capacity. A single round trip keeps the check-and-increment atomic.
var acquireSlotScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < tonumber(ARGV[1]) then
    return redis.call('INCR', KEYS[1])
end
return 0
`)

// releaseSlotScript decrements the slot counter, clamped at zero so replayed
// releases cannot drive it negative.
var releaseSlotScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > 0 then
    return redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisStore implements SlotStore and AuthCache on Valkey/Redis.
type RedisStore struct {
	client       *redis.Client
	usersHashKey string
}

// NewRedisStore connects to the configured Redis instance.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: rdb, usersHashKey: "users:auth"}, nil
}

func slotKey(showingID int64) string {
	return fmt.Sprintf("admission:slots:%d", showingID)
}

func heartbeatKey(showingID, userID int64) string {
	return fmt.Sprintf("admission:hb:%d:%d", showingID, userID)
}

func (s *RedisStore) AcquireSlot(ctx context.Context, showingID int64, capacity int) (bool, error) {
	n, err := acquireSlotScript.Run(ctx, s.client, []string{slotKey(showingID)}, capacity).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: acquire slot: %v", bileterr.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisStore) ReleaseSlot(ctx context.Context, showingID int64) error {
	if err := releaseSlotScript.Run(ctx, s.client, []string{slotKey(showingID)}).Err(); err != nil {
		return fmt.Errorf("%w: release slot: %v", bileterr.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ActiveSlots(ctx context.Context, showingID int64) (int, error) {
	val, err := s.client.Get(ctx, slotKey(showingID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read slots: %v", bileterr.ErrStoreUnavailable, err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid slot counter value %q: %w", val, err)
	}
	return n, nil
}

func (s *RedisStore) SetHeartbeat(ctx context.Context, showingID, userID int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, heartbeatKey(showingID, userID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: set heartbeat: %v", bileterr.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) HeartbeatAlive(ctx context.Context, showingID, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, heartbeatKey(showingID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check heartbeat: %v", bileterr.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisStore) DeleteHeartbeat(ctx context.Context, showingID, userID int64) error {
	if err := s.client.Del(ctx, heartbeatKey(showingID, userID)).Err(); err != nil {
		return fmt.Errorf("%w: delete heartbeat: %v", bileterr.ErrStoreUnavailable, err)
	}
	return nil
}

// GetUserIDByAuth looks up a cached credential pair.
func (s *RedisStore) GetUserIDByAuth(ctx context.Context, email, passwordHash string) (int64, error) {
	cacheKey := base64.StdEncoding.EncodeToString([]byte(email + ":" + passwordHash))

	userIDStr, err := s.client.HGet(ctx, s.usersHashKey, cacheKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, bileterr.ErrNotFound
		}
		return 0, fmt.Errorf("cache lookup error: %w", err)
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID in cache: %w", err)
	}
	return userID, nil
}

// CacheUserAuth stores a resolved credential pair for later lookups.
func (s *RedisStore) CacheUserAuth(ctx context.Context, email, passwordHash string, userID int64) error {
	cacheKey := base64.StdEncoding.EncodeToString([]byte(email + ":" + passwordHash))
	return s.client.HSet(ctx, s.usersHashKey, cacheKey, strconv.FormatInt(userID, 10)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
