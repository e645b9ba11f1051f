package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/redis/go-redis/v9"
)

const redisAttemptKeyPrefix = "bastion:attempts:"

// recordFailureScript increments attempts and recomputes the lock in one
// round trip so concurrent failures on the same key never lose updates.
//
// KEYS[1] record key
// ARGV[1] now (unix ms), ARGV[2] max attempts, ARGV[3] idle ttl (ms), ARGV[4..] tiers (ms)
var recordFailureScript = redis.NewScript(`
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local now = tonumber(ARGV[1])
redis.call('HSET', KEYS[1], 'last_failure_at', now)

local locked_until = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
local over = attempts - tonumber(ARGV[2])
local tiers = #ARGV - 3
if over > 0 and tiers > 0 then
	locked_until = now + tonumber(ARGV[3 + math.min(over, tiers)])
	redis.call('HSET', KEYS[1], 'locked_until', locked_until)
end

local ttl = tonumber(ARGV[3])
if locked_until - now > ttl then
	ttl = locked_until - now
end
redis.call('PEXPIRE', KEYS[1], ttl)

return {attempts, locked_until}
`)

var unblockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HDEL', KEYS[1], 'locked_until')
return 1
`)

// RedisAttemptStore shares attempt records between instances through Redis.
// Records expire through key TTLs, refreshed on every failure.
type RedisAttemptStore struct {
	client  redis.UniversalClient
	idleTTL time.Duration
}

// NewRedisAttemptStore creates a Redis-backed store
func NewRedisAttemptStore(client redis.UniversalClient, idleTTL time.Duration) *RedisAttemptStore {
	if idleTTL <= 0 {
		idleTTL = 24 * time.Hour
	}
	return &RedisAttemptStore{
		client:  client,
		idleTTL: idleTTL,
	}
}

func (s *RedisAttemptStore) redisKey(key models.AttemptKey) string {
	return redisAttemptKeyPrefix + key.String()
}

// RecordFailure increments the failure count for key and applies the policy
func (s *RedisAttemptStore) RecordFailure(ctx context.Context, key models.AttemptKey, policy models.LockoutPolicy, now time.Time) (*models.AttemptRecord, error) {
	args := []interface{}{now.UnixMilli(), policy.MaxAttempts, s.idleTTL.Milliseconds()}
	for _, tier := range policy.TiersMillis() {
		args = append(args, tier)
	}

	result, err := recordFailureScript.Run(ctx, s.client, []string{s.redisKey(key)}, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("record failure in redis: %w", err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("record failure in redis: unexpected reply length %d", len(result))
	}

	return &models.AttemptRecord{
		Key:           key,
		Attempts:      int(result[0]),
		LockedUntil:   millisToTime(result[1]),
		LastFailureAt: time.UnixMilli(now.UnixMilli()),
	}, nil
}

// Get returns the record for key, or nil if none exists
func (s *RedisAttemptStore) Get(ctx context.Context, key models.AttemptKey) (*models.AttemptRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get attempt record from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("parse attempts for %s: %w", key, err)
	}
	lastFailure, err := parseMillis(fields["last_failure_at"])
	if err != nil {
		return nil, fmt.Errorf("parse last failure for %s: %w", key, err)
	}
	lockedUntil, err := parseMillis(fields["locked_until"])
	if err != nil {
		return nil, fmt.Errorf("parse lock for %s: %w", key, err)
	}

	return &models.AttemptRecord{
		Key:           key,
		Attempts:      attempts,
		LockedUntil:   millisToTime(lockedUntil),
		LastFailureAt: time.UnixMilli(lastFailure),
	}, nil
}

// Reset deletes the records for keys
func (s *RedisAttemptStore) Reset(ctx context.Context, keys ...models.AttemptKey) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.redisKey(key)
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("reset attempt records in redis: %w", err)
	}
	return nil
}

// Unblock clears the lock on key but keeps its attempt count
func (s *RedisAttemptStore) Unblock(ctx context.Context, key models.AttemptKey) (bool, error) {
	existed, err := unblockScript.Run(ctx, s.client, []string{s.redisKey(key)}).Int64()
	if err != nil {
		return false, fmt.Errorf("unblock in redis: %w", err)
	}
	return existed == 1, nil
}

// ResetAll deletes every attempt record under the store prefix
func (s *RedisAttemptStore) ResetAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisAttemptKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("reset all in redis: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan attempt records in redis: %w", err)
	}
	return nil
}

// DeleteIdle is a no-op: Redis expires idle records through key TTLs
func (s *RedisAttemptStore) DeleteIdle(_ context.Context, _, _ time.Time) (int64, error) {
	return 0, nil
}

// Ping checks the Redis connection
func (s *RedisAttemptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func parseMillis(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func millisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
