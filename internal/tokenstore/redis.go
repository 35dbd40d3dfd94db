package tokenstore

import (
	"context"
	"fmt"
	"time"

	"classroom-access/internal/auth"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per token kind. Members are jtis and the
// score is the revocation time in unix milliseconds, so a sweep is a range
// delete by score.
type RedisStore struct {
	rdb        *redis.Client
	accessKey  string
	refreshKey string
	now        func() time.Time
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "blocklist"
	}
	return &RedisStore{
		rdb:        rdb,
		accessKey:  prefix + ":access",
		refreshKey: prefix + ":refresh",
		now:        time.Now,
	}
}

func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

var revokeScript = redis.NewScript(`
-- KEYS[1] = access set, KEYS[2] = refresh set
-- ARGV[1] = jti, ARGV[2] = score (ms), ARGV[3] = kind
-- Returns 1 if added, 0 if the jti was already present in either set.
if redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  return 0
end
local key = KEYS[1]
if ARGV[3] == 'refresh' then
  key = KEYS[2]
end
redis.call('ZADD', key, ARGV[2], ARGV[1])
return 1
`)

var isRevokedScript = redis.NewScript(`
-- KEYS[1] = access set, KEYS[2] = refresh set, ARGV[1] = jti
if redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  return 1
end
return 0
`)

var sweepScript = redis.NewScript(`
-- KEYS[1] = access set, KEYS[2] = refresh set
-- ARGV[1] = access cutoff (ms), ARGV[2] = refresh cutoff (ms)
-- Removes members strictly older than each cutoff; a cutoff of '+inf'
-- empties the set. Returns the total removed.
local function upper(v)
  if v == '+inf' then
    return v
  end
  return '(' .. v
end
local a = redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', upper(ARGV[1]))
local r = redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', upper(ARGV[2]))
return a + r
`)

func (s *RedisStore) keys() []string { return []string{s.accessKey, s.refreshKey} }

func (s *RedisStore) Revoke(ctx context.Context, jti string, kind auth.TokenType) error {
	if err := validate(jti, kind); err != nil {
		return err
	}
	if s.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	score := s.now().UnixMilli()
	if err := revokeScript.Run(ctx, s.rdb, s.keys(), jti, score, string(kind)).Err(); err != nil {
		return fmt.Errorf("revoke %s: %w", jti, err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	n, err := isRevokedScript.Run(ctx, s.rdb, s.keys(), jti).Int()
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", jti, err)
	}
	return n == 1, nil
}

// Sweep removes expired members of both sets in one script call, which Redis runs atomically.
func (s *RedisStore) Sweep(ctx context.Context, accessRetention, refreshRetention time.Duration) (int64, error) {
	if s.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	now := s.now()
	n, err := sweepScript.Run(ctx, s.rdb, s.keys(), redisCutoff(now, accessRetention), redisCutoff(now, refreshRetention)).Int64()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return n, nil
}

// redisCutoff is a score bound for sweepScript: unix milliseconds, or "+inf"
// when the whole set goes.
func redisCutoff(now time.Time, retention time.Duration) any {
	cutoff, all := sweepCutoff(now, retention)
	if all {
		return "+inf"
	}
	return cutoff.UnixMilli()
}
