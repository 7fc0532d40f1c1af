// redis.go -- go-redis client for pending logins and sessions.
//
// Pending logins are single-use: ConsumePendingLogin reads and deletes in one
// GETDEL so two callbacks racing on the same state cannot both succeed.
// Sessions carry a TTL matching their expiry and are indexed per user for bulk logout.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a Redis client for pending-login and session operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisClient parses redisURL, connects, and pings.
// The returned client is shared by RedisStore and RedisRateLimiter; caller closes it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore wraps an existing client. Safe for concurrent use.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func pendingKey(state string) string { return "pending_login:" + state }
func sessionKey(key string) string { return "session:" + key }
func userSessionsKey(userID string) string { return "user_sessions:" + userID }

// SavePendingLogin stores p under its state with the given TTL.
// Uses SET NX; a collision on a 256-bit random state is treated as an error, never an overwrite.
func (s *RedisStore) SavePendingLogin(ctx context.Context, p PendingLogin, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling pending login: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, pendingKey(p.State), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("saving pending login: %w", err)
	}
	if !ok {
		return fmt.Errorf("saving pending login: state already exists")
	}
	return nil
}

// ConsumePendingLogin atomically fetches and deletes the pending login for state.
// Returns ErrNotFound if absent, expired, or already consumed.
func (s *RedisStore) ConsumePendingLogin(ctx context.Context, state string) (*PendingLogin, error) {
	raw, err := s.rdb.GetDel(ctx, pendingKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consuming pending login: %w", err)
	}

	var p PendingLogin
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing pending login: %w", err)
	}
	return &p, nil
}

// SetSession stores a session under key with the given TTL and adds key to the
// user's tracking set. All writes go in one MULTI/EXEC.
// The set's TTL follows its longest-lived session so stale indexes expire.
func (s *RedisStore) SetSession(ctx context.Context, key string, sess Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(key), raw, ttl)
	pipe.SAdd(ctx, userSessionsKey(sess.UserID), key)
	extendIndexTTL(ctx, pipe, sess.UserID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// UpdateSession rewrites an existing session and its TTL.
// Uses SET XX so a session deleted concurrently is not resurrected; returns ErrNotFound then.
func (s *RedisStore) UpdateSession(ctx context.Context, key string, sess Session, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	set := pipe.SetXX(ctx, sessionKey(key), raw, ttl)
	extendIndexTTL(ctx, pipe, sess.UserID, ttl)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("updating session: %w", err)
	}
	if !set.Val() {
		return ErrNotFound
	}
	return nil
}

// extendIndexTTL queues a TTL on the user's tracking set: NX covers a fresh set,
// GT only ever pushes an existing expiry later.
func extendIndexTTL(ctx context.Context, pipe redis.Pipeliner, userID string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	pipe.ExpireNX(ctx, userSessionsKey(userID), ttl)
	pipe.ExpireGT(ctx, userSessionsKey(userID), ttl)
}

// GetSession retrieves a session by key. Returns ErrNotFound on a miss.
func (s *RedisStore) GetSession(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session and its entry in the user's tracking set.
// Deleting an absent session is not an error.
func (s *RedisStore) DeleteSession(ctx context.Context, key string, userID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(key))
	if userID != "" {
		pipe.SRem(ctx, userSessionsKey(userID), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// deleteUserSessionsScript reads the tracking set and deletes every session in it,
// then the set itself. One script so a session added mid-delete is not orphaned.
// KEYS[1] = tracking set, ARGV[1] = session key prefix.
var deleteUserSessionsScript = redis.NewScript(`
local keys = redis.call('SMEMBERS', KEYS[1])
for _, k in ipairs(keys) do
    redis.call('DEL', ARGV[1] .. k)
end
redis.call('DEL', KEYS[1])
return #keys
`)

// DeleteAllUserSessions removes every session tracked for userID.
func (s *RedisStore) DeleteAllUserSessions(ctx context.Context, userID string) error {
	err := deleteUserSessionsScript.Run(ctx, s.rdb, []string{userSessionsKey(userID)}, sessionKey("")).Err()
	if err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
