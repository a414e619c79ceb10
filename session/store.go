package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the navigation engine.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minSlidingTTL = time.Second

// deleteSessionScript removes a session and its index entry atomically
// and reports whether the session still existed. The existed flag is
// what makes invalidation observable exactly once under races.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store that handles persistence,
// expiration, and sliding window renewal for admin sessions.
type Store struct {
	redis         redis.UniversalClient
	prefix        string
	sliding       bool
	jitterEnabled bool
	jitterRange   time.Duration
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace; sliding, jitterEnabled, and
// jitterRange control expiration behavior.
func NewStore(
	redis redis.UniversalClient,
	prefix string,
	sliding bool,
	jitterEnabled bool,
	jitterRange time.Duration,
) *Store {
	return &Store{
		redis:         redis,
		prefix:        prefix,
		sliding:       sliding,
		jitterEnabled: jitterEnabled,
		jitterRange:   jitterRange,
	}
}

func (s *Store) key(sessionKey string) string {
	return s.prefix + ":" + sessionKey
}

func (s *Store) actorKey(municipalityID, actorID string) string {
	return "hpu:" + normalizeMunicipalityID(municipalityID) + ":" + actorID
}

func (s *Store) municipalityCountKey(municipalityID string) string {
	return "hpc:" + normalizeMunicipalityID(municipalityID) + ":count"
}

func normalizeMunicipalityID(municipalityID string) string {
	if municipalityID == "" {
		return "0"
	}
	return municipalityID
}

// Save persists a [Session] to Redis with the given TTL.
//
//	Performance: 3 Redis commands in one transaction (SET + index + counter).
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	sessionKey := s.key(sess.Key)
	actorKey := s.actorKey(sess.MunicipalityID, sess.ActorID)
	countKey := s.municipalityCountKey(sess.MunicipalityID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, actorKey, sess.Key)
		pipe.Incr(ctx, countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by key. Returns the decoded [Session], or
// redis.Nil when the session does not exist or has outlived the
// absolute lifetime cap. A hit renews the sliding window.
//
//	Performance: 1 Redis GET, plus 1 EXPIRE when sliding renewal is on.
func (s *Store) Get(ctx context.Context, sessionKey string, absoluteLifetime time.Duration) (*Session, error) {
	key := s.key(sessionKey)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.Key = sessionKey

	now := time.Now()
	remainingAbsolute := s.remainingAbsoluteTTL(sess, absoluteLifetime, now)
	if remainingAbsolute <= 0 {
		if _, err := s.invalidateDecoded(ctx, sess); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	if err := s.maybeMigrateSessionSchema(ctx, key, sess); err != nil {
		return nil, err
	}

	if s.sliding {
		nextTTL, err := s.nextSlidingTTL(remainingAbsolute)
		if err != nil {
			return nil, err
		}

		if err := s.redis.Expire(ctx, key, nextTTL).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return sess, nil
}

// GetReadOnly fetches a session without mutating TTL, index, or any Redis state.
func (s *Store) GetReadOnly(ctx context.Context, sessionKey string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.Key = sessionKey
	if time.Now().Unix() > sess.ExpiresAt {
		return nil, redis.Nil
	}
	if err := s.maybeMigrateSessionSchema(ctx, s.key(sessionKey), sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// Invalidate removes a session and reports whether it still existed.
// Concurrent invalidations of the same key see true exactly once; the
// existed flag comes from the atomic delete script, not a read.
//
//	Performance: 1 Redis GET + 1 Lua EVALSHA.
func (s *Store) Invalidate(ctx context.Context, sessionKey string) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(sessionKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return false, err
	}
	sess.Key = sessionKey

	return s.invalidateDecoded(ctx, sess)
}

func (s *Store) invalidateDecoded(ctx context.Context, sess *Session) (bool, error) {
	key := s.key(sess.Key)
	actorKey := s.actorKey(sess.MunicipalityID, sess.ActorID)
	countKey := s.municipalityCountKey(sess.MunicipalityID)

	existed, err := deleteSessionLua.Run(ctx, s.redis, []string{key, actorKey, countKey}, sess.Key).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return existed == 1, nil
}

// InvalidateAllForActor removes all sessions for an actor within a municipality.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the
// actor's session set (SMembers), checks which sessions still exist
// (pipeline EXISTS), then deletes them (TxPipelined DEL). A session
// created between the read and delete phases will not be captured by
// this call. In practice this race is extremely narrow and only
// affects sign-out-everywhere semantics. The stray session will expire
// naturally or be caught by the next InvalidateAllForActor call.
func (s *Store) InvalidateAllForActor(ctx context.Context, municipalityID, actorID string) error {
	actorKey := s.actorKey(municipalityID, actorID)
	countKey := s.municipalityCountKey(municipalityID)

	sessionKeys, err := s.redis.SMembers(ctx, actorKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	redisKeys := make([]string, 0, len(sessionKeys))
	for _, sessionKey := range sessionKeys {
		redisKeys = append(redisKeys, s.key(sessionKey))
	}

	currentCount, err := s.MunicipalitySessionCount(ctx, municipalityID)
	if err != nil {
		return err
	}

	var existing int
	if len(redisKeys) > 0 {
		pipe := s.redis.Pipeline()
		existsCmds := make([]*redis.IntCmd, len(redisKeys))
		for i, redisKey := range redisKeys {
			existsCmds[i] = pipe.Exists(ctx, redisKey)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, cmd := range existsCmds {
			v, cmdErr := cmd.Result()
			if cmdErr != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
			}
			existing += int(v)
		}
	}

	decrement := existing
	if decrement > currentCount {
		decrement = currentCount
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(redisKeys) > 0 {
			pipe.Del(ctx, redisKeys...)
		}
		pipe.Del(ctx, actorKey)
		if decrement > 0 {
			pipe.DecrBy(ctx, countKey, int64(decrement))
		}
		if decrement == currentCount && currentCount > 0 {
			pipe.Del(ctx, countKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// MunicipalitySessionCount returns the tracked municipality-wide session counter.
func (s *Store) MunicipalitySessionCount(ctx context.Context, municipalityID string) (int, error) {
	count, err := s.redis.Get(ctx, s.municipalityCountKey(municipalityID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// ActorSessionKeys returns tracked session keys for an actor in a municipality.
func (s *Store) ActorSessionKeys(ctx context.Context, municipalityID, actorID string) ([]string, error) {
	keys, err := s.redis.SMembers(ctx, s.actorKey(municipalityID, actorID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return keys, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) remainingAbsoluteTTL(sess *Session, absoluteLifetime time.Duration, now time.Time) time.Duration {
	storedExpiry := time.Unix(sess.ExpiresAt, 0)
	if absoluteLifetime <= 0 {
		return storedExpiry.Sub(now)
	}

	configCap := time.Unix(sess.CreatedAt, 0).Add(absoluteLifetime)
	if configCap.Before(storedExpiry) {
		return configCap.Sub(now)
	}

	return storedExpiry.Sub(now)
}

func (s *Store) nextSlidingTTL(remainingAbsolute time.Duration) (time.Duration, error) {
	nextTTL := remainingAbsolute

	if s.jitterEnabled && s.jitterRange > 0 {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		nextTTL += jitter
	}

	if nextTTL > remainingAbsolute {
		nextTTL = remainingAbsolute
	}

	minTTL := minSlidingTTL
	if remainingAbsolute < minTTL {
		minTTL = remainingAbsolute
	}
	if nextTTL < minTTL {
		nextTTL = minTTL
	}

	return nextTTL, nil
}

func (s *Store) maybeMigrateSessionSchema(ctx context.Context, key string, sess *Session) error {
	if sess == nil || sess.SchemaVersion == CurrentSchemaVersion {
		return nil
	}

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return nil
	}

	sess.SchemaVersion = CurrentSchemaVersion
	encoded, err := Encode(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, key, encoded, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}

	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	span := max*2 + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, err
	}

	return time.Duration(n.Int64() - max), nil
}
