// Package cooldown suppresses repeated notifications of the same alert within a cooldown period.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces cooldown records in Redis.
const KeyPrefix = "cooldown:"

// Store records the last firing time per fingerprint.
type Store interface {
	// CheckAndSet decides, atomically per fingerprint, whether each one may fire at now.
	// Admitted fingerprints are recorded with a TTL of period. The result is index-aligned
	// with fingerprints.
	CheckAndSet(ctx context.Context, fingerprints []string, now time.Time, period time.Duration) ([]bool, error)
}

// RedisStore is a Store backed by Redis. All fingerprints of a call are sent in one pipeline
// and each is evaluated by a Lua script, so concurrent callers never both admit the same key.
type RedisStore struct {
	client      *redis.Client
	admitScript *redis.Script
}

// NewRedisStore creates a store on the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		admitScript: newAdmitScript(),
	}
}

// Key returns the Redis key for a fingerprint.
func Key(fingerprint string) string {
	return KeyPrefix + fingerprint
}

// CheckAndSet implements Store.
func (s *RedisStore) CheckAndSet(ctx context.Context, fingerprints []string, now time.Time, period time.Duration) ([]bool, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	seconds := int64(period / time.Second)
	if seconds < 1 {
		return nil, fmt.Errorf("cooldown period must be at least one second, got %s", period)
	}

	cmds := make([]*redis.Cmd, len(fingerprints))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, fp := range fingerprints {
			cmds[i] = s.admitScript.Eval(ctx, pipe, []string{Key(fp)}, now.Unix(), seconds)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check cooldowns: %w", err)
	}

	admitted := make([]bool, len(fingerprints))
	for i, cmd := range cmds {
		v, err := cmd.Int64()
		if err != nil {
			return nil, fmt.Errorf("failed to read cooldown result for %s: %w", fingerprints[i], err)
		}
		admitted[i] = v == 1
	}
	return admitted, nil
}

// LastFired returns when a fingerprint last fired, if its cooldown record is still present.
func (s *RedisStore) LastFired(ctx context.Context, fingerprint string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, Key(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get cooldown record: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid cooldown record %q: %w", val, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}
