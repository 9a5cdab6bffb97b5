package artifactcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cache entries in Redis for deployments that don't
// want computed artifacts in Postgres. Entries are stored as JSON under
// "artifact:<account>:<kind>:..." keys; expiring entries additionally
// carry a native Redis TTL so stale rows vanish on their own.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store. Panics on nil client to
// fail fast during initialization.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("artifactcache: redis client is required")
	}
	return &RedisStore{client: client}
}

// redisEntry is the stored JSON shape. The key is reconstructable from
// the Redis key, but round-tripping it keeps Get simple.
type redisEntry struct {
	Key        Key             `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

func redisKey(k Key) string {
	if k.Kind == KindCalendar {
		return fmt.Sprintf("artifact:%s:%s:%d", k.AccountID, k.Kind, k.Year)
	}
	return fmt.Sprintf("artifact:%s:%s:%s:%s", k.AccountID, k.Kind, k.Fingerprint, k.Variant)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return decodeRedisEntry(raw)
}

func (s *RedisStore) InsertOrGet(ctx context.Context, entry Entry) (*Entry, bool, error) {
	raw, err := encodeRedisEntry(entry)
	if err != nil {
		return nil, false, err
	}

	// SET NX is the atomic insert-or-get: exactly one concurrent writer
	// wins, losers read the winner's value back.
	created, err := s.client.SetNX(ctx, redisKey(entry.Key), raw, redisTTL(entry)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert cache entry: %w", err)
	}
	if created {
		return &entry, true, nil
	}

	existing, err := s.Get(ctx, entry.Key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// The winner's entry expired between SetNX and Get; ours is
			// as good as theirs was.
			if setErr := s.Replace(ctx, entry); setErr != nil {
				return nil, false, setErr
			}
			return &entry, true, nil
		}
		return nil, false, err
	}
	return existing, false, nil
}

func (s *RedisStore) Replace(ctx context.Context, entry Entry) error {
	raw, err := encodeRedisEntry(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(entry.Key), raw, redisTTL(entry)).Err(); err != nil {
		return fmt.Errorf("failed to replace cache entry: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID, kinds ...Kind) (int64, error) {
	patterns := make([]string, 0, 3)
	if len(kinds) == 0 {
		patterns = append(patterns, fmt.Sprintf("artifact:%s:*", accountID))
	} else {
		for _, k := range kinds {
			patterns = append(patterns, fmt.Sprintf("artifact:%s:%s:*", accountID, k))
		}
	}

	var deleted int64
	for _, pattern := range patterns {
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			n, err := s.client.Del(ctx, iter.Val()).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete cache entry: %w", err)
			}
			deleted += n
		}
		if err := iter.Err(); err != nil {
			return deleted, fmt.Errorf("failed to scan cache keys: %w", err)
		}
	}
	return deleted, nil
}

// DeleteExpired is a no-op: Redis evicts expiring entries natively.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func redisTTL(entry Entry) time.Duration {
	if entry.ExpiresAt == nil {
		return 0
	}
	// Keep the stored entry around slightly past its logical horizon so
	// a Stale lookup can still return the previous payload.
	return time.Until(*entry.ExpiresAt) + time.Hour
}

func encodeRedisEntry(entry Entry) ([]byte, error) {
	raw, err := json.Marshal(redisEntry(entry))
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return raw, nil
}

func decodeRedisEntry(raw []byte) (*Entry, error) {
	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	entry := Entry(re)
	return &entry, nil
}
