package seen

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/news"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces seen keys in a shared Redis.
const DefaultRedisPrefix = "newsdigest:seen:"

// RedisStore keeps one Redis key per seen item. Keys never expire.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(itemKey string) string {
	return s.prefix + itemKey
}

func (s *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, &Error{Op: OpHas, Key: key, Err: err}
	}
	return n == 1, nil
}

func (s *RedisStore) Record(ctx context.Context, key string) error {
	// SETNX keeps the first seen time.
	err := s.client.SetNX(ctx, s.key(key), s.now().UTC().Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return &Error{Op: OpRecord, Key: key, Err: err}
	}
	return nil
}

// Count returns the number of recorded keys.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Recent returns the most recently recorded keys, newest first.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]news.SeenRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	keys, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &Error{Op: OpList, Err: err}
	}

	out := make([]news.SeenRecord, 0, len(keys))
	for i, k := range keys {
		rec := news.SeenRecord{Key: strings.TrimPrefix(k, s.prefix)}
		if v, ok := values[i].(string); ok {
			rec.SeenAt, _ = time.Parse(time.RFC3339Nano, v)
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SeenAt.After(out[j].SeenAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// scan lists every key under the prefix. SCAN may return a key more than
// once, so keys are deduplicated.
func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	const scanBatchSize = 100
	var (
		cursor uint64
		keys   []string
	)
	uniq := make(map[string]struct{})
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, &Error{Op: OpList, Err: err}
		}
		for _, k := range batch {
			if _, dup := uniq[k]; dup {
				continue
			}
			uniq[k] = struct{}{}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
