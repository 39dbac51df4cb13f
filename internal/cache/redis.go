package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "domhaul:cache"

// RedisStore keeps one JSON value per domain. Keys carry an expiry equal to
// the configured TTL so Redis reclaims stale entries on its own.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	expiry time.Duration
}

type RedisOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithRedisExpiry sets the key expiry. Zero keeps keys forever.
func WithRedisExpiry(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.expiry = d }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: defaultRedisPrefix, expiry: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedis parses a redis:// URL and returns a store over a new client. The
// client connects lazily on first use.
func OpenRedis(url string, opts ...RedisOption) (*RedisStore, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(ropts), opts...), nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) key(domain string) string { return s.prefix + ":" + domain }

func (s *RedisStore) Get(ctx context.Context, domain string) (Entry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(domain)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *RedisStore) GetSince(ctx context.Context, domains []string, since time.Time) (map[string]Entry, error) {
	if len(domains) == 0 {
		return map[string]Entry{}, nil
	}
	keys := make([]string, len(domains))
	for i, d := range domains {
		keys[i] = s.key(d)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make(map[string]Entry, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		e, err := decodeEntry(raw)
		if err != nil || !e.CheckedAt.After(since) {
			continue
		}
		out[domains[i]] = e
	}
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(e.Domain), payload, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func decodeEntry(raw string) (Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}

var _ Store = (*RedisStore)(nil)
