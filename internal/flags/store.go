package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "swapsupply"

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps boolean runtime flags in Redis: one JSON value per flag plus a
// set indexing the known keys.
type Store struct {
	client    redis.Cmdable
	namespace string
}

type Option func(*Store)

// WithNamespace prefixes every Redis key, so several deployments can share
// one database.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

func NewStore(client redis.Cmdable, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	s := &Store{client: client, namespace: defaultNamespace}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid flag key")
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	flag := &Flag{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	flag.describe()
	b, err := json.Marshal(flag)
	if err != nil {
		return nil, fmt.Errorf("marshal flag: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.valueKey(key), b, 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("upsert flag: %w", err)
	}

	return flag, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, s.valueKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag: %w", err)
	}

	var f Flag
	if err := json.Unmarshal([]byte(val), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flag: %w", err)
	}
	f.describe()
	return &f, nil
}

// IsEnabled reports the flag's value, or def when the flag was never set.
func (s *Store) IsEnabled(ctx context.Context, key string, def bool) (bool, error) {
	f, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return f.Value, nil
}

// List returns every flag ordered by key.
func (s *Store) List(ctx context.Context) ([]*Flag, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags index: %w", err)
	}

	valid := make([]string, 0, len(keys))
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			continue
		}
		valid = append(valid, k)
		redisKeys = append(redisKeys, s.valueKey(k))
	}
	if len(redisKeys) == 0 {
		return []*Flag{}, nil
	}

	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget flags: %w", err)
	}

	out := make([]*Flag, 0, len(vals))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// indexed but the value is gone, e.g. deleted by hand
			stale = append(stale, valid[i])
			continue
		}
		var f Flag
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			continue
		}
		f.describe()
		out = append(out, &f)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey(), stale...).Err()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.valueKey(key))
	pipe.SRem(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete flag: %w", err)
	}

	return nil
}

func (s *Store) indexKey() string {
	return s.namespace + ":flags:index"
}

func (s *Store) valueKey(key string) string {
	return s.namespace + ":flags:" + key
}
