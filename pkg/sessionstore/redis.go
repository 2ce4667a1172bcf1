package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	DefaultKeyPrefix = "wifisim:"
	keySession       = "session:"
	keyIndex         = "sessions"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Addr is host:port of the Redis server.
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key. Empty uses DefaultKeyPrefix.
	KeyPrefix string

	// TTL expires idle records. Zero keeps them until deleted.
	TTL time.Duration
}

// RedisStore keeps records as Redis hashes plus an index set.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis. It does not ping; use Ping to check.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) sessionKey(deviceID string) string {
	return s.prefix + keySession + deviceID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + keyIndex
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	key := s.sessionKey(rec.DeviceID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, rec)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	pipe.SAdd(ctx, s.indexKey(), rec.DeviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, deviceID string) (*Record, error) {
	res := s.client.HGetAll(ctx, s.sessionKey(deviceID))
	m, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}

	var rec Record
	if err := res.Scan(&rec); err != nil {
		return nil, fmt.Errorf("session record %s: %w", deviceID, err)
	}
	return &rec, nil
}

// touchScript updates counters only while the hash exists, so an expiry
// racing a frame cannot leave a partial record behind.
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HINCRBY", KEYS[1], "frames", 1)
redis.call("HSET", KEYS[1], "last_seq", ARGV[1], "last_seen", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

func (s *RedisStore) Touch(ctx context.Context, deviceID string, seq uint64, at time.Time) error {
	key := s.sessionKey(deviceID)

	n, err := touchScript.Run(ctx, s.client, []string{key},
		int64(seq), at.UnixMilli(), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, deviceID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(deviceID))
	pipe.SRem(ctx, s.indexKey(), deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List returns every indexed record. Index entries whose hash expired are
// pruned as a side effect.
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

var _ Store = (*RedisStore)(nil)
