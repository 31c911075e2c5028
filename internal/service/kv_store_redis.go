package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var incrExistingScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCR', KEYS[1])
end
return -1
`)

var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisKVStore is the shared backend. Every call runs under opTimeout and is
// traced.
type RedisKVStore struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

func NewRedisKVStore(client redis.UniversalClient, prefix string, opTimeout time.Duration) *RedisKVStore {
	if prefix == "" {
		prefix = "tutorlink"
	}
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &RedisKVStore{client: client, prefix: prefix, opTimeout: opTimeout}
}

func (s *RedisKVStore) Shared() bool { return true }

func (s *RedisKVStore) Ping(ctx context.Context) error {
	ctx, done := s.begin(ctx, "ping")
	err := s.client.Ping(ctx).Err()
	done(err)
	return err
}

func (s *RedisKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, done := s.begin(ctx, "set", attribute.String("kv.keyspace", keyspace(key)))
	err := s.client.Set(ctx, s.key(key), value, ttl).Err()
	done(err)
	return err
}

func (s *RedisKVStore) SetMulti(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	if ttl <= 0 || len(entries) == 0 {
		return nil
	}
	ctx, done := s.begin(ctx, "set_multi", attribute.Int("kv.key_count", len(entries)))
	pipe := s.client.TxPipeline()
	for key, value := range entries {
		pipe.Set(ctx, s.key(key), value, ttl)
	}
	_, err := pipe.Exec(ctx)
	done(err)
	return err
}

func (s *RedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, done := s.begin(ctx, "get", attribute.String("kv.keyspace", keyspace(key)))
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		done(nil)
		return "", false, nil
	}
	done(err)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisKVStore) GetDel(ctx context.Context, key string) (string, bool, error) {
	ctx, done := s.begin(ctx, "getdel", attribute.String("kv.keyspace", keyspace(key)))
	v, err := s.client.GetDel(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		done(nil)
		return "", false, nil
	}
	done(err)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, done := s.begin(ctx, "del", attribute.Int("kv.key_count", len(keys)))
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.key(k))
	}
	err := s.client.Del(ctx, full...).Err()
	done(err)
	return err
}

func (s *RedisKVStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ctx, done := s.begin(ctx, "pttl", attribute.String("kv.keyspace", keyspace(key)))
	d, err := s.client.PTTL(ctx, s.key(key)).Result()
	done(err)
	if err != nil {
		return 0, false, err
	}
	// -2: missing key, -1: key without expiry.
	if d == -2 {
		return 0, false, nil
	}
	if d < 0 {
		return 0, true, nil
	}
	return d, true, nil
}

func (s *RedisKVStore) IncrExisting(ctx context.Context, key string) (int64, bool, error) {
	ctx, done := s.begin(ctx, "incr_existing", attribute.String("kv.keyspace", keyspace(key)))
	n, err := incrExistingScript.Run(ctx, s.client, []string{s.key(key)}).Int64()
	done(err)
	if err != nil {
		return 0, false, err
	}
	if n < 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func (s *RedisKVStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Second
	}
	ctx, done := s.begin(ctx, "incr_window", attribute.String("kv.keyspace", keyspace(key)))
	vals, err := incrWindowScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Int64Slice()
	done(err)
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("incr window: unexpected reply length %d", len(vals))
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

func (s *RedisKVStore) key(k string) string {
	return s.prefix + ":" + k
}

// keyspace strips the identifying last segment so phone numbers and token
// ids stay out of span attributes.
func keyspace(k string) string {
	if i := strings.LastIndexByte(k, ':'); i > 0 {
		return k[:i]
	}
	return k
}

// begin applies the per-operation timeout and opens a span; the returned
// func records the outcome and releases both.
func (s *RedisKVStore) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	attrs = append(attrs, attribute.String("kv.operation", op), attribute.String("kv.backend", "redis"))
	ctx, span := otel.Tracer("kvstore").Start(ctx, "kv."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	return ctx, func(err error) {
		span.SetAttributes(attribute.Int64("kv.duration_ms", time.Since(start).Milliseconds()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		cancel()
	}
}
