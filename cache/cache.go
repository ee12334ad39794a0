// Package cache keeps counts and scalar results of compiled queries in Redis.
package cache

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/thisisjab/chquery/querier"
	"github.com/thisisjab/chquery/schema"
	"github.com/vmihailenco/msgpack/v5"
)

type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

const defaultPrefix = "chq:"

// Client is the part of the Redis API the cache needs. *redis.Client
// implements it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Executor decorates another querier.Executor. Count and Raw results are
// cached for the configured TTL; Select always reaches the wrapped executor.
// Redis failures are logged and the wrapped executor is used instead.
type Executor struct {
	next   querier.Executor
	client Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ querier.Executor = (*Executor)(nil)

func New(logger *slog.Logger, next querier.Executor, client Client, cfg Config) *Executor {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Executor{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

// Key returns the cache key of a statement. Parts are hashed with xxhash.
func (e *Executor) Key(kind string, parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	return e.prefix + kind + ":" + strconv.FormatUint(h.Sum64(), 16)
}

func (e *Executor) Select(ctx context.Context, query string, model *schema.Model) iter.Seq2[schema.Row, error] {
	return e.next.Select(ctx, query, model)
}

func (e *Executor) Count(ctx context.Context, model *schema.Model, conditions string) (uint64, error) {
	key := e.Key("count", model.TableName(), conditions)

	var n uint64
	if e.load(ctx, key, &n) {
		return n, nil
	}

	n, err := e.next.Count(ctx, model, conditions)
	if err != nil {
		return 0, err
	}

	e.store(ctx, key, n)
	return n, nil
}

func (e *Executor) Raw(ctx context.Context, query string) (any, error) {
	key := e.Key("raw", query)

	var v any
	if e.load(ctx, key, &v) {
		return v, nil
	}

	v, err := e.next.Raw(ctx, query)
	if err != nil {
		return nil, err
	}

	e.store(ctx, key, v)
	return v, nil
}

// Ping checks the wrapped executor when it can be pinged. The cache itself
// is optional and never fails a health check.
func (e *Executor) Ping(ctx context.Context) error {
	if p, ok := e.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// load reports whether key was found and decoded into dst.
func (e *Executor) load(ctx context.Context, key string, dst any) bool {
	raw, err := e.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		e.logger.Warn("failed to read cache", "key", key, "error", err)
		return false
	}

	if err := msgpack.Unmarshal(raw, dst); err != nil {
		e.logger.Warn("failed to decode cached value", "key", key, "error", err)
		return false
	}

	e.logger.Debug("cache hit", "key", key)
	return true
}

func (e *Executor) store(ctx context.Context, key string, v any) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		e.logger.Warn("failed to encode value for cache", "key", key, "error", err)
		return
	}

	if err := e.client.Set(ctx, key, raw, e.ttl).Err(); err != nil {
		e.logger.Warn("failed to write cache", "key", key, "error", err)
	}
}
