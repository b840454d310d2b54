package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/metrics"
)

const keyPrefix = "alphawatch:window:"

// Options configures the Redis-backed window store.
type Options struct {
	Addr     string
	Password string
	DB       int

	// WindowCap bounds each token window's length.
	WindowCap int
	// Retention is how long an entry stays visible; it also sets the
	// window key's TTL, refreshed on every append.
	Retention time.Duration
	// OpTimeout bounds each Redis round trip. Callers treat a timeout
	// like any other store failure: fail-soft to an empty window.
	OpTimeout time.Duration
}

// RedisStore implements WindowStore on Redis lists. Each token window is one
// list of JSON-encoded records; RPUSH+LTRIM keeps the cap and EXPIRE keeps
// the retention, both refreshed atomically with the append in one pipeline.
type RedisStore struct {
	client  *redis.Client
	opts    Options
	metrics *metrics.Registry
	log     zerolog.Logger

	now func() time.Time
}

// NewRedisStore connects a window store to Redis. The connection is lazy;
// an unreachable backend surfaces as per-operation errors, which callers
// degrade to empty windows.
func NewRedisStore(opts Options, reg *metrics.Registry, logger zerolog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,

		MaxRetries:      2,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 200 * time.Millisecond,
	})

	return newRedisStore(client, opts, reg, logger)
}

func newRedisStore(client *redis.Client, opts Options, reg *metrics.Registry, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		opts:    opts,
		metrics: reg,
		log:     logger.With().Str("component", "store").Logger(),
		now:     time.Now,
	}
}

func (s *RedisStore) key(token string) string {
	return keyPrefix + token
}

// Append inserts rec into the token's window. The RPUSH, the LTRIM to the
// last WindowCap entries, and the EXPIRE refresh travel in one pipeline so
// concurrent readers never observe a window over cap or missing its TTL.
func (s *RedisStore) Append(ctx context.Context, token string, rec domain.TransactionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	start := s.now()
	key := s.key(token)

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-s.opts.WindowCap), -1)
	pipe.Expire(ctx, key, s.opts.Retention)
	_, err = pipe.Exec(ctx)

	s.metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.StoreOps.WithLabelValues("append", "error").Inc()
		s.log.Warn().Err(err).Str("token", token).Msg("window append failed")
		return fmt.Errorf("append window %s: %w", token, err)
	}

	s.metrics.StoreOps.WithLabelValues("append", "ok").Inc()
	return nil
}

// Read returns the token's window, oldest first, dropping entries older
// than the retention period. Individual undecodable entries are skipped so
// one corrupt element cannot blind the whole window.
func (s *RedisStore) Read(ctx context.Context, token string) ([]domain.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	start := s.now()
	raw, err := s.client.LRange(ctx, s.key(token), 0, -1).Result()
	s.metrics.StoreLatency.WithLabelValues("read").Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.StoreOps.WithLabelValues("read", "error").Inc()
		s.log.Warn().Err(err).Str("token", token).Msg("window read failed")
		return nil, fmt.Errorf("read window %s: %w", token, err)
	}

	// LRANGE on a missing key yields an empty list, not redis.Nil.
	if len(raw) == 0 {
		s.metrics.StoreOps.WithLabelValues("read", "miss").Inc()
		return nil, nil
	}

	cutoff := s.now().Add(-s.opts.Retention)
	records := make([]domain.TransactionRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.TransactionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("skipping undecodable window entry")
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		records = append(records, rec)
	}

	s.metrics.StoreOps.WithLabelValues("read", "ok").Inc()
	return records, nil
}

// Ping checks backend reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
