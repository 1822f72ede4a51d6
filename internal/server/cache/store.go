package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gomodule/redigo/redis"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
)

// ScanBatch bounds both the SCAN COUNT hint and the number of keys passed to
// a single DEL call.
const ScanBatch = 100

// Config holds the adapter's connection and safety settings.
type Config struct {
	Addr          string
	MaxValueBytes int
	DialTimeout   time.Duration
	// Reconnect policy: delays grow from ReconnectBase up to ReconnectMax and
	// attempts stop after ReconnectRetries.
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
	ReconnectRetries uint
}

// Store is the cache adapter. It is safe for concurrent use.
type Store struct {
	cfg     Config
	pool    *redis.Pool
	logger  logging.Logger
	metrics *metrics.Metrics

	ready        atomic.Bool
	reconnecting atomic.Bool

	mu       sync.Mutex
	baseCtx  context.Context
	watchers []func(bool)
}

// dial is a seam for tests.
var dial = func(cfg Config) (redis.Conn, error) {
	return redis.Dial("tcp", cfg.Addr,
		redis.DialConnectTimeout(cfg.DialTimeout),
		redis.DialReadTimeout(cfg.DialTimeout),
		redis.DialWriteTimeout(cfg.DialTimeout),
	)
}

// NewStore builds a Store. No connection is attempted until Start.
func NewStore(cfg Config, logger logging.Logger, m *metrics.Metrics) *Store {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = cfg.ReconnectBase
	}
	if cfg.ReconnectRetries == 0 {
		cfg.ReconnectRetries = 10
	}

	s := &Store{
		cfg:     cfg,
		logger:  logger.With("module", "cache"),
		metrics: m,
		baseCtx: context.Background(),
	}
	s.pool = &redis.Pool{
		MaxIdle:     8,
		IdleTimeout: 4 * time.Minute,
		Dial:        func() (redis.Conn, error) { return dial(s.cfg) },
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return s
}

// Start attempts the first connection. It never fails: when Redis is down
// the reconnect loop is started in the background and Start returns.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if err := s.ping(ctx); err != nil {
		s.logger.Warn(ctx, "cache unavailable, starting reconnect", "addr", s.cfg.Addr, "error", err)
		s.triggerReconnect()
		return
	}
	s.setReady(true)
	s.logger.Info(ctx, "cache connected", "addr", s.cfg.Addr)
}

// Close releases pooled connections.
func (s *Store) Close() error {
	s.setReady(false)
	return s.pool.Close()
}

// IsReady reports whether the store is currently believed to be connected.
func (s *Store) IsReady() bool {
	return s.ready.Load()
}

// OnReadyChange registers fn to be called whenever readiness flips.
func (s *Store) OnReadyChange(fn func(ready bool)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// Get returns the value stored at key. Misses, disconnections and store
// errors all report ok=false.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	conn, ok := s.conn(ctx)
	if !ok {
		s.metrics.CacheOp("get", "skipped")
		return nil, false
	}
	defer conn.Close()

	b, err := redis.Bytes(conn.Do("GET", key))
	switch {
	case errors.Is(err, redis.ErrNil):
		s.metrics.CacheOp("get", "miss")
		return nil, false
	case err != nil:
		s.fail(ctx, "get", key, err)
		return nil, false
	}
	s.metrics.CacheOp("get", "hit")
	return b, true
}

// Set stores value under key for ttl. Values above MaxValueBytes are
// rejected. It reports whether the value was stored.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if s.cfg.MaxValueBytes > 0 && len(value) > s.cfg.MaxValueBytes {
		s.logger.Warn(ctx, "cache value rejected: too large", "key", key, "size", len(value), "limit", s.cfg.MaxValueBytes)
		s.metrics.CacheOp("set", "rejected")
		return false
	}

	conn, ok := s.conn(ctx)
	if !ok {
		s.metrics.CacheOp("set", "skipped")
		return false
	}
	defer conn.Close()

	var err error
	if ms := ttl.Milliseconds(); ms > 0 {
		_, err = conn.Do("SET", key, value, "PX", ms)
	} else {
		_, err = conn.Do("SET", key, value)
	}
	if err != nil {
		s.fail(ctx, "set", key, err)
		return false
	}
	s.metrics.CacheOp("set", "ok")
	return true
}

// Delete removes key. It reports whether a key was actually removed.
func (s *Store) Delete(ctx context.Context, key string) bool {
	conn, ok := s.conn(ctx)
	if !ok {
		s.metrics.CacheOp("delete", "skipped")
		return false
	}
	defer conn.Close()

	n, err := redis.Int(conn.Do("DEL", key))
	if err != nil {
		s.fail(ctx, "delete", key, err)
		return false
	}
	s.metrics.CacheOp("delete", "ok")
	return n > 0
}

// ScanDelete removes every key matching the glob pattern. Keys are walked
// with SCAN and deleted in batches of at most ScanBatch, so no single call
// blocks the store for long. It returns the number of removed keys and
// whether the whole walk completed.
func (s *Store) ScanDelete(ctx context.Context, pattern string) (int, bool) {
	conn, ok := s.conn(ctx)
	if !ok {
		s.metrics.CacheOp("scan_delete", "skipped")
		return 0, false
	}
	defer conn.Close()

	deleted := 0
	cursor := 0
	for {
		if ctx.Err() != nil {
			return deleted, false
		}

		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", pattern, "COUNT", ScanBatch))
		if err != nil {
			s.fail(ctx, "scan_delete", pattern, err)
			return deleted, false
		}
		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			s.fail(ctx, "scan_delete", pattern, err)
			return deleted, false
		}

		for start := 0; start < len(keys); start += ScanBatch {
			end := min(start+ScanBatch, len(keys))
			n, err := redis.Int(conn.Do("DEL", redis.Args{}.AddFlat(keys[start:end])...))
			if err != nil {
				s.fail(ctx, "scan_delete", pattern, err)
				return deleted, false
			}
			deleted += n
		}

		if cursor == 0 {
			break
		}
	}
	s.metrics.CacheOp("scan_delete", "ok")
	return deleted, true
}

func (s *Store) conn(ctx context.Context) (redis.Conn, bool) {
	if !s.ready.Load() {
		return nil, false
	}
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		s.fail(ctx, "borrow", "", err)
		return nil, false
	}
	return c, true
}

func (s *Store) ping(ctx context.Context) error {
	c, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = c.Do("PING")
	return err
}

// fail logs a store error and, for connection-level failures, drops the
// store out of the ready state and starts reconnecting.
func (s *Store) fail(ctx context.Context, op, key string, err error) {
	s.metrics.CacheOp(op, "error")
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		s.logger.Warn(ctx, "cache command failed", "op", op, "key", key, "error", err)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	s.logger.Warn(ctx, "cache connection lost", "op", op, "key", key, "error", err)
	if s.ready.CompareAndSwap(true, false) {
		s.notify(false)
	}
	s.triggerReconnect()
}

func (s *Store) triggerReconnect() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	go func() {
		defer s.reconnecting.Store(false)
		if err := s.reconnect(ctx); err != nil {
			s.logger.Error(ctx, "cache reconnect abandoned, running without cache", "error", err)
			return
		}
		s.setReady(true)
		s.logger.Info(ctx, "cache reconnected", "addr", s.cfg.Addr)
	}()
}

func (s *Store) reconnect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ReconnectBase
	b.MaxInterval = s.cfg.ReconnectMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := s.ping(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.cfg.ReconnectRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug(ctx, "cache reconnect attempt failed", "error", err, "next", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("reconnect %s: %w", s.cfg.Addr, err)
	}
	return nil
}

func (s *Store) setReady(ready bool) {
	if s.ready.Swap(ready) != ready {
		s.notify(ready)
	}
}

func (s *Store) notify(ready bool) {
	s.metrics.CacheReady(ready)
	s.mu.Lock()
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(ready)
	}
}
