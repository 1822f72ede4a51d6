package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Leases live in one hash per record under "lock:{scope}:{resourceId}".
// A sorted set indexes lease keys by expiry (ms since epoch) so the sweeper
// and listings never need KEYS or SCAN.
const (
	keyPrefix = "lock:"
	indexKey  = "locks:expiry"
)

// backstopFactor multiplies the lease TTL for the hash's Redis TTL, so a
// lease that is never reaped still disappears eventually.
const backstopFactor = 2

// KEYS: lease, index. ARGV: owner, name, now, ttl, scope, resource.
// Returns {outcome, owner, name, acquired_at, expires_at}; outcome is
// 0 denied, 1 granted, 2 renewed.
var acquireScript = redis.NewScript(2, `
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local owner = redis.call('HGET', KEYS[1], 'owner')
if owner then
  local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
  if exp <= now then
    owner = false
  end
end
if owner and owner ~= ARGV[1] then
  return {0, owner, redis.call('HGET', KEYS[1], 'name'),
    tonumber(redis.call('HGET', KEYS[1], 'acquired_at')),
    tonumber(redis.call('HGET', KEYS[1], 'expires_at'))}
end
local outcome = 1
local acquired = now
if owner then
  outcome = 2
  acquired = tonumber(redis.call('HGET', KEYS[1], 'acquired_at'))
end
local exp = now + ttl
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'name', ARGV[2], 'acquired_at', acquired,
  'expires_at', exp, 'scope', ARGV[5], 'resource', ARGV[6])
redis.call('PEXPIRE', KEYS[1], ttl * `+fmt.Sprint(backstopFactor)+`)
redis.call('ZADD', KEYS[2], exp, KEYS[1])
return {outcome, ARGV[1], ARGV[2], acquired, exp}
`)

// KEYS: lease, index. ARGV: owner, now, ttl.
var refreshScript = redis.NewScript(2, `
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then
  return {0}
end
local exp = tonumber(ARGV[2]) + tonumber(ARGV[3])
redis.call('HSET', KEYS[1], 'expires_at', exp)
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[3]) * `+fmt.Sprint(backstopFactor)+`)
redis.call('ZADD', KEYS[2], exp, KEYS[1])
return {1, redis.call('HGET', KEYS[1], 'name'), tonumber(redis.call('HGET', KEYS[1], 'acquired_at')), exp}
`)

// KEYS: lease, index. ARGV: owner.
var releaseScript = redis.NewScript(2, `
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], KEYS[1])
return 1
`)

// KEYS: index. ARGV: now, limit. Returns flattened
// {scope, resource, owner, name, acquired_at, expires_at} tuples.
var reapScript = redis.NewScript(1, `
local now = tonumber(ARGV[1])
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for _, key in ipairs(due) do
  redis.call('ZREM', KEYS[1], key)
  local exp = tonumber(redis.call('HGET', key, 'expires_at'))
  if exp and exp <= now then
    local f = redis.call('HMGET', key, 'scope', 'resource', 'owner', 'name', 'acquired_at')
    redis.call('DEL', key)
    table.insert(out, f[1])
    table.insert(out, f[2])
    table.insert(out, f[3])
    table.insert(out, f[4])
    table.insert(out, tonumber(f[5]))
    table.insert(out, exp)
  elseif exp then
    redis.call('ZADD', KEYS[1], exp, key)
  end
end
return out
`)

// RedisStore keeps leases in Redis; acquire, refresh and release run as Lua
// scripts so each is atomic on the server.
type RedisStore struct {
	pool *redis.Pool
}

func NewRedisStore(pool *redis.Pool) *RedisStore {
	return &RedisStore{pool: pool}
}

// NewPool dials addr for the lease store. Unlike the cache it has no
// fail-open mode: store errors reach the caller.
func NewPool(addr string, timeout time.Duration) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     16,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(timeout),
				redis.DialReadTimeout(timeout),
				redis.DialWriteTimeout(timeout),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func leaseKey(scope, resourceID string) string {
	return keyPrefix + scope + ":" + resourceID
}

func (s *RedisStore) Acquire(ctx context.Context, want Lease, ttl time.Duration) (Lease, Outcome, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return Lease{}, Denied, fmt.Errorf("lease store: %w", err)
	}
	defer conn.Close()

	reply, err := redis.Values(acquireScript.Do(conn,
		leaseKey(want.Scope, want.ResourceID), indexKey,
		want.OwnerID, want.OwnerName, toMillis(want.AcquiredAt), ttl.Milliseconds(),
		want.Scope, want.ResourceID,
	))
	if err != nil {
		return Lease{}, Denied, fmt.Errorf("lease acquire: %w", err)
	}

	var (
		outcome             int
		owner, name         string
		acquired, expiresAt int64
	)
	if _, err := redis.Scan(reply, &outcome, &owner, &name, &acquired, &expiresAt); err != nil {
		return Lease{}, Denied, fmt.Errorf("lease acquire reply: %w", err)
	}
	return Lease{
		Scope:      want.Scope,
		ResourceID: want.ResourceID,
		OwnerID:    owner,
		OwnerName:  name,
		AcquiredAt: fromMillis(acquired),
		ExpiresAt:  fromMillis(expiresAt),
	}, Outcome(outcome), nil
}

func (s *RedisStore) Refresh(ctx context.Context, scope, resourceID, ownerID string, now time.Time, ttl time.Duration) (Lease, bool, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease store: %w", err)
	}
	defer conn.Close()

	reply, err := redis.Values(refreshScript.Do(conn,
		leaseKey(scope, resourceID), indexKey, ownerID, toMillis(now), ttl.Milliseconds()))
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease refresh: %w", err)
	}
	var ok int
	if _, err := redis.Scan(reply, &ok); err != nil {
		return Lease{}, false, fmt.Errorf("lease refresh reply: %w", err)
	}
	if ok == 0 {
		return Lease{}, false, nil
	}

	var (
		name                string
		acquired, expiresAt int64
	)
	if _, err := redis.Scan(reply[1:], &name, &acquired, &expiresAt); err != nil {
		return Lease{}, false, fmt.Errorf("lease refresh reply: %w", err)
	}
	return Lease{
		Scope:      scope,
		ResourceID: resourceID,
		OwnerID:    ownerID,
		OwnerName:  name,
		AcquiredAt: fromMillis(acquired),
		ExpiresAt:  fromMillis(expiresAt),
	}, true, nil
}

func (s *RedisStore) Release(ctx context.Context, scope, resourceID, ownerID string) (bool, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return false, fmt.Errorf("lease store: %w", err)
	}
	defer conn.Close()

	n, err := redis.Int(releaseScript.Do(conn, leaseKey(scope, resourceID), indexKey, ownerID))
	if err != nil {
		return false, fmt.Errorf("lease release: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, scope, resourceID string, now time.Time) (Lease, bool, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease store: %w", err)
	}
	defer conn.Close()

	l, ok, err := readLease(conn, leaseKey(scope, resourceID))
	if err != nil || !ok {
		return Lease{}, false, err
	}
	if !l.ExpiresAt.After(now) {
		return Lease{}, false, nil
	}
	return l, true, nil
}

func (s *RedisStore) List(ctx context.Context, scope string, now time.Time) ([]Lease, error) {
	return s.live(ctx, now, func(l Lease) bool { return l.Scope == scope })
}

func (s *RedisStore) ListByOwner(ctx context.Context, ownerID string, now time.Time) ([]Lease, error) {
	return s.live(ctx, now, func(l Lease) bool { return l.OwnerID == ownerID })
}

func (s *RedisStore) Reap(ctx context.Context, now time.Time, limit int) ([]Lease, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("lease store: %w", err)
	}
	defer conn.Close()

	if limit <= 0 {
		limit = 100
	}
	reply, err := redis.Values(reapScript.Do(conn, indexKey, toMillis(now), limit))
	if err != nil {
		return nil, fmt.Errorf("lease reap: %w", err)
	}

	var out []Lease
	for len(reply) >= 6 {
		var (
			l                   Lease
			acquired, expiresAt int64
		)
		reply, err = redis.Scan(reply, &l.Scope, &l.ResourceID, &l.OwnerID, &l.OwnerName, &acquired, &expiresAt)
		if err != nil {
			return out, fmt.Errorf("lease reap reply: %w", err)
		}
		l.AcquiredAt = fromMillis(acquired)
		l.ExpiresAt = fromMillis(expiresAt)
		out = append(out, l)
	}
	return out, nil
}

func (s *RedisStore) live(ctx context.Context, now time.Time, keep func(Lease) bool) ([]Lease, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("lease store: %w", err)
	}
	defer conn.Close()

	keys, err := redis.Strings(conn.Do("ZRANGEBYSCORE", indexKey, "("+fmt.Sprint(toMillis(now)), "+inf"))
	if err != nil {
		return nil, fmt.Errorf("lease list: %w", err)
	}

	var out []Lease
	for _, key := range keys {
		l, ok, err := readLease(conn, key)
		if err != nil {
			return nil, err
		}
		if ok && l.ExpiresAt.After(now) && keep(l) {
			out = append(out, l)
		}
	}
	sortLeases(out)
	return out, nil
}

func readLease(conn redis.Conn, key string) (Lease, bool, error) {
	fields, err := redis.StringMap(conn.Do("HGETALL", key))
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease read: %w", err)
	}
	if len(fields) == 0 {
		return Lease{}, false, nil
	}
	l := Lease{
		Scope:      fields["scope"],
		ResourceID: fields["resource"],
		OwnerID:    fields["owner"],
		OwnerName:  fields["name"],
	}
	var acquired, expiresAt int64
	if _, err := fmt.Sscan(fields["acquired_at"], &acquired); err != nil {
		return Lease{}, false, fmt.Errorf("lease read %s: %w", key, err)
	}
	if _, err := fmt.Sscan(fields["expires_at"], &expiresAt); err != nil {
		return Lease{}, false, fmt.Errorf("lease read %s: %w", key, err)
	}
	l.AcquiredAt = fromMillis(acquired)
	l.ExpiresAt = fromMillis(expiresAt)
	return l, true, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
