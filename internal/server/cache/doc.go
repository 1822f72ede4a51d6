// Package cache is the fail-open adapter over the Redis cache store.
//
// Every operation degrades to a miss or "not applied" result while the
// store is unreachable; callers treat that exactly like a not-found and fall
// through to the source of truth. A broken connection starts a capped
// exponential reconnect loop which gives up after a bounded number of
// attempts, leaving the server to run cache-less.
package cache
