package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/logging"
)

func newTestStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.Addr = mr.Addr()
	s := NewStore(cfg, logging.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	require.True(t, s.IsReady())
	return s, mr
}

func TestStore_GetSetDelete(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	_, ok := s.Get(ctx, "sales:rows")
	assert.False(t, ok, "empty store is a miss")

	require.True(t, s.Set(ctx, "sales:rows", []byte(`[1,2]`), time.Minute))
	got, ok := s.Get(ctx, "sales:rows")
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(got))
	assert.Equal(t, time.Minute, mr.TTL("sales:rows"))

	assert.True(t, s.Delete(ctx, "sales:rows"))
	assert.False(t, s.Delete(ctx, "sales:rows"), "second delete removes nothing")
	assert.False(t, mr.Exists("sales:rows"))
}

func TestStore_SetWithoutTTL(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	require.True(t, s.Set(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("k"))
}

func TestStore_TTLExpiry(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	require.True(t, s.Set(ctx, "board:b1:summary", []byte("x"), 2*time.Second))
	mr.FastForward(3 * time.Second)

	_, ok := s.Get(ctx, "board:b1:summary")
	assert.False(t, ok)
}

func TestStore_RejectsOversizedValues(t *testing.T) {
	s, mr := newTestStore(t, Config{MaxValueBytes: 8})
	ctx := context.Background()

	assert.False(t, s.Set(ctx, "big", []byte("0123456789"), time.Minute))
	assert.False(t, mr.Exists("big"))
	assert.True(t, s.Set(ctx, "small", []byte("01234567"), time.Minute))
}

func TestStore_ScanDeleteInBatches(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		require.NoError(t, mr.Set(fmt.Sprintf("board:b1:card:c%d", i), "x"))
	}
	require.NoError(t, mr.Set("board:b2:card:c1", "keep"))
	require.NoError(t, mr.Set("sales:rows", "keep"))

	n, ok := s.ScanDelete(ctx, "board:b1:card:*")
	require.True(t, ok)
	assert.Equal(t, 250, n)
	assert.ElementsMatch(t, []string{"board:b2:card:c1", "sales:rows"}, mr.Keys())

	n, ok = s.ScanDelete(ctx, "nothing:*")
	assert.True(t, ok)
	assert.Zero(t, n)
}

func TestStore_UnreachableIsFailOpen(t *testing.T) {
	s := NewStore(Config{
		Addr:             "127.0.0.1:1",
		DialTimeout:      50 * time.Millisecond,
		ReconnectBase:    time.Millisecond,
		ReconnectMax:     2 * time.Millisecond,
		ReconnectRetries: 2,
	}, logging.Nop(), nil)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	assert.NotPanics(t, func() { s.Start(ctx) })
	assert.False(t, s.IsReady())

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, s.Set(ctx, "k", []byte("v"), time.Second))
	assert.False(t, s.Delete(ctx, "k"))
	n, ok := s.ScanDelete(ctx, "k*")
	assert.False(t, ok)
	assert.Zero(t, n)

	assert.Eventually(t, func() bool { return !s.reconnecting.Load() }, 2*time.Second, 5*time.Millisecond,
		"reconnect loop must give up after the retry budget")
	assert.False(t, s.IsReady())
}

func TestStore_ReconnectsAfterOutage(t *testing.T) {
	s, mr := newTestStore(t, Config{
		DialTimeout:      100 * time.Millisecond,
		ReconnectBase:    5 * time.Millisecond,
		ReconnectMax:     20 * time.Millisecond,
		ReconnectRetries: 200,
	})
	ctx := context.Background()

	transitions := make(chan bool, 4)
	s.OnReadyChange(func(ready bool) { transitions <- ready })

	require.True(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	mr.Close()

	_, ok := s.Get(ctx, "k")
	assert.False(t, ok, "a broken connection reads as a miss")
	assert.False(t, s.IsReady())
	assert.False(t, <-transitions)

	require.NoError(t, mr.Restart())
	require.Eventually(t, s.IsReady, 3*time.Second, 5*time.Millisecond)
	assert.True(t, <-transitions)

	assert.True(t, s.Set(ctx, "k", []byte("again"), time.Minute))
}

func TestStore_CommandErrorKeepsConnection(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	ctx := context.Background()

	mr.HSet("hash", "f", "v")
	_, ok := s.Get(ctx, "hash")
	assert.False(t, ok, "WRONGTYPE reads as a miss")
	assert.True(t, s.IsReady(), "server-side errors do not mark the store down")
}

func TestRemember(t *testing.T) {
	s, _ := newTestStore(t, Config{})
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"r1", "r2"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Remember(ctx, s, "sales:rows", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "r2"}, v)
	}
	assert.Equal(t, 1, calls, "later reads are served from cache")
}

func TestRemember_LoadErrorNotCached(t *testing.T) {
	s, mr := newTestStore(t, Config{})

	_, err := Remember(context.Background(), s, "sales:rows", time.Minute, func(context.Context) (int, error) {
		return 0, fmt.Errorf("db down")
	})
	assert.EqualError(t, err, "db down")
	assert.False(t, mr.Exists("sales:rows"))
}

func TestRemember_WithoutCache(t *testing.T) {
	s := NewStore(Config{Addr: "127.0.0.1:1", ReconnectRetries: 1, ReconnectBase: time.Millisecond}, logging.Nop(), nil)
	t.Cleanup(func() { _ = s.Close() })

	v, err := Remember(context.Background(), s, "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestGetJSON_CorruptEntryIsMiss(t *testing.T) {
	s, mr := newTestStore(t, Config{})
	require.NoError(t, mr.Set("k", "{not json"))

	_, ok := GetJSON[map[string]any](context.Background(), s, "k")
	assert.False(t, ok)
	assert.True(t, mr.Exists("k"), "corrupt entries are left to expire")
}
