package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestCache_PutGet(t *testing.T) {
	c := New[[]string](Config{})

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", []string{"a"})
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, v)
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newClock()
	c := New[int](Config{TTL: 60 * time.Second, Now: clock.Now})

	c.Put("k", 1)
	clock.Advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok, "entry should survive inside the window")

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire at the TTL")
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_NoTTLNeverExpires(t *testing.T) {
	clock := newClock()
	c := New[int](Config{Now: clock.Now})

	c.Put("k", 1)
	clock.Advance(365 * 24 * time.Hour)
	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[int](Config{MaxEntries: 2})

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a") // a becomes most recent
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string](Config{})
	var loads int

	load := func(context.Context) (string, error) {
		loads++
		return "value", nil
	}

	v, hit, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "value", v)

	v, hit, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, loads)
}

func TestCache_GetOrLoadErrorNotCached(t *testing.T) {
	c := New[string](Config{})
	var loads int

	_, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		loads++
		return "", errors.New("upstream down")
	})
	require.Error(t, err)

	v, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		loads++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, loads)
}

func TestCache_GetOrLoadSharesConcurrentLoads(t *testing.T) {
	c := New[int](Config{})
	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
				loads.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, loads.Load(), int32(8))
	assert.GreaterOrEqual(t, loads.Load(), int32(1))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestCache_PreSeedAndPurge(t *testing.T) {
	c := New[string](Config{})
	c.Put("k", "seeded")

	v, hit, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		t.Fatal("loader must not run for a seeded key")
		return "", nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "seeded", v)

	c.Purge()
	assert.Equal(t, 0, c.Stats().Entries)

	v, hit, err = c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", v)
}

func TestCache_GetOrLoadCancelledCallerDoesNotFailOthers(t *testing.T) {
	c := New[string](Config{})
	started := make(chan struct{})
	release := make(chan struct{})

	var loadErr atomic.Value
	load := func(ctx context.Context) (string, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			loadErr.Store(ctx.Err())
			return "", ctx.Err()
		}
		return "shared", nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrLoad(firstCtx, "k", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) {
			return "", errors.New("second loader must join the first")
		})
		second <- result{v, err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	// Let the second caller join the in-flight load before it completes.
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.v)
	assert.Nil(t, loadErr.Load(), "shared load must not see the first caller's cancellation")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "shared", v)
}

func TestCache_GetOrLoadCallerContextDone(t *testing.T) {
	c := New[string](Config{})
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := c.GetOrLoad(ctx, "k", func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_GetOrLoadTimeout(t *testing.T) {
	c := New[string](Config{LoadTimeout: 20 * time.Millisecond})

	_, _, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Stats(t *testing.T) {
	c := New[int](Config{MaxEntries: 10})
	c.Put("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 10, stats.MaxEntries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
}
