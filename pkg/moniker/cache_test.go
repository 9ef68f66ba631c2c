package moniker

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHitAndExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := newResolutionCache(60 * time.Second)
	c.now = func() time.Time { return now }

	rs := &ResolvedSource{Path: "a/b", SourceType: "oracle"}
	c.put("moniker://a/b", rs)

	got, ok := c.get("moniker://a/b")
	require.True(t, ok)
	assert.Same(t, rs, got)

	// One tick short of the TTL is still fresh.
	now = now.Add(60*time.Second - time.Nanosecond)
	_, ok = c.get("moniker://a/b")
	assert.True(t, ok)

	// At the TTL boundary the entry is stale.
	now = now.Add(time.Nanosecond)
	_, ok = c.get("moniker://a/b")
	assert.False(t, ok)
}

func TestCacheDisabled(t *testing.T) {
	t.Parallel()

	c := newResolutionCache(0)
	c.put("moniker://a/b", &ResolvedSource{Path: "a/b"})

	_, ok := c.get("moniker://a/b")
	assert.False(t, ok)
	assert.Zero(t, c.size())
}

func TestCacheInvalidateAndClear(t *testing.T) {
	t.Parallel()

	c := newResolutionCache(time.Minute)
	c.put("moniker://a", &ResolvedSource{Path: "a"})
	c.put("moniker://b", &ResolvedSource{Path: "b"})
	require.Equal(t, 2, c.size())

	c.invalidate("moniker://a")
	_, ok := c.get("moniker://a")
	assert.False(t, ok)
	_, ok = c.get("moniker://b")
	assert.True(t, ok)

	c.clear()
	assert.Zero(t, c.size())
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := newResolutionCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				uri := fmt.Sprintf("moniker://p/%d", j%10)
				c.put(uri, &ResolvedSource{Path: uri})
				c.get(uri)
				if j%25 == 0 {
					c.invalidate(uri)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.size(), 10)
}
