package fetch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityPoolRotatesUserAgents(t *testing.T) {
	t.Parallel()

	pool := NewIdentityPool([]string{"ua-1", "ua-2"}, nil)

	require.Equal(t, "ua-1", pool.Next().UserAgent)
	require.Equal(t, "ua-2", pool.Next().UserAgent)
	require.Equal(t, "ua-1", pool.Next().UserAgent)
}

func TestIdentityPoolDefaultsUserAgents(t *testing.T) {
	t.Parallel()

	pool := NewIdentityPool(nil, nil)
	id := pool.Next()
	require.NotEmpty(t, id.UserAgent)
	require.Empty(t, id.Proxy)
}

func TestIdentityPoolRotatesProxies(t *testing.T) {
	t.Parallel()

	pool := NewIdentityPool(nil, []string{"http://p1:8080", "http://p2:8080"})

	require.Equal(t, "http://p1:8080", pool.Next().Proxy)
	require.Equal(t, "http://p2:8080", pool.Next().Proxy)
	require.Equal(t, "http://p1:8080", pool.Next().Proxy)
}

func TestIdentityPoolSkipsBadProxies(t *testing.T) {
	t.Parallel()

	pool := NewIdentityPool(nil, []string{"http://p1:8080", "http://p2:8080", "http://p3:8080"})
	pool.MarkBad("http://p2:8080")

	require.Equal(t, 2, pool.GoodProxies())
	for i := 0; i < 6; i++ {
		require.NotEqual(t, "http://p2:8080", pool.Next().Proxy)
	}
}

func TestIdentityPoolAllProxiesBad(t *testing.T) {
	t.Parallel()

	pool := NewIdentityPool(nil, []string{"http://p1:8080"})
	pool.MarkBad("http://p1:8080")

	require.Zero(t, pool.GoodProxies())
	require.Empty(t, pool.Next().Proxy)
}

func TestIdentityPoolMarkBadEmptyProxy(t *testing.T) {
	t.Parallel()

	pool := NewIdentityPool(nil, []string{"http://p1:8080"})
	pool.MarkBad("")
	require.Equal(t, 1, pool.GoodProxies())
}
