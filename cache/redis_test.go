package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadstock/config"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	var c *RedisCache
	ctx := context.Background()

	require.False(t, c.Enabled(), "nil cache reports enabled")
	c.Set(ctx, "k", map[string]int{"a": 1})
	var out map[string]int
	assert.False(t, c.Get(ctx, "k", &out), "disabled cache returned a hit")
	c.InvalidatePrefix(ctx, DashboardPrefix)
	c.Delete(ctx, DashboardKey("employee", "abc"))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestInitWithoutAddressLeavesCacheDisabled(t *testing.T) {
	config.RedisAddr = ""
	Default = nil
	require.NoError(t, Init(context.Background()))
	assert.False(t, Default.Enabled(), "cache enabled without REDIS_ADDR")
}

func TestDashboardKey(t *testing.T) {
	assert.Equal(t, "dashboard:admin:abc", DashboardKey("admin", "abc"))
}
