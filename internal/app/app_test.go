package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/apigateway/cache"
	"github.com/briangreenhill/apigateway/internal/config"
	"github.com/briangreenhill/apigateway/internal/credentials"
	"github.com/briangreenhill/apigateway/internal/secret"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		SecretKey: "app-test-master",
		Cache:     config.CacheConfig{Backend: backend, Dir: t.TempDir(), RedisPrefix: cache.DefaultRedisPrefix},
		Gateway:   config.GatewayConfig{Timeout: time.Second, CallDeadline: time.Minute, MaxAttempts: 3},
	}
}

func TestProvision(t *testing.T) {
	c, err := secret.New("provision-master")
	require.NoError(t, err)
	store := credentials.NewMemoryStore(c)
	ctx := context.Background()

	env := map[string]string{
		"OPENWEATHER_API_KEY":   "ow",
		"GITHUB_PERSONAL_TOKEN": "ghp",
	}
	changed, err := Provision(ctx, store, func(k string) string { return env[k] }, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"openweather", "github"}, changed)

	svc, err := store.GetActive(ctx, "openweather")
	require.NoError(t, err)
	assert.Equal(t, "https://api.openweathermap.org/data/2.5", svc.BaseURL)
	plain, ok := store.Reveal(svc)
	require.True(t, ok)
	assert.Equal(t, "ow", plain)

	_, err = store.GetActive(ctx, "newsapi")
	assert.ErrorIs(t, err, credentials.ErrNotFound, "services without a secret are skipped")

	changed, err = Provision(ctx, store, func(k string) string { return env[k] }, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, changed, "unchanged secrets are not re-encrypted")

	env["GITHUB_PERSONAL_TOKEN"] = "ghp-rotated"
	changed, err = Provision(ctx, store, func(k string) string { return env[k] }, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"github"}, changed)
}

func TestNewWithFileCache(t *testing.T) {
	t.Setenv("COINGECKO_API_KEY", "cg")
	a, err := New(context.Background(), testConfig(t, config.CacheFile), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Gateway)
	require.NotNil(t, a.Cache)
	assert.NotNil(t, a.Sweeper())
	assert.Nil(t, a.Pool)

	_, err = a.Store.GetActive(context.Background(), "coingecko")
	assert.NoError(t, err)
}

func TestNewWithoutCache(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, config.CacheNone), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)
	assert.Nil(t, a.Sweeper())
}

func TestNewWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, config.CacheRedis)
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	ctx := context.Background()
	require.True(t, a.Cache.Set(ctx, "k", []byte(`{"v":1}`), time.Minute))
	got, ok := a.Cache.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(got))
}

func TestNewRequiresSecret(t *testing.T) {
	cfg := testConfig(t, config.CacheNone)
	cfg.SecretKey = ""
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
