package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/usher"
	"github.com/iliyamo/event-gate/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func serve(e *echo.Echo, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUsherAuth(t *testing.T) {
	e := echo.New()
	e.GET("/gate", func(c echo.Context) error {
		claims := UsherClaims(c)
		return c.String(http.StatusOK, claims.Name+"/"+c.Get(ContextRole).(string))
	}, UsherAuth(secret))

	rec := serve(e, http.MethodGet, "/gate", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "usher session required")

	admin, err := utils.NewAdminToken(secret, time.Minute)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/gate", admin.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := utils.NewUsherToken(secret, usher.Session{Name: "Maya", ID: "U-7", LoginTime: time.Now()}, time.Minute)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/gate", tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Maya/usher", rec.Body.String())
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, JWTAuth(secret), RequireRole(utils.RoleAdmin))

	admin, err := utils.NewAdminToken(secret, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/admin", admin.Token).Code)

	tok, err := utils.NewUsherToken(secret, usher.Session{Name: "Maya", ID: "U-7", LoginTime: time.Now()}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", tok.Token).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin", "garbage").Code)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(logger.Nop()))
	e.GET("/x", func(c echo.Context) error { return echo.ErrNotFound })

	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "device",
		Prefix:         "rl",
	}
}

func TestTokenBucketThrottlesAfterBurst(t *testing.T) {
	_, rdb := newRedis(t)
	e := echo.New()
	e.GET("/resolve", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, NewTokenBucket(rateConfig(), rdb, nil))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/resolve", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/resolve", "").Code)
	rec := serve(e, http.MethodGet, "/resolve", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
}

func TestTokenBucketKeysOnUsher(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := rateConfig()
	cfg.Capacity = 1
	e := echo.New()
	e.GET("/resolve", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, UsherAuth(secret), NewTokenBucket(cfg, rdb, nil))

	token := func(id string) string {
		tok, err := utils.NewUsherToken(secret, usher.Session{Name: "U " + id, ID: id, LoginTime: time.Now()}, time.Minute)
		require.NoError(t, err)
		return tok.Token
	}
	maya, omar := token("U-1"), token("U-2")

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/resolve", maya).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodGet, "/resolve", maya).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/resolve", omar).Code)
}

func TestRateKeyStrategies(t *testing.T) {
	cfg := rateConfig()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/resolve", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/resolve")

	assert.Equal(t, "rl:/resolve:ip:10.0.0.9", rateKey(cfg, c))

	c.Set(ContextUsherClaims, &utils.UsherClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "U-7"}})
	assert.Equal(t, "rl:/resolve:usher:U-7", rateKey(cfg, c))

	cfg.KeyStrategy = "device_ip"
	assert.Equal(t, "rl:/resolve:usher:U-7:ip:10.0.0.9", rateKey(cfg, c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:/resolve:ip:10.0.0.9", rateKey(cfg, c))
}

func TestTokenBucketFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	e := echo.New()
	e.GET("/resolve", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, NewTokenBucket(rateConfig(), rdb, nil))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/resolve", "").Code)
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := rateConfig()
	cfg.Enabled = false
	e := echo.New()
	e.GET("/resolve", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, NewTokenBucket(cfg, nil, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/resolve", "").Code)
	}
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
		Methods:      map[string]bool{http.MethodGet: true},
	}
}

func TestRedisCacheHitAndPurge(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := cacheConfig()
	var calls atomic.Int32
	e := echo.New()
	e.GET("/v1/event", func(c echo.Context) error {
		calls.Add(1)
		return c.JSON(http.StatusOK, echo.Map{"event_name": "Gala"})
	}, NewRedisCache(cfg, rdb, nil))

	first := serve(e, http.MethodGet, "/v1/event", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/v1/event", "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, Purge(context.Background(), cfg, rdb, "/v1/event"))
	third := serve(e, http.MethodGet, "/v1/event", "")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedisCacheSkipsErrorsAndStreams(t *testing.T) {
	mr, rdb := newRedis(t)
	e := echo.New()
	mw := NewRedisCache(cacheConfig(), rdb, nil)
	e.GET("/missing", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}, mw)
	e.GET("/stream", func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().WriteHeader(http.StatusOK)
		_, err := c.Response().Write([]byte("data: {}\n\n"))
		return err
	}, mw)

	serve(e, http.MethodGet, "/missing", "")
	serve(e, http.MethodGet, "/stream", "")
	assert.Empty(t, mr.Keys())
}

func TestRedisCacheSkipsOversizedBodies(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := cacheConfig()
	cfg.MaxBodyBytes = 16
	e := echo.New()
	e.GET("/v1/event", func(c echo.Context) error {
		return c.String(http.StatusOK, "a description well past sixteen bytes")
	}, NewRedisCache(cfg, rdb, nil))

	rec := serve(e, http.MethodGet, "/v1/event", "")
	assert.Equal(t, "a description well past sixteen bytes", rec.Body.String())
	assert.Empty(t, mr.Keys())
}

func TestCacheKeyStrategies(t *testing.T) {
	cfg := cacheConfig()
	a := CacheKey(cfg, http.MethodGet, "/v1/event", "a=1")
	b := CacheKey(cfg, http.MethodGet, "/v1/event", "a=2")
	assert.NotEqual(t, a, b)

	cfg.KeyStrategy = "route"
	assert.Equal(t,
		CacheKey(cfg, http.MethodGet, "/v1/event", "a=1"),
		CacheKey(cfg, http.MethodGet, "/v1/event", "a=2"))
}
