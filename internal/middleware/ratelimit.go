package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/logger"
)

var errUnexpectedBucket = errors.New("unexpected token bucket reply")

// scanBucket refills continuously at ARGV[3] tokens per ARGV[4] ms and
// spends one token per request.  It returns {allowed, tokens left, wait ms}.
var scanBucket = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3]) / tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens') or capacity)
local seen = tonumber(redis.call('HGET', KEYS[1], 'seen') or now)
tokens = math.min(capacity, tokens + math.max(0, now - seen) * rate)

local allowed, wait = 0, 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'seen', now)
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {allowed, math.floor(tokens), wait}
`)

// NewTokenBucket throttles requests per key with a token bucket kept in
// Redis, so every gate process shares one budget per device.  Without
// Redis, or when disabled, it passes requests straight through.  Redis
// errors fail open: a scan is never refused because the limiter is down.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.Nop()
	}
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := rateKey(cfg, c)

			res, err := scanBucket.Run(ctx, rdb, []string{key},
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				cfg.TTL.Milliseconds(),
			).Int64Slice()
			if err != nil || len(res) != 3 {
				if err == nil {
					err = errUnexpectedBucket
				}
				log.Error(log.WithField(ctx, "rate_key", key), "rate limiter unavailable", err)
				return next(c)
			}
			allowed, remaining, waitMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if allowed {
				return next(c)
			}

			secs := int(math.Ceil(float64(waitMs) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Debug(log.WithFields(ctx, map[string]any{"rate_key": key, "wait_ms": waitMs}), "scan throttled")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too many scans, slow down",
				"retry_after": secs,
			})
		}
	}
}

// rateKey scopes the bucket.  "device" keys on the usher id and falls back
// to the client address for requests without an usher token.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	id := usherID(c)
	var scope []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		scope = []string{"ip", clientIP(c)}
	case "device_ip":
		scope = []string{"usher", id, "ip", clientIP(c)}
	default: // "device"
		if id == "" {
			scope = []string{"ip", clientIP(c)}
		} else {
			scope = []string{"usher", id}
		}
	}
	return cfg.Prefix + ":" + c.Path() + ":" + strings.Join(scope, ":")
}
