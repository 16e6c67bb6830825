package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/logger"
)

// cachedResponse is what a cache entry holds in Redis.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// bodyRecorder tees the response into a buffer.  A body larger than limit
// marks the recording as overflowed and is never stored.
type bodyRecorder struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.limit > 0 && r.buf.Len()+len(b) > r.limit {
			r.overflow = true
			r.buf.Reset()
		} else {
			r.buf.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// CacheKey names the entry for a request.  "route" ignores the query
// string; the default "route_query" keeps it.
func CacheKey(cfg config.CacheConfig, method, route, query string) string {
	id := method + " " + route
	if !strings.EqualFold(cfg.KeyStrategy, "route") {
		id += "?" + query
	}
	sum := sha1.Sum([]byte(id))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// Purge drops the cached response of a GET on route with no query.
// Handlers call it after changing the data behind a cached route.
func Purge(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, route string) error {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	return rdb.Del(ctx, CacheKey(cfg, http.MethodGet, route, "")).Err()
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRedisCache replays stored 200 responses for the configured methods.
// Event streams and oversized bodies are never stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if log == nil {
		log = logger.Nop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Methods[strings.ToUpper(req.Method)] {
				return next(c)
			}
			ctx := req.Context()
			key := CacheKey(cfg, req.Method, c.Path(), req.URL.RawQuery)
			res := c.Response()

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					for k, vals := range hit.Header {
						if k == echo.HeaderContentLength {
							continue
						}
						res.Header()[k] = vals
					}
					res.Header().Set("X-Cache", "HIT")
					res.WriteHeader(hit.Status)
					_, err = res.Write(hit.Body)
					return err
				}
			}

			rec := &bodyRecorder{ResponseWriter: res.Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			res.Writer = rec
			res.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}

			if rec.status != http.StatusOK || rec.overflow ||
				strings.HasPrefix(res.Header().Get(echo.HeaderContentType), "text/event-stream") {
				return nil
			}
			raw, err := json.Marshal(cachedResponse{Status: rec.status, Header: res.Header().Clone(), Body: rec.buf.Bytes()})
			if err == nil {
				err = rdb.Set(context.WithoutCancel(ctx), key, raw, ttl).Err()
			}
			if err != nil {
				log.Warn(log.WithField(ctx, "cache_key", key), "store cached response failed: "+err.Error())
			}
			return nil
		}
	}
}
