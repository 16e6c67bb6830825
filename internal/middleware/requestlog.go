package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/logger"
)

// RequestLogger tags every request with a request id, attaches it to the
// request context for downstream logging and writes one entry per request
// once it completes.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			ctx := log.WithRequestID(req.Context(), id)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			entry := log.Zerolog().Info()
			if status >= 500 {
				entry = log.Zerolog().Error().Err(err)
			} else if status >= 400 {
				entry = log.Zerolog().Warn()
			}
			entry.
				Str("request_id", id).
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("http request")
			return nil
		}
	}
}
