// Package router registers the HTTP routes of the gate service on an Echo
// instance.  Each Register function wires one audience: operations,
// public buyers, ushers and the admin.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/event-gate/internal/handler"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// /healthz and the Prometheus scrape endpoint /metrics.
func RegisterRoutes(e *echo.Echo, g prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// RegisterPublic registers the endpoints buyers use without an account.
// cache wraps the event details, which change rarely and are read on
// every page view.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, p *handler.PurchaseHandler, cache echo.MiddlewareFunc) {
	if cache == nil {
		e.GET("/v1/event", ev.Get)
	} else {
		e.GET("/v1/event", ev.Get, cache)
	}
	e.POST("/v1/purchases", p.Create)
}
