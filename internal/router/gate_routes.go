package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/handler"
	"github.com/iliyamo/event-gate/internal/middleware"
)

// RegisterUsher registers usher login under /v1/usher.  Logout and the
// session lookup require an usher token.
func RegisterUsher(e *echo.Echo, u *handler.UsherHandler, jwtSecret string) {
	g := e.Group("/v1/usher")
	g.POST("/login", u.Login)
	g.POST("/logout", u.Logout, middleware.UsherAuth(jwtSecret))
	g.GET("/me", u.Me, middleware.UsherAuth(jwtSecret))
}

// RegisterGate registers the device endpoints under /v1/gate.  Every route
// requires an usher token; resolve is additionally rate limited because
// scanners fire in bursts.
func RegisterGate(e *echo.Echo, h *handler.GateHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/gate", middleware.UsherAuth(jwtSecret))
	if limiter == nil {
		g.GET("/resolve", h.Resolve)
	} else {
		g.GET("/resolve", h.Resolve, limiter)
	}
	g.GET("/purchases/:id/guests", h.Guests)
	g.GET("/purchases/:id/guests/stream", h.Stream)
	g.POST("/guests/:id/checkin", h.CheckIn)
}
