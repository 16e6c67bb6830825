package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/handler"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/utils"
)

// RegisterAdmin registers the dashboard endpoints.  Login is public; the
// rest of /v1/admin requires an admin token.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	e.POST("/v1/admin/login", a.Login)

	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleAdmin))
	g.GET("/purchases", a.Purchases)
	g.GET("/purchases/stream", a.PurchasesStream)
	g.GET("/purchases/:id", a.Purchase)
	g.PUT("/event", a.UpdateEvent)
	g.GET("/checkins/ushers", a.Ushers)
}
