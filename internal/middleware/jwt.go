// Package middleware contains the Echo middleware shared by the gate and
// admin routes: token authentication, role checks, request logging, rate
// limiting and response caching.
package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/utils"
)

// Context keys set by the auth middleware.
const (
	ContextUserID      = "user_id"
	ContextRole        = "role"
	ContextUsherClaims = "usher_claims"
)

func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(auth, "Bearer "), true
}

// JWTAuth validates a Bearer token of any role and stores its subject and
// role claims in the context under "user_id" and "role".  Pair it with
// RequireRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			sub, _ := claims.GetSubject()
			role, _ := claims["role"].(string)
			c.Set(ContextUserID, sub)
			c.Set(ContextRole, role)
			return next(c)
		}
	}
}

// UsherAuth validates an usher token.  The parsed claims, which carry the
// device's usher session, are stored under "usher_claims".  A request
// without a valid usher token is rejected with 401 so the device prompts
// for login.
func UsherAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "usher session required"})
			}
			claims, err := utils.ParseUsherToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "usher session required"})
			}
			c.Set(ContextUsherClaims, claims)
			c.Set(ContextUserID, claims.Subject)
			c.Set(ContextRole, claims.Role)
			return next(c)
		}
	}
}

// UsherClaims returns the claims stored by UsherAuth, or nil.
func UsherClaims(c echo.Context) *utils.UsherClaims {
	claims, _ := c.Get(ContextUsherClaims).(*utils.UsherClaims)
	return claims
}
