package middleware

import "github.com/labstack/echo/v4"

// usherID returns the id of the usher session behind the request, or ""
// when the request carries no usher token.
func usherID(c echo.Context) string {
	if claims := UsherClaims(c); claims != nil {
		return claims.Subject
	}
	return ""
}

func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
