// Package handler holds the Echo HTTP handlers of the gate, admin and
// public APIs.  Handlers translate the sentinel errors of the checkin and
// repository packages into status codes; nothing below them knows about
// HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/repository"
)

// requestTimeout bounds the store calls of one request.
const requestTimeout = 5 * time.Second

var validate = validator.New()

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// bind decodes the request body into dst and runs its validate tags.  The
// returned error is an *echo.HTTPError ready to be returned as is.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
		}
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{"error": "validation failed"})
	}
	return nil
}

// writeError maps err to a JSON error response.
func writeError(c echo.Context, err error) error {
	if n, ok := checkin.IsAmbiguous(err); ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "ambiguous match", "count": n})
	}
	switch {
	case errors.Is(err, checkin.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "empty query"})
	case errors.Is(err, checkin.ErrNoMatch):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no match"})
	case errors.Is(err, checkin.ErrUsherRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "usher session required"})
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already checked in"})
	case errors.Is(err, checkin.ErrGuestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "guest not found"})
	case errors.Is(err, checkin.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable, retry"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable, retry"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
