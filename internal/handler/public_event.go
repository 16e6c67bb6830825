package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/repository"
)

// EventReader is the persistence EventHandler needs.
type EventReader interface {
	CurrentEvent(ctx context.Context) (*model.Event, error)
}

// EventHandler serves the public event details.  Responses are cached in
// Redis by the router.
type EventHandler struct {
	Store EventReader
}

func NewEventHandler(store EventReader) *EventHandler {
	return &EventHandler{Store: store}
}

// Get returns the current event or 404 when none is configured.
func (h *EventHandler) Get(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	ev, err := h.Store.CurrentEvent(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no event configured"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ev)
}
