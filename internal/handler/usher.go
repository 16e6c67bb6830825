package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/usher"
	"github.com/iliyamo/event-gate/internal/utils"
)

// UsherHandler issues usher tokens.  The server keeps no usher state: the
// session lives in the token held by the device.
type UsherHandler struct {
	JWT config.JWTConfig
	Log *logger.Logger
}

func NewUsherHandler(jwt config.JWTConfig, log *logger.Logger) *UsherHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UsherHandler{JWT: jwt, Log: log}
}

type usherLoginReq struct {
	Name string `json:"name" validate:"required"`
	ID   string `json:"id" validate:"required"`
}

type usherResp struct {
	Usher usher.Session     `json:"usher"`
	Token utils.AccessToken `json:"token"`
}

// Login starts a session with a zero tally and returns its token.
func (h *UsherHandler) Login(c echo.Context) error {
	var req usherLoginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	dev, _ := usher.NewDevice(nil)
	s, err := dev.Login(req.Name, req.ID)
	if err != nil {
		if errors.Is(err, usher.ErrInvalidLogin) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and id required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	tok, err := utils.NewUsherToken(h.JWT.Secret, s, h.JWT.UsherTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	h.Log.Info(h.Log.WithUsherID(c.Request().Context(), s.ID), "usher logged in")
	return c.JSON(http.StatusOK, usherResp{Usher: s, Token: tok})
}

// Logout acknowledges the end of a session.  The device drops its token;
// check-ins already recorded keep their attribution.
func (h *UsherHandler) Logout(c echo.Context) error {
	if claims := middleware.UsherClaims(c); claims != nil {
		h.Log.Info(h.Log.WithUsherID(c.Request().Context(), claims.Subject), "usher logged out")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the session carried by the caller's token.
func (h *UsherHandler) Me(c echo.Context) error {
	claims := middleware.UsherClaims(c)
	if claims == nil {
		return writeError(c, checkin.ErrUsherRequired)
	}
	return c.JSON(http.StatusOK, echo.Map{"usher": claims.Session()})
}
