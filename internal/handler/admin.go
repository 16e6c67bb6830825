package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/utils"
)

// AdminStore is the persistence AdminHandler needs.
type AdminStore interface {
	ListPurchases(ctx context.Context) ([]model.Purchase, error)
	GetPurchase(ctx context.Context, id string) (*model.Purchase, error)
	ListGuests(ctx context.Context, purchaseID string) ([]model.Guest, error)
	SalesSummary(ctx context.Context) (model.SalesSummary, error)
	CheckInsByUsher(ctx context.Context) ([]model.UsherCheckIns, error)
	CurrentEvent(ctx context.Context) (*model.Event, error)
	SaveEvent(ctx context.Context, e *model.Event) error
	Subscribe(ctx context.Context, table string, mask model.EventMask) (checkin.Subscription, error)
}

// AdminHandler serves the sales dashboard and event editing.
type AdminHandler struct {
	Store AdminStore
	JWT   config.JWTConfig
	Admin config.AdminConfig
	Cache config.CacheConfig
	Redis *redis.Client // optional; used to purge cached event details
	Log   *logger.Logger
}

func NewAdminHandler(store AdminStore, jwt config.JWTConfig, admin config.AdminConfig, log *logger.Logger) *AdminHandler {
	if store == nil {
		panic("nil store passed to NewAdminHandler")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{Store: store, JWT: jwt, Admin: admin, Log: log}
}

// WithCache lets UpdateEvent purge the cached public event response.
func (h *AdminHandler) WithCache(cfg config.CacheConfig, rdb *redis.Client) *AdminHandler {
	h.Cache, h.Redis = cfg, rdb
	return h
}

type adminLoginReq struct {
	Password string `json:"password" validate:"required"`
}

type updateEventReq struct {
	EventName string          `json:"event_name" validate:"required"`
	Venue     string          `json:"venue" validate:"required"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Time      string          `json:"time" validate:"required,datetime=15:04"`
	Price     decimal.Decimal `json:"price"`
}

// Login exchanges the admin password for a short-lived admin token.
func (h *AdminHandler) Login(c echo.Context) error {
	var req adminLoginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if h.Admin.PasswordHash == "" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin login disabled"})
	}
	if !utils.VerifyPassword(h.Admin.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAdminToken(h.JWT.Secret, h.JWT.AdminTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"token": tok})
}

// Purchases lists every purchase, newest first, with the sales summary.
func (h *AdminHandler) Purchases(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	list, err := h.Store.ListPurchases(ctx)
	if err != nil {
		return writeError(c, err)
	}
	sum, err := h.Store.SalesSummary(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"purchases": list, "summary": sum})
}

// Purchase returns one purchase with its roster.
func (h *AdminHandler) Purchase(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.Store.GetPurchase(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	guests, err := h.Store.ListGuests(ctx, p.ID)
	if err != nil {
		return writeError(c, err)
	}
	checkin.SortGuests(guests)
	return c.JSON(http.StatusOK, echo.Map{
		"purchase":   p,
		"guests":     guests,
		"checked_in": checkin.CountArrived(guests),
	})
}

// UpdateEvent replaces the event details.
func (h *AdminHandler) UpdateEvent(c echo.Context) error {
	var req updateEventReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Price.IsNegative() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price must not be negative"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	ev := model.Event{
		EventName: strings.TrimSpace(req.EventName),
		Venue:     strings.TrimSpace(req.Venue),
		Date:      req.Date,
		Time:      req.Time,
		Price:     req.Price,
	}
	if err := h.Store.SaveEvent(ctx, &ev); err != nil {
		return writeError(c, err)
	}
	if err := middleware.Purge(ctx, h.Cache, h.Redis, "/v1/event"); err != nil {
		h.Log.Warn(ctx, "purge cached event failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, ev)
}

// Ushers returns check-in counts per usher, derived from the attribution
// stored on each guest row.
func (h *AdminHandler) Ushers(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	counts, err := h.Store.CheckInsByUsher(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ushers": counts})
}

// PurchasesStream pushes purchase inserts and updates as server-sent
// events named "insert" and "update".
func (h *AdminHandler) PurchasesStream(c echo.Context) error {
	ctx := c.Request().Context()
	sub, err := h.Store.Subscribe(ctx, model.TablePurchases, model.MaskAll)
	if err != nil {
		return writeError(c, errors.Join(checkin.ErrStoreUnavailable, err))
	}
	defer sub.Close()

	w := startSSE(c)
	tick := time.NewTicker(heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			p, err := ev.Purchase()
			if err != nil {
				h.Log.Warn(ctx, "skip undecodable purchase event: "+err.Error())
				continue
			}
			if err := w.send(strings.ToLower(string(ev.Type)), p); err != nil {
				return nil
			}
		case <-tick.C:
			if err := w.ping(); err != nil {
				return nil
			}
		}
	}
}
