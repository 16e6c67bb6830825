package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/usher"
	"github.com/iliyamo/event-gate/internal/utils"
)

// GateHandler serves the usher devices: resolving scans, showing rosters
// and recording check-ins.
type GateHandler struct {
	Resolver  *checkin.Resolver
	Roster    *checkin.RosterLoader
	Ledger    *checkin.Ledger
	Projector *checkin.Projector
	JWT       config.JWTConfig
	Log       *logger.Logger
}

// NewGateHandler panics if a check-in component is missing.
func NewGateHandler(r *checkin.Resolver, roster *checkin.RosterLoader, l *checkin.Ledger, p *checkin.Projector, jwt config.JWTConfig, log *logger.Logger) *GateHandler {
	if r == nil || roster == nil || l == nil || p == nil {
		panic("nil component passed to NewGateHandler")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GateHandler{Resolver: r, Roster: roster, Ledger: l, Projector: p, JWT: jwt, Log: log}
}

type rosterResp struct {
	Purchase  *model.Purchase `json:"purchase,omitempty"`
	Strategy  string          `json:"strategy,omitempty"`
	Warning   string          `json:"warning,omitempty"`
	Guests    []model.Guest   `json:"guests"`
	CheckedIn int             `json:"checked_in"`
	Total     int             `json:"total"`
}

type checkInResp struct {
	Guest *model.Guest      `json:"guest"`
	Usher usher.Session     `json:"usher"`
	Token utils.AccessToken `json:"token"`
}

// Resolve matches ?q= to exactly one purchase and returns it with its
// roster.  An unpaid purchase is still returned, flagged with a warning.
func (h *GateHandler) Resolve(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Resolver.Resolve(ctx, c.QueryParam("q"))
	if err != nil {
		return writeError(c, err)
	}
	guests, err := h.Roster.Load(ctx, res.Purchase.ID)
	if err != nil {
		return writeError(c, err)
	}
	p := res.Purchase
	out := rosterResp{
		Purchase:  &p,
		Strategy:  res.Strategy.String(),
		Guests:    guests,
		CheckedIn: checkin.CountArrived(guests),
		Total:     len(guests),
	}
	if !p.Paid() {
		out.Warning = "payment not completed"
	}
	return c.JSON(http.StatusOK, out)
}

// Guests returns the roster of a purchase ordered by guest_order.
func (h *GateHandler) Guests(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	guests, err := h.Roster.Load(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rosterResp{
		Guests:    guests,
		CheckedIn: checkin.CountArrived(guests),
		Total:     len(guests),
	})
}

// Stream pushes the live roster of a purchase as server-sent events: one
// "roster" event with the initial load, then one per change seen on the
// feed.  Intermediate snapshots may be skipped when the client is slow;
// the last one is always delivered.
func (h *GateHandler) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	purchaseID := c.Param("id")

	updates := make(chan []model.Guest, 1)
	view, err := h.Projector.Open(ctx, purchaseID, func(gs []model.Guest) {
		for {
			select {
			case updates <- gs:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		return writeError(c, err)
	}
	defer view.Close()

	// Open already queued the initial snapshot.
	w := startSSE(c)
	tick := time.NewTicker(heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case gs := <-updates:
			if err := w.send("roster", gs); err != nil {
				return nil
			}
		case <-tick.C:
			if err := w.ping(); err != nil {
				return nil
			}
		}
	}
}

// CheckIn marks a guest as arrived on behalf of the usher in the token.
// The response carries the usher's updated tally and a refreshed token
// embedding it.
func (h *GateHandler) CheckIn(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	var dev *usher.Device
	if claims := middleware.UsherClaims(c); claims != nil {
		dev = usher.FromSession(claims.Session())
		ctx = h.Log.WithUsherID(ctx, claims.Subject)
	}
	g, err := h.Ledger.CheckIn(ctx, c.Param("id"), dev)
	if err != nil {
		return writeError(c, err)
	}
	s, _ := dev.Current()
	tok, err := utils.NewUsherToken(h.JWT.Secret, s, h.JWT.UsherTTL())
	if err != nil {
		// the check-in is durable; the device keeps its previous token
		h.Log.Error(ctx, "issue refreshed usher token failed", err)
	}
	return c.JSON(http.StatusOK, checkInResp{Guest: g, Usher: s, Token: tok})
}
