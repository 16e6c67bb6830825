package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/repository"
	"github.com/iliyamo/event-gate/internal/utils"
)

// PurchaseStore is the persistence PurchaseHandler needs.
type PurchaseStore interface {
	CurrentEvent(ctx context.Context) (*model.Event, error)
	CreatePurchase(ctx context.Context, p *model.Purchase, guests []model.Guest) error
}

// PurchaseHandler starts checkouts.  Payment itself happens with the
// external gateway, which later flips payment_status.
type PurchaseHandler struct {
	Store PurchaseStore
	Log   *logger.Logger
	now   func() time.Time
}

func NewPurchaseHandler(store PurchaseStore, log *logger.Logger) *PurchaseHandler {
	if store == nil {
		panic("nil store passed to NewPurchaseHandler")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PurchaseHandler{Store: store, Log: log, now: time.Now}
}

type createPurchaseReq struct {
	CustomerName  string   `json:"customer_name" validate:"required"`
	CustomerEmail string   `json:"customer_email" validate:"required,email"`
	CustomerPhone string   `json:"customer_phone"`
	Quantity      int      `json:"quantity" validate:"min=1,max=100"`
	GuestNames    []string `json:"guest_names" validate:"required"`
}

type purchaseResp struct {
	Purchase model.Purchase `json:"purchase"`
	Guests   []model.Guest  `json:"guests"`
}

// errGuestNames explains why a guest list was refused.
var errGuestNames = errors.New("guest names must be one non-empty, distinct name per ticket")

// guestRoster checks the names against quantity and builds the guests in
// order.  Names are trimmed; duplicates are detected ignoring case.
func guestRoster(names []string, quantity int) ([]model.Guest, error) {
	if len(names) != quantity {
		return nil, errGuestNames
	}
	seen := make(map[string]bool, len(names))
	guests := make([]model.Guest, 0, len(names))
	for i, raw := range names {
		name := strings.TrimSpace(raw)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			return nil, errGuestNames
		}
		seen[key] = true
		guests = append(guests, model.Guest{GuestName: name, GuestOrder: i + 1})
	}
	return guests, nil
}

// Create records a pending purchase priced from the current event,
// together with its guest roster and freshly generated codes.
func (h *PurchaseHandler) Create(c echo.Context) error {
	var req createPurchaseReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_name required"})
	}
	guests, err := guestRoster(req.GuestNames, req.Quantity)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	ev, err := h.Store.CurrentEvent(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no event on sale"})
		}
		return writeError(c, err)
	}

	now := h.now()
	qr := utils.NewQRCode(now)
	ref := utils.NewTransactionReference(now)
	p := model.Purchase{
		TicketID:             utils.NewTicketID(),
		CustomerName:         strings.TrimSpace(req.CustomerName),
		CustomerEmail:        strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		Quantity:             req.Quantity,
		TotalAmount:          ev.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		PaymentStatus:        model.PaymentPending,
		QRCode:               &qr,
		TransactionReference: &ref,
	}
	if phone := strings.TrimSpace(req.CustomerPhone); phone != "" {
		p.CustomerPhone = &phone
	}

	if err := h.Store.CreatePurchase(ctx, &p, guests); err != nil {
		h.Log.Error(ctx, "create purchase failed", err)
		return writeError(c, err)
	}
	h.Log.Info(h.Log.WithPurchaseID(ctx, p.ID), "purchase created")
	return c.JSON(http.StatusCreated, purchaseResp{Purchase: p, Guests: guests})
}
