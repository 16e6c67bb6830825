package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-gate/internal/memstore"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/utils"
)

// seedDemo fills an in-memory store with a few purchases to scan.
func seedDemo(ctx context.Context, s *memstore.Store) ([]model.Purchase, error) {
	price := decimal.RequireFromString("25.00")
	buyers := []struct {
		name, email string
		status      model.PaymentStatus
		guests      []string
	}{
		{"Ann Lee", "ann@example.com", model.PaymentCompleted, []string{"Ann", "Ben"}},
		{"John Smith", "john@example.com", model.PaymentCompleted, []string{"John"}},
		{"Jane Smith", "jane@example.com", model.PaymentPending, []string{"Jane", "Joe", "Jill"}},
	}
	out := make([]model.Purchase, 0, len(buyers))
	now := time.Now()
	for i, b := range buyers {
		at := now.Add(time.Duration(i) * time.Minute)
		qr := utils.NewQRCode(at)
		p := &model.Purchase{
			TicketID:      utils.NewTicketID(),
			CustomerName:  b.name,
			CustomerEmail: b.email,
			Quantity:      len(b.guests),
			TotalAmount:   price.Mul(decimal.NewFromInt(int64(len(b.guests)))),
			PaymentStatus: b.status,
			QRCode:        &qr,
			PurchaseDate:  at,
		}
		guests := make([]model.Guest, len(b.guests))
		for j, n := range b.guests {
			guests[j] = model.Guest{GuestName: n, GuestOrder: j + 1}
		}
		if err := s.CreatePurchase(ctx, p, guests); err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
