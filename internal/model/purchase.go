package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// total_amount travels as a JSON number, matching the purchases table.
	decimal.MarshalJSONWithoutQuotes = true
}

// PaymentStatus is owned by the external payment collaborator.  The gate
// only ever reads it.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Purchase records one checkout transaction as stored in the `purchases`
// table.  Field names in the json tags are the wire contract shared with
// the payment collaborator and must not change.
//
// Fields:
//
//	ID                   – opaque primary key (uuid).
//	TicketID             – short human-facing code, not globally unique.
//	CustomerName         – buyer's full name.
//	CustomerEmail        – buyer's email address.
//	CustomerPhone        – optional phone number.
//	Quantity             – number of admission slots (>= 1).
//	TotalAmount          – price paid, never negative.
//	PaymentStatus        – pending, completed or failed (read-only here).
//	QRCode               – optional scan token, unique when present.
//	PurchaseDate         – creation timestamp.
//	TransactionReference – reference handed to the payment gateway.
//	ChapaTransactionID   – gateway-side transaction id.
//	PaymentMethod        – method reported by the gateway.
type Purchase struct {
	ID                   string          `json:"id"`                    // purchases.id
	TicketID             string          `json:"ticket_id"`             // purchases.ticket_id
	CustomerName         string          `json:"customer_name"`         // purchases.customer_name
	CustomerEmail        string          `json:"customer_email"`        // purchases.customer_email
	CustomerPhone        *string         `json:"customer_phone"`        // purchases.customer_phone (nullable)
	Quantity             int             `json:"quantity"`              // purchases.quantity
	TotalAmount          decimal.Decimal `json:"total_amount"`          // purchases.total_amount
	PaymentStatus        PaymentStatus   `json:"payment_status"`        // purchases.payment_status (nullable)
	QRCode               *string         `json:"qr_code"`               // purchases.qr_code (nullable, unique)
	PurchaseDate         time.Time       `json:"purchase_date"`         // purchases.purchase_date
	TransactionReference *string         `json:"transaction_reference"` // purchases.transaction_reference (nullable)
	ChapaTransactionID   *string         `json:"chapa_transaction_id"`  // purchases.chapa_transaction_id (nullable)
	PaymentMethod        *string         `json:"payment_method"`        // purchases.payment_method (nullable)
}

// Paid reports whether the payment collaborator has marked the purchase
// completed.
func (p Purchase) Paid() bool {
	return strings.EqualFold(string(p.PaymentStatus), string(PaymentCompleted))
}

// SalesSummary aggregates purchases for the admin dashboard.
type SalesSummary struct {
	Purchases     int             `json:"purchases"`
	Completed     int             `json:"completed"`
	Pending       int             `json:"pending"`
	Failed        int             `json:"failed"`
	TicketsSold   int             `json:"tickets_sold"`
	Revenue       decimal.Decimal `json:"revenue"`
	GuestsTotal   int             `json:"guests_total"`
	GuestsArrived int             `json:"guests_checked_in"`
}
