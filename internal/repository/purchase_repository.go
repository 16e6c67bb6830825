package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-gate/internal/model"
)

const purchaseColumns = `id, ticket_id, customer_name, customer_email, customer_phone, quantity,
    total_amount, payment_status, qr_code, purchase_date, transaction_reference,
    chapa_transaction_id, payment_method`

// PurchaseRepo reads and writes the purchases table.  Rows are created by
// the checkout flow; payment columns are filled in later by the payment
// collaborator and are only read here.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a new PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (model.Purchase, error) {
	var (
		p                         model.Purchase
		phone, status, qr         sql.NullString
		txRef, chapaID, payMethod sql.NullString
	)
	err := row.Scan(&p.ID, &p.TicketID, &p.CustomerName, &p.CustomerEmail, &phone, &p.Quantity,
		&p.TotalAmount, &status, &qr, &p.PurchaseDate, &txRef, &chapaID, &payMethod)
	if err != nil {
		return p, err
	}
	p.CustomerPhone = nullable(phone)
	p.QRCode = nullable(qr)
	p.TransactionReference = nullable(txRef)
	p.ChapaTransactionID = nullable(chapaID)
	p.PaymentMethod = nullable(payMethod)
	if status.Valid {
		p.PaymentStatus = model.PaymentStatus(status.String)
	}
	return p, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// FindByQRCode returns the purchase whose qr_code equals code exactly, or
// nil when there is none.
func (r *PurchaseRepo) FindByQRCode(ctx context.Context, code string) (*model.Purchase, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE qr_code = ? LIMIT 1`, code)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Search returns up to limit purchases whose customer name or email
// contains text, ignoring case.  LIKE wildcards in text match literally.
func (r *PurchaseRepo) Search(ctx context.Context, text string, limit int) ([]model.Purchase, error) {
	pattern := "%" + EscapeLike(strings.ToLower(text)) + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
         WHERE LOWER(customer_name) LIKE ? ESCAPE '\\' OR LOWER(customer_email) LIKE ? ESCAPE '\\'
         ORDER BY purchase_date DESC, id ASC
         LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPurchases(rows)
}

// EscapeLike escapes the LIKE metacharacters of s with a backslash.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns all purchases, newest first.
func (r *PurchaseRepo) List(ctx context.Context) ([]model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases ORDER BY purchase_date DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPurchases(rows)
}

// GetByID returns one purchase or ErrNotFound.
func (r *PurchaseRepo) GetByID(ctx context.Context, id string) (*model.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPurchases(rows *sql.Rows) ([]model.Purchase, error) {
	out := make([]model.Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateWithGuests inserts the purchase and its guest roster in one
// transaction.  Either every row is written or none is.  A duplicate
// qr_code or a guest name repeated within the purchase yields ErrConflict.
func (r *PurchaseRepo) CreateWithGuests(ctx context.Context, p *model.Purchase, guests []model.Guest) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO purchases (id, ticket_id, customer_name, customer_email, customer_phone, quantity,
            total_amount, payment_status, qr_code, purchase_date, transaction_reference)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TicketID, p.CustomerName, p.CustomerEmail, p.CustomerPhone, p.Quantity,
		p.TotalAmount, string(p.PaymentStatus), p.QRCode, p.PurchaseDate, p.TransactionReference)
	if err != nil {
		err = translateWriteError(err)
		return err
	}
	if len(guests) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ticket_guests (id, purchase_id, guest_name, guest_order, checked_in, created_at) VALUES `)
	args := make([]any, 0, len(guests)*6)
	for i, g := range guests {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, FALSE, ?)")
		args = append(args, g.ID, p.ID, g.GuestName, g.GuestOrder, g.CreatedAt)
	}
	if _, err = tx.ExecContext(ctx, sb.String(), args...); err != nil {
		err = translateWriteError(err)
		return err
	}
	return nil
}

// Summary aggregates purchase and guest counts for the admin dashboard.
// Revenue and tickets sold count completed purchases only.
func (r *PurchaseRepo) Summary(ctx context.Context) (model.SalesSummary, error) {
	var s model.SalesSummary
	var revenue decimal.NullDecimal
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(payment_status = 'completed'), 0),
               COALESCE(SUM(payment_status = 'failed'), 0),
               COALESCE(SUM(CASE WHEN payment_status = 'completed' THEN quantity ELSE 0 END), 0),
               SUM(CASE WHEN payment_status = 'completed' THEN total_amount ELSE 0 END)
        FROM purchases`).Scan(&s.Purchases, &s.Completed, &s.Failed, &s.TicketsSold, &revenue)
	if err != nil {
		return s, err
	}
	s.Pending = s.Purchases - s.Completed - s.Failed
	s.Revenue = decimal.Zero
	if revenue.Valid {
		s.Revenue = revenue.Decimal
	}
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(checked_in), 0) FROM ticket_guests`).Scan(&s.GuestsTotal, &s.GuestsArrived)
	if err != nil {
		return s, err
	}
	return s, nil
}

// translateWriteError maps a MySQL duplicate-key error to ErrConflict.
func translateWriteError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrConflict, myErr.Message)
	}
	return err
}
