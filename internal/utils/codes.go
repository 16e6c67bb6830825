package utils

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v3"
)

// NewTicketID returns the short code shown to buyers: "RF" and three
// digits.  It is not unique across purchases.
func NewTicketID() string {
	return fmt.Sprintf("RF%03d", rand.IntN(1000))
}

// NewQRCode returns the scan token encoded into a purchase's QR code.
func NewQRCode(now time.Time) string {
	return fmt.Sprintf("QR-%d-%s", now.UnixMilli(), randomSuffix(5))
}

// NewTransactionReference returns the reference handed to the payment
// gateway.
func NewTransactionReference(now time.Time) string {
	return fmt.Sprintf("RF%d-%s", now.UnixMilli(), randomSuffix(9))
}

// randomSuffix returns n lowercase characters of a fresh short uuid.  The
// encoding is 22 characters long, so n must not exceed that.
func randomSuffix(n int) string {
	return strings.ToLower(shortuuid.New())[:n]
}
