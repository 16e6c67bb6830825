// Package repository implements the MySQL-backed stores for purchases,
// guests and the event record.  The sentinel values below let higher
// layers such as handlers tell failure scenarios apart without looking at
// driver errors.  Gate-specific outcomes (already checked in, unknown
// guest) use the sentinels of the checkin package instead.
package repository

import "errors"

// ErrConflict is returned when an insert or update would violate a
// uniqueness rule, such as a duplicate qr_code or a guest name repeated
// within one purchase.  Handlers should translate this into an HTTP 409
// response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned by admin lookups when the requested record does
// not exist.  Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")
