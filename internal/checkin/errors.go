package checkin

import (
	"errors"
	"fmt"
)

// Errors returned by the gate core.  None of them are fatal: each one maps
// to a transient notice on the usher's device.
var (
	// ErrEmptyQuery is returned when the search token is blank after trimming.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNoMatch is returned when no purchase matches the token.
	ErrNoMatch = errors.New("no matching purchase")
	// ErrStoreUnavailable wraps any transient failure of the backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUsherRequired is returned when a check-in is attempted without an
	// active usher session.
	ErrUsherRequired = errors.New("usher session required")
	// ErrStaleResponse marks a search response superseded by a newer search.
	// It is never shown to the usher.
	ErrStaleResponse = errors.New("stale response discarded")
	// ErrAlreadyCheckedIn is returned when the guest has already arrived.
	// The original check-in time is preserved.
	ErrAlreadyCheckedIn = errors.New("guest already checked in")
	// ErrGuestNotFound is returned when the guest id does not exist.
	ErrGuestNotFound = errors.New("guest not found")
)

// AmbiguousMatchError is returned when a search matches more than one
// purchase.  The resolver never picks one on the usher's behalf.
type AmbiguousMatchError struct {
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match: %d purchases, refine search", e.Count)
}

// IsAmbiguous reports whether err is an AmbiguousMatchError and returns the
// match count.
func IsAmbiguous(err error) (int, bool) {
	var amb *AmbiguousMatchError
	if errors.As(err, &amb) {
		return amb.Count, true
	}
	return 0, false
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
