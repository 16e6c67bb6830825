package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/model"
)

// terminal draws the gate display as plain text.  Calls come from the
// input loop, search goroutines and the change feed, so writes are
// serialised.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminal(out io.Writer) *terminal { return &terminal{out: out} }

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) ShowPurchase(p model.Purchase, guests []model.Guest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "\n== %s  %s <%s>  %d ticket(s)  %s\n", p.TicketID, p.CustomerName, p.CustomerEmail, p.Quantity, p.TotalAmount.StringFixed(2))
	if !p.Paid() {
		fmt.Fprintf(t.out, "!! payment status: %s\n", statusOrUnknown(p.PaymentStatus))
	}
	writeRoster(t.out, guests)
}

func (t *terminal) ShowRoster(guests []model.Guest) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, "-- roster updated")
	writeRoster(t.out, guests)
}

func (t *terminal) ShowCheckedIn(g model.Guest) {
	t.printf("checked in %s (#%d) at %s\n", g.GuestName, g.GuestOrder, clock(g.CheckinTime))
}

func (t *terminal) ShowNotice(err error) {
	t.printf("! %s\n", notice(err))
}

func (t *terminal) Clear() {
	t.printf("-- selection cleared\n")
}

func writeRoster(w io.Writer, guests []model.Guest) {
	if len(guests) == 0 {
		fmt.Fprintln(w, "   (no guests)")
		return
	}
	for _, g := range guests {
		mark := "[ ]"
		at := ""
		if g.Arrived() {
			mark = "[x]"
			at = "  " + clock(g.CheckinTime)
			if g.CheckedInByName != nil {
				at += " by " + *g.CheckedInByName
			}
		}
		fmt.Fprintf(w, "  %2d %s %s%s\n", g.GuestOrder, mark, g.GuestName, at)
	}
	fmt.Fprintf(w, "   %d/%d arrived\n", checkin.CountArrived(guests), len(guests))
}

func notice(err error) string {
	if n, ok := checkin.IsAmbiguous(err); ok {
		return fmt.Sprintf("%d purchases match; refine the search", n)
	}
	switch {
	case errors.Is(err, checkin.ErrEmptyQuery):
		return "nothing to search"
	case errors.Is(err, checkin.ErrNoMatch):
		return "no purchase matches"
	case errors.Is(err, checkin.ErrUsherRequired):
		return "log in first: login <id> <name>"
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		return "guest is already checked in"
	case errors.Is(err, checkin.ErrGuestNotFound):
		return "guest not found"
	case errors.Is(err, checkin.ErrStoreUnavailable):
		return "store unavailable; try again"
	}
	return err.Error()
}

func statusOrUnknown(s model.PaymentStatus) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}

func clock(t *time.Time) string {
	if t == nil {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
