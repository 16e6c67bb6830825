// Package usher holds the identity a gate device checks guests in under.
// A session is a display name and id chosen at the device plus a running
// count of check-ins made from it.  It is attribution, not authentication:
// nothing here verifies who the usher is, and tallies of different devices
// are never reconciled.
package usher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-gate/internal/model"
)

// ErrInvalidLogin is returned when the name or id is blank.
var ErrInvalidLogin = errors.New("usher name and id are required")

// Session is the persisted shape of a device's usher session.
type Session struct {
	Name          string    `json:"name"`
	ID            string    `json:"id"`
	LoginTime     time.Time `json:"loginTime"`
	CheckInsToday int       `json:"checkInsToday"`
}

// Valid reports whether both identifying fields are set.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Name) != "" && strings.TrimSpace(s.ID) != ""
}

// Store persists a device's session between runs.  Load returns nil when
// nothing has been saved.
type Store interface {
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// Device is the session slot of one gate device.  Its zero value is not
// usable; construct it with NewDevice or FromSession.  All methods are
// safe for concurrent use.  Current, Active, Attribution and RecordCheckIn
// treat a nil *Device as logged out.
type Device struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	session *Session
}

// NewDevice restores the session saved in store, if any.  A nil store
// keeps the session in memory only.
func NewDevice(store Store) (*Device, error) {
	d := &Device{store: store, now: time.Now}
	if store == nil {
		return d, nil
	}
	s, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore usher session: %w", err)
	}
	if s != nil && s.Valid() {
		d.session = s
	}
	return d, nil
}

// FromSession wraps an already established session, such as one carried
// in an usher token.  Nothing is persisted.
func FromSession(s Session) *Device {
	d := &Device{now: time.Now}
	if s.Valid() {
		d.session = &s
	}
	return d
}

// Login starts a new session with a zero tally, replacing any current one.
func (d *Device) Login(name, id string) (Session, error) {
	name, id = strings.TrimSpace(name), strings.TrimSpace(id)
	if name == "" || id == "" {
		return Session{}, ErrInvalidLogin
	}
	s := &Session{Name: name, ID: id, LoginTime: d.now().UTC()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.persistLocked(s); err != nil {
		return Session{}, err
	}
	d.session = s
	return *s, nil
}

// Logout clears the session.  Check-ins already sent are unaffected.
func (d *Device) Logout() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = nil
	if d.store == nil {
		return nil
	}
	if err := d.store.Clear(); err != nil {
		return fmt.Errorf("clear usher session: %w", err)
	}
	return nil
}

// Current returns a copy of the session and whether one is active.
func (d *Device) Current() (Session, bool) {
	if d == nil {
		return Session{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return Session{}, false
	}
	return *d.session, true
}

// Active reports whether a session is logged in.
func (d *Device) Active() bool {
	_, ok := d.Current()
	return ok
}

// Attribution returns the identity stamped on check-ins.
func (d *Device) Attribution() model.Attribution {
	s, _ := d.Current()
	return model.Attribution{UsherID: s.ID, UsherName: s.Name}
}

// RecordCheckIn bumps the local tally.  A failed save is returned but the
// in-memory count still moves ahead of the persisted one.
func (d *Device) RecordCheckIn() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	next := *d.session
	next.CheckInsToday++
	d.session = &next
	return d.persistLocked(&next)
}

func (d *Device) persistLocked(s *Session) error {
	if d.store == nil {
		return nil
	}
	if err := d.store.Save(s); err != nil {
		return fmt.Errorf("save usher session: %w", err)
	}
	return nil
}
