// Package session holds the per-browser {token, username} record that
// protected views authenticate with.
//
// A browser is identified by an opaque "sid" cookie. The Store maps that id to
// the Session; a Handle binds one browser id to the Store and is passed
// explicitly to every view that reads or writes the session.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"debt-tracker/internal/models"
)

const (
	// CookieName is the name of the browser id cookie.
	CookieName = "sid"
	// CookieLifetime is how long a browser id cookie lives (30 days).
	CookieLifetime = 30 * 24 * time.Hour
)

// ErrEmptyToken is returned when storing a session without a token.
var ErrEmptyToken = errors.New("session token must not be empty")

// Store persists sessions keyed by browser id. Get returns a zero Session,
// not an error, for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (models.Session, error)
	Set(ctx context.Context, id, token, username string) error
	Clear(ctx context.Context, id string) error
	// SetFlash replaces the pending flash of a browser id. TakeFlash
	// returns it and removes it, yielding a zero Flash when none is pending.
	SetFlash(ctx context.Context, id string, f models.Flash) error
	TakeFlash(ctx context.Context, id string) (models.Flash, error)
	Close() error
}

// Manager hands out Handles for incoming requests.
type Manager struct {
	store        Store
	secureCookie bool
}

// NewManager creates a Manager over store.
func NewManager(store Store, secureCookie bool) *Manager {
	return &Manager{store: store, secureCookie: secureCookie}
}

// Handle returns the session handle for the request's browser, issuing a new
// browser id cookie when the request has none.
func (m *Manager) Handle(w http.ResponseWriter, r *http.Request) *Handle {
	if id, ok := browserID(r); ok {
		return &Handle{store: m.store, id: id}
	}
	return m.issue(w)
}

// Renew drops whatever the request's browser id holds and issues a new id.
// Login stores the token under the renewed handle only, so an id chosen
// before authentication never carries a token.
func (m *Manager) Renew(w http.ResponseWriter, r *http.Request) (*Handle, error) {
	if id, ok := browserID(r); ok {
		if err := m.store.Clear(r.Context(), id); err != nil {
			return nil, err
		}
	}
	return m.issue(w), nil
}

func (m *Manager) issue(w http.ResponseWriter) *Handle {
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieLifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return &Handle{store: m.store, id: id}
}

func browserID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}

// Handle is the session of one browser.
type Handle struct {
	store Store
	id    string
}

// ID returns the browser id.
func (h *Handle) ID() string {
	return h.id
}

// Get returns the stored session. The username is dropped when no token is
// stored.
func (h *Handle) Get(ctx context.Context) (models.Session, error) {
	s, err := h.store.Get(ctx, h.id)
	if err != nil {
		return models.Session{}, err
	}
	return s.Normalize(), nil
}

// Set stores token and username for this browser.
func (h *Handle) Set(ctx context.Context, token, username string) error {
	if token == "" {
		return ErrEmptyToken
	}
	return h.store.Set(ctx, h.id, token, username)
}

// Clear removes the stored session.
func (h *Handle) Clear(ctx context.Context) error {
	return h.store.Clear(ctx, h.id)
}

// SetFlash leaves f for the next render.
func (h *Handle) SetFlash(ctx context.Context, f models.Flash) error {
	return h.store.SetFlash(ctx, h.id, f)
}

// TakeFlash returns and removes the pending flash.
func (h *Handle) TakeFlash(ctx context.Context) (models.Flash, error) {
	return h.store.TakeFlash(ctx, h.id)
}
