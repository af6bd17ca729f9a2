package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"debt-tracker/internal/api"
	"debt-tracker/internal/auth"
	"debt-tracker/internal/dashboard"
	"debt-tracker/internal/models"
	"debt-tracker/internal/session"
)

// Messages shown for failures that carry no backend detail.
const (
	NetworkErrorMessage    = "An error occurred. Try again later."
	AuthFailedMessage      = "Authentication failed!"
	RegisterFailedMessage  = "Registration failed."
	InvalidFormMessage     = "Invalid form submission"
	RegisterSuccessMessage = "Successfully registered!"
)

// Backend is the debts backend as seen by the views.
type Backend interface {
	dashboard.Backend
	auth.Verifier
	Register(ctx context.Context, username, email, password string) error
	Login(ctx context.Context, username, password string) (string, error)
	CreateDebt(ctx context.Context, token string, draft models.DebtDraft) error
	DeleteDebt(ctx context.Context, token string, id int64) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	api         Backend
	store       session.Store
	sessions    *session.Manager
	guard       *auth.Guard
	templateDir string
	logger      *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(backend Backend, store session.Store, templateDir string, secureCookie bool, logger *slog.Logger) *Handlers {
	return &Handlers{
		api:         backend,
		store:       store,
		sessions:    session.NewManager(store, secureCookie),
		guard:       auth.NewGuard(backend, logger),
		templateDir: templateDir,
		logger:      logger,
	}
}

// Alert is a modal message. Closing it navigates to CloseURL.
type Alert struct {
	Message  string
	CloseURL string
	Error    bool
}

// protectedHandler is a view that runs after the auth guard let it through.
type protectedHandler func(w http.ResponseWriter, r *http.Request, sess *session.Handle, s models.Session)

// RequireAuth runs the auth guard once and hands the verified session to
// next. Unauthenticated browsers are redirected.
func (h *Handlers) RequireAuth(next protectedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := h.sessions.Handle(w, r)
		res := h.guard.Check(r.Context(), sess)
		if res.State != auth.Authenticated {
			http.Redirect(w, r, res.Redirect, http.StatusFound)
			return
		}
		next(w, r, sess, res.Session)
	}
}

// Logout clears the session and returns to the login screen.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Handle(w, r)
	if err := sess.Clear(r.Context()); err != nil {
		h.logger.Error("Failed to clear session", "error", err)
	}
	http.Redirect(w, r, auth.LoginPath, http.StatusFound)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the session store is reachable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// userMessage picks the text shown for a failed backend call.
func userMessage(err error, fallback string) string {
	if errors.Is(err, api.ErrUnavailable) {
		return NetworkErrorMessage
	}
	return api.Message(err, fallback)
}

func (h *Handlers) render(w http.ResponseWriter, viewName string, data any) {
	tmpl, err := template.New("base.html").Funcs(funcs).ParseFiles(
		filepath.Join(h.templateDir, "base.html"),
		filepath.Join(h.templateDir, "alert.html"),
		filepath.Join(h.templateDir, viewName),
	)
	if err != nil {
		h.logger.Error("Template error", "view", viewName, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		h.logger.Error("Template execution error", "view", viewName, "error", err)
	}
}

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	},
}
