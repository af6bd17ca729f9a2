package handlers

import (
	"net/http"

	"debt-tracker/internal/auth"
	"debt-tracker/internal/forms"
	"debt-tracker/internal/session"
)

// RegisterViewModel holds data for the register page.
type RegisterViewModel struct {
	Username string
	Email    string
	Error    string
	Alert    *Alert
}

// RegisterForm renders the register page, which is also the entry screen.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "register.html", RegisterViewModel{})
}

// Register handles the register form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "register.html", RegisterViewModel{Error: InvalidFormMessage})
		return
	}

	f := forms.RegisterFromValues(r.PostForm)
	vm := RegisterViewModel{Username: f.Username, Email: f.Email}
	if err := f.Validate(); err != nil {
		vm.Error = err.Error()
		h.render(w, "register.html", vm)
		return
	}

	if err := h.api.Register(r.Context(), f.Username, f.Email, f.Password); err != nil {
		h.logger.Info("Registration failed", "username", f.Username, "error", err)
		vm.Error = userMessage(err, RegisterFailedMessage)
		h.render(w, "register.html", vm)
		return
	}

	h.logger.Info("User registered", "username", f.Username)
	h.render(w, "register.html", RegisterViewModel{
		Alert: &Alert{Message: RegisterSuccessMessage, CloseURL: "/login"},
	})
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Username string
	Error    string
}

// LoginForm renders the login page. A browser whose session still verifies
// goes straight to the dashboard.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(session.CookieName); err == nil {
		res := h.guard.Check(r.Context(), h.sessions.Handle(w, r))
		if res.State == auth.Authenticated {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
	}
	h.render(w, "login.html", LoginViewModel{})
}

// Login handles the login form submission. On success the token and username
// are stored in the browser's session and the browser goes to the dashboard.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, "login.html", LoginViewModel{Error: InvalidFormMessage})
		return
	}

	f := forms.LoginFromValues(r.PostForm)
	vm := LoginViewModel{Username: f.Username}
	if err := f.Validate(); err != nil {
		vm.Error = err.Error()
		h.render(w, "login.html", vm)
		return
	}

	token, err := h.api.Login(r.Context(), f.Username, f.Password)
	if err != nil {
		h.logger.Info("Login failed", "username", f.Username, "error", err)
		vm.Error = userMessage(err, AuthFailedMessage)
		h.render(w, "login.html", vm)
		return
	}

	sess, err := h.sessions.Renew(w, r)
	if err == nil {
		err = sess.Set(r.Context(), token, f.Username)
	}
	if err != nil {
		h.logger.Error("Failed to store session", "username", f.Username, "error", err)
		vm.Error = NetworkErrorMessage
		h.render(w, "login.html", vm)
		return
	}

	h.logger.Info("User logged in", "username", f.Username)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}
