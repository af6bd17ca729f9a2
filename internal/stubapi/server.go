// Package stubapi is an in-memory implementation of the debts backend API.
//
// It serves the same routes, payloads and FastAPI-style error envelopes as
// the real backend and is used by tests, the e2e suite and local development
// (see cmd/stubapi). Nothing is persisted.
package stubapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"debt-tracker/internal/models"
)

// Error details returned by the backend.
const (
	DetailEmailTaken       = "Email already registered"
	DetailUsernameTaken    = "Username already registered"
	DetailBadCredentials   = "Invalid credentials"
	DetailBadToken         = "Could not validate credentials"
	DetailNotAuthenticated = "Not authenticated"
	DetailUserNotFound     = "User not found"
	DetailDebtNotFound     = "Debt not found"
)

// DefaultSecret signs tokens when no secret is configured.
const DefaultSecret = "stub-backend-secret"

// ErrUserExists is returned by AddUser for a taken username or email.
var ErrUserExists = errors.New("user already exists")

type user struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
}

type fault struct {
	status int
	detail string
}

// Server is the stub backend. It is safe for concurrent use.
type Server struct {
	mu         sync.Mutex
	users      []user
	debts      []models.Debt
	nextUserID int64
	nextDebtID int64
	calls      []string
	faults     map[string]fault

	tokens     *TokenManager
	bcryptCost int
	logger     *slog.Logger
	router     *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithSecret sets the token signing secret.
func WithSecret(secret string) Option {
	return func(s *Server) { s.tokens = NewTokenManager(secret, 30*time.Minute) }
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) { s.bcryptCost = cost }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates an empty stub backend.
func New(opts ...Option) *Server {
	s := &Server{
		nextUserID: 1,
		nextDebtID: 1,
		faults:     make(map[string]fault),
		tokens:     NewTokenManager(DefaultSecret, 30*time.Minute),
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.record)

	router.HandleFunc("/register", s.register).Methods(http.MethodPost)
	router.HandleFunc("/login", s.login).Methods(http.MethodPost)
	router.HandleFunc("/verifyToken/{token}", s.verifyToken).Methods(http.MethodGet)

	router.HandleFunc("/my_debts/sum", s.authed(s.debtSum)).Methods(http.MethodGet)
	router.HandleFunc("/debts", s.authed(s.listDebts)).Methods(http.MethodGet)
	router.HandleFunc("/debts", s.authed(s.createDebt)).Methods(http.MethodPost)
	router.HandleFunc("/debts/{id}", s.authed(s.deleteDebt)).Methods(http.MethodDelete)
	router.HandleFunc("/users/usernames", s.authed(s.listUsernames)).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	return router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// record logs the matched route, remembers it for Calls and applies any
// injected fault.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = r.Method + " " + tpl
			}
		}

		s.mu.Lock()
		s.calls = append(s.calls, route)
		f, failing := s.faults[route]
		s.mu.Unlock()

		s.logger.Debug("Stub backend request", "route", route, "request_id", r.Header.Get("X-Request-ID"))
		if failing {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Calls returns the routes hit so far, as "METHOD /path/{template}".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many times route was hit.
func (s *Server) CallCount(route string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == route {
			n++
		}
	}
	return n
}

// ResetCalls forgets the recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Fail makes every request to route answer status with detail until Recover
// is called. route has the form returned by Calls.
func (s *Server) Fail(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = fault{status: status, detail: detail}
}

// Recover removes the fault injected for route.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, route)
}

// AddUser registers a user directly and returns its id.
func (s *Server) AddUser(username, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username || (email != "" && u.Email == email) {
			return 0, ErrUserExists
		}
	}
	id := s.nextUserID
	s.nextUserID++
	s.users = append(s.users, user{ID: id, Username: username, Email: email, PasswordHash: hash})
	return id, nil
}

// AddDebt stores a debt directly and returns it with its id.
func (s *Server) AddDebt(draft models.DebtDraft) models.Debt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDebtLocked(draft)
}

func (s *Server) addDebtLocked(draft models.DebtDraft) models.Debt {
	d := models.Debt{
		ID:       s.nextDebtID,
		Title:    draft.Title,
		Receiver: draft.Receiver,
		Amount:   draft.Amount,
		UserID:   draft.UserID,
	}
	s.nextDebtID++
	s.debts = append(s.debts, d)
	return d
}

// Debts returns every stored debt.
func (s *Server) Debts() []models.Debt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Debt(nil), s.debts...)
}

// IssueToken returns a valid access token for username.
func (s *Server) IssueToken(username string) (string, error) {
	return s.tokens.Generate(username)
}

type registerRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, jsonInvalid(err))
		return
	}
	if missing := missingFields(map[string]*string{
		"username": req.Username, "email": req.Email, "password": req.Password,
	}, "username", "email", "password"); len(missing) > 0 {
		writeDetail(w, http.StatusUnprocessableEntity, missing)
		return
	}

	if s.emailTaken(*req.Email) {
		writeDetail(w, http.StatusBadRequest, DetailEmailTaken)
		return
	}
	if _, err := s.AddUser(*req.Username, *req.Email, *req.Password); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeDetail(w, http.StatusBadRequest, DetailUsernameTaken)
			return
		}
		s.logger.Error("Failed to add user", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User registered", "user": *req.Username})
}

func (s *Server) emailTaken(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if email != "" && u.Email == email {
			return true
		}
	}
	return false
}

type loginRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, jsonInvalid(err))
		return
	}
	if missing := missingFields(map[string]*string{
		"username": req.Username, "password": req.Password,
	}, "username", "password"); len(missing) > 0 {
		writeDetail(w, http.StatusUnprocessableEntity, missing)
		return
	}

	u, ok := s.userByName(*req.Username)
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(*req.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, DetailBadCredentials)
		return
	}

	token, err := s.tokens.Generate(u.Username)
	if err != nil {
		s.logger.Error("Failed to issue token", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tokens.Validate(mux.Vars(r)["token"]); err != nil {
		writeDetail(w, http.StatusUnauthorized, DetailBadToken)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Token is valid"})
}

func (s *Server) userByName(username string) (user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return user{}, false
}

type userKey struct{}

// authed resolves the bearer token to a user before calling next.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, DetailNotAuthenticated)
			return
		}

		username, err := s.tokens.Validate(token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, DetailBadToken)
			return
		}
		u, found := s.userByName(username)
		if !found {
			writeDetail(w, http.StatusNotFound, DetailUserNotFound)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	}
}

func currentUser(r *http.Request) user {
	u, _ := r.Context().Value(userKey{}).(user)
	return u
}

func (s *Server) debtSum(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	s.mu.Lock()
	var total float64
	for _, d := range s.debts {
		if d.UserID == u.ID {
			total += d.Amount
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, models.DebtSummary{TotalDebt: total, UserID: u.ID})
}

// listDebts returns the debts the user owes or is owed.
func (s *Server) listDebts(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)

	s.mu.Lock()
	debts := make([]models.Debt, 0, len(s.debts))
	for _, d := range s.debts {
		if d.UserID == u.ID || d.Receiver == u.Username {
			debts = append(debts, d)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string][]models.Debt{"debts": debts})
}

// createDebt accepts a JSON body or, like the query-parameter form of the
// backend, title/receiver/amount/user_id in the URL.
func (s *Server) createDebt(w http.ResponseWriter, r *http.Request) {
	var draft models.DebtDraft
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, jsonInvalid(err))
			return
		}
	} else {
		q := r.URL.Query()
		draft.Title = q.Get("title")
		draft.Receiver = q.Get("receiver")
		draft.Amount, _ = strconv.ParseFloat(q.Get("amount"), 64)
		draft.UserID, _ = strconv.ParseInt(q.Get("user_id"), 10, 64)
	}

	var missing []validationIssue
	if draft.Title == "" {
		missing = append(missing, missingField("title"))
	}
	if draft.Receiver == "" {
		missing = append(missing, missingField("receiver"))
	}
	if draft.Amount <= 0 {
		missing = append(missing, validationIssue{Loc: []any{"body", "amount"}, Msg: "Input should be greater than 0", Type: "greater_than"})
	}
	if draft.UserID <= 0 {
		missing = append(missing, missingField("user_id"))
	}
	if len(missing) > 0 {
		writeDetail(w, http.StatusUnprocessableEntity, missing)
		return
	}

	s.mu.Lock()
	known := false
	for _, u := range s.users {
		if u.ID == draft.UserID {
			known = true
			break
		}
	}
	if !known {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, DetailUserNotFound)
		return
	}
	d := s.addDebtLocked(draft)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"message": "Debt created", "debt": d})
}

func (s *Server) deleteDebt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, DetailDebtNotFound)
		return
	}

	s.mu.Lock()
	idx := -1
	for i, d := range s.debts {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.debts = append(s.debts[:idx], s.debts[idx+1:]...)
	}
	s.mu.Unlock()

	if idx < 0 {
		writeDetail(w, http.StatusNotFound, DetailDebtNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Debt deleted"})
}

func (s *Server) listUsernames(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]models.UserRef, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, models.UserRef{ID: u.ID, Username: u.Username})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string][]models.UserRef{"users": users})
}

// validationIssue is one entry of a 422 list-style detail.
type validationIssue struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

func missingField(name string) validationIssue {
	return validationIssue{Loc: []any{"body", name}, Msg: "Field required", Type: "missing"}
}

func missingFields(values map[string]*string, order ...string) []validationIssue {
	var out []validationIssue
	for _, name := range order {
		if values[name] == nil {
			out = append(out, missingField(name))
		}
	}
	return out
}

func jsonInvalid(err error) []validationIssue {
	return []validationIssue{{Loc: []any{"body"}, Msg: "JSON decode error: " + err.Error(), Type: "json_invalid"}}
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
