package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debt-tracker/internal/api"
	"debt-tracker/internal/models"
	"debt-tracker/internal/session"
	"debt-tracker/internal/storage"
	"debt-tracker/pkg/logging"
)

const templateDir = "../../web/templates"

// fakeBackend answers every backend call from its fields and records what
// was called.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	loginToken  string
	loginErr    error
	registerErr error
	verifyErr   error
	summary     models.DebtSummary
	debts       []models.Debt
	users       []models.UserRef
	createErr   error
	deleteErr   error
	created     []models.DebtDraft
	deleted     []int64
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Register(_ context.Context, _, _, _ string) error {
	f.record("register")
	return f.registerErr
}

func (f *fakeBackend) Login(_ context.Context, _, _ string) (string, error) {
	f.record("login")
	return f.loginToken, f.loginErr
}

func (f *fakeBackend) VerifyToken(_ context.Context, _ string) error {
	f.record("verify")
	return f.verifyErr
}

func (f *fakeBackend) DebtSummary(_ context.Context, _ string) (models.DebtSummary, error) {
	f.record("summary")
	return f.summary, nil
}

func (f *fakeBackend) ListDebts(_ context.Context, _ string) ([]models.Debt, error) {
	f.record("debts")
	return append([]models.Debt(nil), f.debts...), nil
}

func (f *fakeBackend) ListUsernames(_ context.Context, _ string) ([]models.UserRef, error) {
	f.record("users")
	return f.users, nil
}

func (f *fakeBackend) CreateDebt(_ context.Context, _ string, draft models.DebtDraft) error {
	f.record("create")
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, draft)
	return nil
}

func (f *fakeBackend) DeleteDebt(_ context.Context, _ string, id int64) error {
	f.record("delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fixture struct {
	backend *fakeBackend
	store   *storage.DB
	h       *Handlers
	sid     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if _, err := os.Stat(templateDir); os.IsNotExist(err) {
		t.Skip("Template directory not found, skipping handler test")
	}

	store, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	backend := &fakeBackend{}
	return &fixture{
		backend: backend,
		store:   store,
		h:       NewHandlers(backend, store, templateDir, false, logging.Discard()),
		sid:     uuid.NewString(),
	}
}

func (f *fixture) login(t *testing.T, token, username string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), f.sid, token, username))
}

func (f *fixture) request(method, target string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: f.sid})
	return req
}

func (f *fixture) session(t *testing.T) models.Session {
	t.Helper()
	s, err := f.store.Get(context.Background(), f.sid)
	require.NoError(t, err)
	return s
}

// submit runs a guarded mutation, checks that it redirects back to the
// dashboard and returns the page the browser lands on.
func (f *fixture) submit(t *testing.T, next protectedHandler, req *http.Request) string {
	t.Helper()
	w := httptest.NewRecorder()
	f.h.RequireAuth(next)(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/dashboard"), "redirected to %q", location)

	return f.dashboard(t, location)
}

func (f *fixture) dashboard(t *testing.T, target string) string {
	t.Helper()
	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Dashboard)(w, f.request(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func sidCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie set")
	return ""
}

func TestLogin_StoresSessionAndRedirects(t *testing.T) {
	f := newFixture(t)
	f.backend.loginToken = "T"

	w := httptest.NewRecorder()
	f.h.Login(w, f.request(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"secret"}}))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	s, err := f.store.Get(context.Background(), sidCookie(t, w))
	require.NoError(t, err)
	assert.Equal(t, models.Session{Token: "T", Username: "alice"}, s)
}

func TestLogin_IssuesBrowserCookie(t *testing.T) {
	f := newFixture(t)
	f.backend.loginToken = "T"

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.h.Login(w, req)

	s, err := f.store.Get(context.Background(), sidCookie(t, w))
	require.NoError(t, err)
	assert.Equal(t, "T", s.Token)
}

func TestLogin_DoesNotAdoptExistingBrowserID(t *testing.T) {
	f := newFixture(t)
	f.backend.loginToken = "VICTIM-TOKEN"
	// The id was chosen before login, e.g. planted by another site.
	require.NoError(t, f.store.Set(context.Background(), f.sid, "OTHER", "mallory"))

	w := httptest.NewRecorder()
	f.h.Login(w, f.request(http.MethodPost, "/login", url.Values{"username": {"victim"}, "password": {"secret"}}))

	require.Equal(t, http.StatusFound, w.Code)
	renewed := sidCookie(t, w)
	assert.NotEqual(t, f.sid, renewed)
	assert.Equal(t, models.Session{}, f.session(t), "the pre-login id holds no session")

	s, err := f.store.Get(context.Background(), renewed)
	require.NoError(t, err)
	assert.Equal(t, models.Session{Token: "VICTIM-TOKEN", Username: "victim"}, s)
}

func TestLoginForm_RedirectsVerifiedSession(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	w := httptest.NewRecorder()
	f.h.LoginForm(w, f.request(http.MethodGet, "/login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, []string{"verify"}, f.backend.Calls())
}

func TestLoginForm_RendersForm(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)

		w := httptest.NewRecorder()
		f.h.LoginForm(w, f.request(http.MethodGet, "/login", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `name="password"`)
		assert.Empty(t, f.backend.Calls(), "no verify request without a token")
	})

	t.Run("rejected token", func(t *testing.T) {
		f := newFixture(t)
		f.login(t, "T", "alice")
		f.backend.verifyErr = api.ErrInvalidToken

		w := httptest.NewRecorder()
		f.h.LoginForm(w, f.request(http.MethodGet, "/login", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `name="password"`)
		assert.False(t, f.session(t).Authenticated())
	})
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		err     error
		want    string
		backend bool
	}{
		{"missing password", url.Values{"username": {"alice"}}, nil, "All fields are required", false},
		{"rejected", url.Values{"username": {"alice"}, "password": {"x"}}, &api.Error{Op: "login", Status: 401, Detail: "Invalid credentials"}, "Invalid credentials", true},
		{"no detail", url.Values{"username": {"alice"}, "password": {"x"}}, &api.Error{Op: "login", Status: 500}, AuthFailedMessage, true},
		{"unreachable", url.Values{"username": {"alice"}, "password": {"x"}}, fmt.Errorf("login: %w", api.ErrUnavailable), NetworkErrorMessage, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.loginErr = tt.err

			w := httptest.NewRecorder()
			f.h.Login(w, f.request(http.MethodPost, "/login", tt.form))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
			assert.Equal(t, tt.backend, len(f.backend.Calls()) > 0)
			assert.False(t, f.session(t).Authenticated())
		})
	}
}

func TestRegister_EmptyPassword(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.h.Register(w, f.request(http.MethodPost, "/register", url.Values{"username": {"alice"}, "password": {""}}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Username and password are required!")
	assert.Empty(t, f.backend.Calls(), "no network call on validation failure")
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.h.Register(w, f.request(http.MethodPost, "/register", url.Values{
		"username": {"alice"}, "email": {"a@example.com"}, "password": {"pw"},
	}))

	body := w.Body.String()
	assert.Contains(t, body, RegisterSuccessMessage)
	assert.Contains(t, body, `href="/login"`)
	assert.Equal(t, []string{"register"}, f.backend.Calls())
}

func TestRegister_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"duplicate email", &api.Error{Op: "register", Status: 400, Detail: "Email already registered"}, "Email already registered"},
		{"no detail", &api.Error{Op: "register", Status: 500}, RegisterFailedMessage},
		{"unreachable", fmt.Errorf("register: %w", api.ErrUnavailable), NetworkErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.registerErr = tt.err

			w := httptest.NewRecorder()
			f.h.Register(w, f.request(http.MethodPost, "/register", url.Values{"username": {"alice"}, "password": {"pw"}}))

			assert.Contains(t, w.Body.String(), tt.want)
			assert.NotContains(t, w.Body.String(), RegisterSuccessMessage)
		})
	}
}

func TestGuard_NoTokenRedirectsToLogin(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Dashboard)(w, f.request(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Empty(t, f.backend.Calls(), "no verify request without a token")
}

func TestGuard_RejectedTokenClearsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	f.backend.verifyErr = api.ErrInvalidToken

	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Dashboard)(w, f.request(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, models.Session{}, f.session(t))
	assert.Equal(t, []string{"verify"}, f.backend.Calls())
}

func TestDashboard_RendersDebts(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	f.backend.summary = models.DebtSummary{TotalDebt: 12.5, UserID: 1}
	f.backend.debts = []models.Debt{{ID: 1, Title: "Pizza", Receiver: "bob", Amount: 12.5}}
	f.backend.users = []models.UserRef{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}

	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Dashboard)(w, f.request(http.MethodGet, "/dashboard", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<td>Pizza</td>")
	assert.Contains(t, body, "<td>bob</td>")
	assert.Contains(t, body, "12.5")
	assert.Contains(t, body, `action="/debts/1/pay"`)
	assert.Equal(t, []string{"verify", "summary", "debts", "users"}, f.backend.Calls())
}

func TestDashboard_RendersFullPage(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	req := f.request(http.MethodGet, "/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Dashboard)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<!DOCTYPE html>")
	assert.Contains(t, w.Body.String(), "Your total debt")
}

func TestDashboard_SplitRows(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Dashboard)(w, f.request(http.MethodGet, "/dashboard?split=4", nil))

	assert.Equal(t, 4, strings.Count(w.Body.String(), `name="participant_id"`))
	assert.Contains(t, w.Body.String(), `href="/dashboard?split=5"`)
}

func TestPayDebt_RemovesRow(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	// The backend still lists the debt on the re-fetch.
	f.backend.debts = []models.Debt{{ID: 1, Title: "Pizza", Receiver: "bob", Amount: 12.5}, {ID: 2, Title: "Taxi", Receiver: "bob", Amount: 4}}

	req := f.request(http.MethodPost, "/debts/1/pay", url.Values{})
	req.SetPathValue("id", "1")
	body := f.submit(t, f.h.PayDebt, req)

	assert.Equal(t, []int64{1}, f.backend.deleted)
	assert.Contains(t, body, DebtPaidMessage)
	assert.NotContains(t, body, `action="/debts/1/pay"`)
	assert.Contains(t, body, `action="/debts/2/pay"`)
	assert.Equal(t, []string{"verify", "delete", "verify", "summary", "debts", "users"}, f.backend.Calls())
}

func TestPayDebt_ReloadDoesNotRepeat(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	f.backend.debts = []models.Debt{{ID: 1, Title: "Pizza", Receiver: "bob", Amount: 12.5}}

	req := f.request(http.MethodPost, "/debts/1/pay", url.Values{})
	req.SetPathValue("id", "1")
	assert.Contains(t, f.submit(t, f.h.PayDebt, req), DebtPaidMessage)

	reloaded := f.dashboard(t, "/dashboard")
	assert.NotContains(t, reloaded, DebtPaidMessage, "the alert is shown once")
	assert.Equal(t, []int64{1}, f.backend.deleted, "reloading does not delete again")
}

func TestPayDebt_Failure(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	f.backend.debts = []models.Debt{{ID: 1, Title: "Pizza", Receiver: "bob", Amount: 12.5}}
	f.backend.deleteErr = &api.Error{Op: "delete_debt", Status: 404, Detail: "Debt not found"}

	req := f.request(http.MethodPost, "/debts/1/pay", url.Values{})
	req.SetPathValue("id", "1")
	body := f.submit(t, f.h.PayDebt, req)

	assert.Contains(t, body, "Debt not found")
	assert.Contains(t, body, "alert-error")
	assert.Contains(t, body, `action="/debts/1/pay"`, "list left unchanged")
}

func TestPayDebt_InvalidID(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	req := f.request(http.MethodPost, "/debts/abc/pay", url.Values{})
	req.SetPathValue("id", "abc")
	body := f.submit(t, f.h.PayDebt, req)

	assert.Contains(t, body, "Invalid debt id")
	assert.NotContains(t, f.backend.Calls(), "delete")
}

func TestCreateDebt(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	body := f.submit(t, f.h.CreateDebt, f.request(http.MethodPost, "/debts", url.Values{
		"title": {"Pizza"}, "amount": {"12.5"}, "borrower_id": {"2"},
	}))

	require.Len(t, f.backend.created, 1)
	assert.Equal(t, models.DebtDraft{Title: "Pizza", Receiver: "alice", Amount: 12.5, UserID: 2}, f.backend.created[0])
	assert.Contains(t, body, DebtAddedMessage)
}

func TestCreateDebt_Invalid(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"missing title", url.Values{"amount": {"5"}, "borrower_id": {"2"}}, "title is required"},
		{"infinite amount", url.Values{"title": {"x"}, "amount": {"Inf"}, "borrower_id": {"2"}}, "amount must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.login(t, "T", "alice")

			body := f.submit(t, f.h.CreateDebt, f.request(http.MethodPost, "/debts", tt.form))

			assert.Contains(t, body, tt.want)
			assert.NotContains(t, f.backend.Calls(), "create")
		})
	}
}

func TestCreateDebt_BackendError(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	f.backend.createErr = errors.Join(api.ErrUnavailable, errors.New("connection reset"))

	body := f.submit(t, f.h.CreateDebt, f.request(http.MethodPost, "/debts", url.Values{
		"title": {"Pizza"}, "amount": {"12.5"}, "borrower_id": {"2"},
	}))

	assert.Contains(t, body, NetworkErrorMessage)
	assert.Equal(t, "T", f.session(t).Token, "a failed mutation keeps the session")
}

func TestSplit(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")
	f.backend.users = []models.UserRef{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}, {ID: 3, Username: "carol"}}

	body := f.submit(t, f.h.Split, f.request(http.MethodPost, "/split", url.Values{
		"title":          {"Party"},
		"participant_id": {"1", "2", "3"},
		"paid":           {"30", "0", ""},
	}))

	assert.Equal(t, []models.DebtDraft{
		{Title: "Party: debt to alice", Receiver: "alice", Amount: 10, UserID: 2},
		{Title: "Party: debt to alice", Receiver: "alice", Amount: 10, UserID: 3},
	}, f.backend.created)
	assert.Contains(t, body, "Split done, 2 debts created.")
}

func TestSplit_Errors(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"nothing paid", url.Values{"title": {"x"}, "participant_id": {"1", "2"}, "paid": {"0", "0"}}, SplitNothingPaidMessage},
		{"even", url.Values{"title": {"x"}, "participant_id": {"1", "2"}, "paid": {"5", "5"}}, SplitEvenMessage},
		{"unknown participant", url.Values{"title": {"x"}, "participant_id": {"1", "9"}, "paid": {"5", "0"}}, "Unknown participant 9"},
		{"single participant", url.Values{"title": {"x"}, "participant_id": {"1"}, "paid": {"5"}}, "at least 2 participants are needed"},
		{"infinite paid", url.Values{"title": {"x"}, "participant_id": {"1", "2"}, "paid": {"Inf", "0"}}, "paid must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.login(t, "T", "alice")
			f.backend.users = []models.UserRef{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}

			body := f.submit(t, f.h.Split, f.request(http.MethodPost, "/split", tt.form))

			assert.Contains(t, body, tt.want)
			if tt.want != SplitEvenMessage {
				assert.NotContains(t, body, SplitEvenMessage)
			}
			assert.Empty(t, f.backend.created)
		})
	}
}

func TestSplit_KeepsRowCount(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	w := httptest.NewRecorder()
	f.h.RequireAuth(f.h.Split)(w, f.request(http.MethodPost, "/split?split=3", url.Values{"title": {""}}))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard?split=3", w.Header().Get("Location"))

	body := f.dashboard(t, "/dashboard?split=3")
	assert.Equal(t, 3, strings.Count(body, `name="participant_id"`))
	assert.Contains(t, body, "title is required")
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t, "T", "alice")

	w := httptest.NewRecorder()
	f.h.Logout(w, f.request(http.MethodPost, "/logout", url.Values{}))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.False(t, f.session(t).Authenticated())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
