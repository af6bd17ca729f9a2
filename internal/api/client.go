// Package api is the HTTP+JSON client for the debts backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"debt-tracker/internal/metrics"
	"debt-tracker/internal/models"
)

const maxResponseBytes = 1 << 20

var (
	// ErrInvalidToken is returned by VerifyToken for any failed verification,
	// whatever the cause.
	ErrInvalidToken = errors.New("token verification failed")
	// ErrUnavailable marks transport failures and unreadable responses.
	ErrUnavailable = errors.New("backend unavailable")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Op     string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Detail)
}

// Message returns the backend's detail for err, or fallback when the backend
// gave none or was never reached.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// StatusCode returns the backend status behind err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks to the debts backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type debtsResponse struct {
	Debts []models.Debt `json:"debts"`
}

type usersResponse struct {
	Users []models.UserRef `json:"users"`
}

// Register creates a backend account.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	req := registerRequest{Username: username, Email: email, Password: password}
	return c.do(ctx, "register", http.MethodPost, "/register", "", req, nil)
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	req := loginRequest{Username: username, Password: password}
	if err := c.do(ctx, "login", http.MethodPost, "/login", "", req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("login: %w: empty access token", ErrUnavailable)
	}
	return resp.AccessToken, nil
}

// VerifyToken checks token with the backend. Every failure, including
// transport errors, wraps ErrInvalidToken.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	path := "/verifyToken/" + url.PathEscape(token)
	if err := c.do(ctx, "verify_token", http.MethodGet, path, "", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return nil
}

// DebtSummary returns the total debt of the token's user.
func (c *Client) DebtSummary(ctx context.Context, token string) (models.DebtSummary, error) {
	var summary models.DebtSummary
	err := c.do(ctx, "debt_summary", http.MethodGet, "/my_debts/sum", token, nil, &summary)
	return summary, err
}

// ListDebts returns the debts visible to the token's user, in backend order.
func (c *Client) ListDebts(ctx context.Context, token string) ([]models.Debt, error) {
	var resp debtsResponse
	if err := c.do(ctx, "list_debts", http.MethodGet, "/debts", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Debts, nil
}

// CreateDebt records a new debt.
func (c *Client) CreateDebt(ctx context.Context, token string, draft models.DebtDraft) error {
	return c.do(ctx, "create_debt", http.MethodPost, "/debts", token, draft, nil)
}

// DeleteDebt removes a debt, which marks it as paid.
func (c *Client) DeleteDebt(ctx context.Context, token string, id int64) error {
	path := "/debts/" + strconv.FormatInt(id, 10)
	return c.do(ctx, "delete_debt", http.MethodDelete, path, token, nil, nil)
}

// ListUsernames returns the users that can be picked as borrowers.
func (c *Client) ListUsernames(ctx context.Context, token string) ([]models.UserRef, error) {
	var resp usersResponse
	if err := c.do(ctx, "list_usernames", http.MethodGet, "/users/usernames", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.observe(op, "unavailable", requestID, 0, start)
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.observe(op, "unavailable", requestID, resp.StatusCode, start)
		return fmt.Errorf("%s: read response: %w: %w", op, ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(op, "rejected", requestID, resp.StatusCode, start)
		return &Error{Op: op, Status: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			c.observe(op, "unavailable", requestID, resp.StatusCode, start)
			return fmt.Errorf("%s: decode response: %w: %w", op, ErrUnavailable, err)
		}
	}
	c.observe(op, "ok", requestID, resp.StatusCode, start)
	return nil
}

func (c *Client) observe(op, outcome, requestID string, status int, start time.Time) {
	metrics.BackendRequestsTotal.WithLabelValues(op, outcome).Inc()
	c.logger.Debug("Backend request",
		"operation", op,
		"outcome", outcome,
		"status", status,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
