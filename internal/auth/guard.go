// Package auth implements the guard that runs on entry to every protected
// view.
//
// The guard is a small state machine:
//
//	Unchecked --start--> Checking --no token--> Unauthenticated (redirect /login)
//	                     Checking --verified--> Authenticated
//	                     Checking --rejected--> Unauthenticated (session cleared, redirect /)
//
// Authenticated and Unauthenticated are terminal. A rejected token sends the
// browser to the entry screen, while a missing token sends it to the login
// screen.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"debt-tracker/internal/metrics"
	"debt-tracker/internal/models"
)

// Redirect targets.
const (
	LoginPath = "/login"
	EntryPath = "/"
)

// State is a guard state.
type State int

const (
	Unchecked State = iota
	Checking
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == Authenticated || s == Unauthenticated
}

// Event drives a transition.
type Event int

const (
	EventStart Event = iota
	EventNoToken
	EventVerified
	EventRejected
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventNoToken:
		return "no_token"
	case EventVerified:
		return "verified"
	case EventRejected:
		return "rejected"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrIllegalTransition is returned by Transition for events a state does not
// accept.
var ErrIllegalTransition = errors.New("illegal auth guard transition")

// Transition returns the state reached from s on e.
func Transition(s State, e Event) (State, error) {
	switch {
	case s == Unchecked && e == EventStart:
		return Checking, nil
	case s == Checking && e == EventNoToken:
		return Unauthenticated, nil
	case s == Checking && e == EventVerified:
		return Authenticated, nil
	case s == Checking && e == EventRejected:
		return Unauthenticated, nil
	}
	return s, fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, e, s)
}

// Verifier checks a token with the backend.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) error
}

// SessionAccess is the part of a session handle the guard needs.
type SessionAccess interface {
	Get(ctx context.Context) (models.Session, error)
	Clear(ctx context.Context) error
}

// Result is the outcome of one guard run.
type Result struct {
	State State
	// Session is set when State is Authenticated.
	Session models.Session
	// Redirect is set when State is Unauthenticated.
	Redirect string
}

// Guard validates sessions on entry to protected views.
type Guard struct {
	verifier Verifier
	logger   *slog.Logger
	observe  func(State)
}

// Option configures a Guard.
type Option func(*Guard)

// WithObserver registers fn to be called on every state the guard enters.
func WithObserver(fn func(State)) Option {
	return func(g *Guard) { g.observe = fn }
}

// NewGuard creates a Guard that verifies tokens with v.
func NewGuard(v Verifier, logger *slog.Logger, opts ...Option) *Guard {
	g := &Guard{verifier: v, logger: logger, observe: func(State) {}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check runs the guard once for a protected view.
func (g *Guard) Check(ctx context.Context, sess SessionAccess) Result {
	state := Unchecked
	g.observe(state)
	state = g.step(state, EventStart)

	s, err := sess.Get(ctx)
	if err != nil {
		g.logger.Error("Failed to read session", "error", err)
	}
	if err != nil || !s.Authenticated() {
		state = g.step(state, EventNoToken)
		return g.finish(Result{State: state, Redirect: LoginPath})
	}

	if err := g.verifier.VerifyToken(ctx, s.Token); err != nil {
		g.logger.Info("Session token rejected", "username", s.Username, "error", err)
		if err := sess.Clear(ctx); err != nil {
			g.logger.Error("Failed to clear session", "error", err)
		}
		state = g.step(state, EventRejected)
		return g.finish(Result{State: state, Redirect: EntryPath})
	}

	state = g.step(state, EventVerified)
	return g.finish(Result{State: state, Session: s})
}

func (g *Guard) step(s State, e Event) State {
	next, err := Transition(s, e)
	if err != nil {
		g.logger.Error("Auth guard", "error", err)
		return s
	}
	g.observe(next)
	return next
}

func (g *Guard) finish(r Result) Result {
	metrics.GuardOutcomesTotal.WithLabelValues(r.State.String()).Inc()
	return r
}
