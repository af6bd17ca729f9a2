// Package dashboard loads the data shown on the dashboard view.
package dashboard

import (
	"context"
	"log/slog"

	"debt-tracker/internal/api"
	"debt-tracker/internal/models"
)

// Messages shown in place of a section that failed to load.
const (
	SummaryUnavailable = "Could not load your total debt."
	DebtsUnavailable   = "Could not load your debts."
	UsersUnavailable   = "Could not load the list of users."
)

// Backend is the subset of the API client the dashboard reads from.
type Backend interface {
	DebtSummary(ctx context.Context, token string) (models.DebtSummary, error)
	ListDebts(ctx context.Context, token string) ([]models.Debt, error)
	ListUsernames(ctx context.Context, token string) ([]models.UserRef, error)
}

// View is one load of the dashboard. A failed section keeps its zero value
// and records a message in the matching *Error field.
type View struct {
	Username string
	Summary  models.DebtSummary
	Debts    []models.Debt
	Users    []models.UserRef

	SummaryError string
	DebtsError   string
	UsersError   string
}

// Load fetches the summary, the debts and the usernames, in that order.
// Failures are logged and do not stop the remaining fetches.
func Load(ctx context.Context, b Backend, sess models.Session, logger *slog.Logger) *View {
	v := &View{Username: sess.Username}

	summary, err := b.DebtSummary(ctx, sess.Token)
	if err != nil {
		logger.Error("Failed to load debt summary", "user", sess.Username, "error", err)
		v.SummaryError = api.Message(err, SummaryUnavailable)
	} else {
		v.Summary = summary
	}

	debts, err := b.ListDebts(ctx, sess.Token)
	if err != nil {
		logger.Error("Failed to load debts", "user", sess.Username, "error", err)
		v.DebtsError = api.Message(err, DebtsUnavailable)
	} else {
		v.Debts = debts
	}

	users, err := b.ListUsernames(ctx, sess.Token)
	if err != nil {
		logger.Error("Failed to load usernames", "user", sess.Username, "error", err)
		v.UsersError = api.Message(err, UsersUnavailable)
	} else {
		v.Users = users
	}

	return v
}

// RemoveDebt drops the debt with id from the list. It reports whether a row
// was removed; removing an unknown id is a no-op.
func (v *View) RemoveDebt(id int64) bool {
	for i, d := range v.Debts {
		if d.ID == id {
			v.Debts = append(v.Debts[:i:i], v.Debts[i+1:]...)
			return true
		}
	}
	return false
}

// UsernameOf returns the name of the user with id.
func (v *View) UsernameOf(id int64) (string, bool) {
	for _, u := range v.Users {
		if u.ID == id {
			return u.Username, true
		}
	}
	return "", false
}
