package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"debt-tracker/internal/dashboard"
	"debt-tracker/internal/forms"
	"debt-tracker/internal/models"
	"debt-tracker/internal/session"
	"debt-tracker/internal/split"
)

// Messages shown by the split calculator.
const (
	SplitEvenMessage        = "Everyone paid their share, no debts were created."
	SplitNothingPaidMessage = "Nothing was paid, there is nothing to split."
)

// Split divides what the participants paid equally and creates one debt per
// transfer needed to even everyone out.
func (h *Handlers) Split(w http.ResponseWriter, r *http.Request, sess *session.Handle, s models.Session) {
	if err := r.ParseForm(); err != nil {
		h.backToDashboard(w, r, sess, failure(InvalidFormMessage))
		return
	}

	f, err := forms.SplitFromValues(r.PostForm)
	if err == nil {
		err = f.Validate()
	}
	if err != nil {
		h.backToDashboard(w, r, sess, failure(err.Error()))
		return
	}

	contributions := make([]split.Contribution, 0, len(f.Participants))
	for _, p := range f.Participants {
		contributions = append(contributions, split.Contribution{UserID: p.UserID, Paid: p.Paid})
	}
	_, transfers, err := split.Settle(contributions)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, split.ErrNothingToSplit) {
			msg = SplitNothingPaidMessage
		}
		h.backToDashboard(w, r, sess, failure(msg))
		return
	}

	// Usernames are needed to fill in the receiver of every transfer.
	users, err := h.api.ListUsernames(r.Context(), s.Token)
	if err != nil {
		h.logger.Error("Failed to load usernames", "user", s.Username, "error", err)
		h.backToDashboard(w, r, sess, failure(userMessage(err, dashboard.UsersUnavailable)))
		return
	}
	directory := &dashboard.View{Users: users}

	drafts := make([]models.DebtDraft, 0, len(transfers))
	for _, t := range transfers {
		creditor, ok := directory.UsernameOf(t.To)
		if !ok {
			h.backToDashboard(w, r, sess, failure(fmt.Sprintf("Unknown participant %d", t.To)))
			return
		}
		if _, ok := directory.UsernameOf(t.From); !ok {
			h.backToDashboard(w, r, sess, failure(fmt.Sprintf("Unknown participant %d", t.From)))
			return
		}
		drafts = append(drafts, models.DebtDraft{
			Title:    fmt.Sprintf("%s: debt to %s", f.Title, creditor),
			Receiver: creditor,
			Amount:   t.Amount,
			UserID:   t.From,
		})
	}

	if len(drafts) == 0 {
		h.backToDashboard(w, r, sess, success(SplitEvenMessage))
		return
	}

	for i, d := range drafts {
		if err := h.api.CreateDebt(r.Context(), s.Token, d); err != nil {
			h.logger.Error("Failed to create split debt", "user", s.Username, "title", d.Title, "created", i, "error", err)
			msg := fmt.Sprintf("%s (%d of %d debts created)", userMessage(err, DebtAddFailedMessage), i, len(drafts))
			h.backToDashboard(w, r, sess, failure(msg))
			return
		}
	}

	h.logger.Info("Split settled", "user", s.Username, "title", f.Title, "total", f.Total(),
		"participants", len(f.Participants), "debts", len(drafts))
	h.backToDashboard(w, r, sess, success(splitCreatedMessage(len(drafts))))
}

func splitCreatedMessage(n int) string {
	if n == 1 {
		return "Split done, 1 debt created."
	}
	return fmt.Sprintf("Split done, %d debts created.", n)
}
