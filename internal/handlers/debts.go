package handlers

import (
	"net/http"
	"strconv"

	"debt-tracker/internal/dashboard"
	"debt-tracker/internal/forms"
	"debt-tracker/internal/models"
	"debt-tracker/internal/session"
)

// Messages shown after dashboard mutations.
const (
	DebtAddedMessage     = "Debt added successfully!"
	DebtPaidMessage      = "Debt paid successfully!"
	DebtAddFailedMessage = "Could not add the debt."
	DebtPayFailedMessage = "Could not mark the debt as paid."
)

// Bounds of the number of rows shown in the split calculator.
const (
	defaultSplitRows = 2
	maxSplitRows     = 10
)

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	*dashboard.View
	Alert     *Alert
	SplitRows int
}

// Dashboard renders the summary, the debt list and the forms, together with
// the alert left by the last mutation.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request, sess *session.Handle, s models.Session) {
	flash, err := sess.TakeFlash(r.Context())
	if err != nil {
		h.logger.Error("Failed to read flash", "user", s.Username, "error", err)
	}

	view := dashboard.Load(r.Context(), h.api, s, h.logger)
	if flash.PaidID != 0 {
		view.RemoveDebt(flash.PaidID)
	}

	var alert *Alert
	if flash.Message != "" {
		alert = &Alert{Message: flash.Message, CloseURL: dashboardURL(r), Error: flash.Error}
	}
	h.render(w, "dashboard.html", DashboardViewModel{
		View:      view,
		Alert:     alert,
		SplitRows: splitRows(r),
	})
}

// CreateDebt records a debt owed by the selected borrower to the current
// user.
func (h *Handlers) CreateDebt(w http.ResponseWriter, r *http.Request, sess *session.Handle, s models.Session) {
	if err := r.ParseForm(); err != nil {
		h.backToDashboard(w, r, sess, failure(InvalidFormMessage))
		return
	}

	f, err := forms.DebtFromValues(r.PostForm)
	if err == nil {
		err = f.Validate()
	}
	if err != nil {
		h.backToDashboard(w, r, sess, failure(err.Error()))
		return
	}

	draft := models.DebtDraft{
		Title:    f.Title,
		Receiver: s.Username,
		Amount:   f.Amount,
		UserID:   f.BorrowerID,
	}
	if err := h.api.CreateDebt(r.Context(), s.Token, draft); err != nil {
		h.logger.Error("Failed to create debt", "user", s.Username, "borrower_id", f.BorrowerID, "error", err)
		h.backToDashboard(w, r, sess, failure(userMessage(err, DebtAddFailedMessage)))
		return
	}

	h.logger.Info("Debt created", "user", s.Username, "borrower_id", f.BorrowerID, "amount", f.Amount)
	h.backToDashboard(w, r, sess, success(DebtAddedMessage))
}

// PayDebt marks a debt as paid by deleting it on the backend.
func (h *Handlers) PayDebt(w http.ResponseWriter, r *http.Request, sess *session.Handle, s models.Session) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.backToDashboard(w, r, sess, failure("Invalid debt id"))
		return
	}

	if err := h.api.DeleteDebt(r.Context(), s.Token, id); err != nil {
		h.logger.Error("Failed to pay debt", "user", s.Username, "debt_id", id, "error", err)
		h.backToDashboard(w, r, sess, failure(userMessage(err, DebtPayFailedMessage)))
		return
	}

	h.logger.Info("Debt paid", "user", s.Username, "debt_id", id)
	flash := success(DebtPaidMessage)
	flash.PaidID = id
	h.backToDashboard(w, r, sess, flash)
}

// backToDashboard leaves flash for the next dashboard render and redirects
// there, so reloading the page does not repeat the mutation.
func (h *Handlers) backToDashboard(w http.ResponseWriter, r *http.Request, sess *session.Handle, flash models.Flash) {
	if err := sess.SetFlash(r.Context(), flash); err != nil {
		h.logger.Error("Failed to store flash", "message", flash.Message, "error", err)
	}
	http.Redirect(w, r, dashboardURL(r), http.StatusSeeOther)
}

// dashboardURL is the dashboard path, keeping the split calculator's row
// count when the request carries one.
func dashboardURL(r *http.Request) string {
	if r.URL.Query().Get("split") == "" {
		return "/dashboard"
	}
	return "/dashboard?split=" + strconv.Itoa(splitRows(r))
}

// splitRows reads the requested number of split calculator rows from the
// "split" query parameter.
func splitRows(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("split"))
	if err != nil || n < defaultSplitRows {
		return defaultSplitRows
	}
	return min(n, maxSplitRows)
}

func success(msg string) models.Flash {
	return models.Flash{Message: msg}
}

func failure(msg string) models.Flash {
	return models.Flash{Message: msg, Error: true}
}
