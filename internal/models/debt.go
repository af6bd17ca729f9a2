package models

// Debt represents money owed by one user to another, as served by the backend.
type Debt struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
	UserID   int64   `json:"user_id"`
}

// DebtSummary is the backend-computed total of the current user's debts.
type DebtSummary struct {
	TotalDebt float64 `json:"total_debt"`
	UserID    int64   `json:"user_id"`
}

// UserRef identifies a user that can be picked as a borrower.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// DebtDraft is the payload sent to the backend when creating a debt.
// Receiver is the display name of the user who is owed.
type DebtDraft struct {
	Title    string  `json:"title"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
	UserID   int64   `json:"user_id"`
}

// Session is the per-browser authentication state.
type Session struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Normalize drops the username when no token is present.
func (s Session) Normalize() Session {
	if s.Token == "" {
		return Session{}
	}
	return s
}

// Flash is a one-shot alert shown on the next dashboard render after a
// mutation redirects there.
type Flash struct {
	Message string `json:"message"`
	Error   bool   `json:"error,omitempty"`
	// PaidID is a debt the mutation deleted. It stays hidden on the next
	// render even if the backend still lists it.
	PaidID int64 `json:"paid_id,omitempty"`
}
