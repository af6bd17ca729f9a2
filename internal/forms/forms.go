// Package forms holds the drafts submitted by the register, login and
// dashboard views and their required-field validation.
package forms

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Messages shown when required credentials are missing.
const (
	RegisterRequiredMessage = "Username and password are required!"
	LoginRequiredMessage    = "All fields are required"
)

// ErrNotFinite is returned for amounts such as "Inf" or "NaN".
var ErrNotFinite = errors.New("amount is not a finite number")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("form"), ","); name != "" {
			return name
		}
		return strings.ToLower(f.Name)
	})
	return v
}

// ValidationError lists the fields that failed validation and the message to
// show for them.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AsValidation unwraps a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// RegisterForm is the registration draft. Email is not checked.
type RegisterForm struct {
	Username string `form:"username" validate:"required"`
	Email    string `form:"email"`
	Password string `form:"password" validate:"required"`
}

// RegisterFromValues builds a RegisterForm from submitted form values.
func RegisterFromValues(v url.Values) RegisterForm {
	return RegisterForm{
		Username: strings.TrimSpace(v.Get("username")),
		Email:    strings.TrimSpace(v.Get("email")),
		Password: v.Get("password"),
	}
}

// Validate requires a username and a password.
func (f RegisterForm) Validate() error {
	return check(f, RegisterRequiredMessage)
}

// LoginForm is the login draft.
type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// LoginFromValues builds a LoginForm from submitted form values.
func LoginFromValues(v url.Values) LoginForm {
	return LoginForm{
		Username: strings.TrimSpace(v.Get("username")),
		Password: v.Get("password"),
	}
}

// Validate requires a username and a password.
func (f LoginForm) Validate() error {
	return check(f, LoginRequiredMessage)
}

// DebtForm is the add-debt draft.
type DebtForm struct {
	Title      string  `form:"title" validate:"required,max=100"`
	Amount     float64 `form:"amount" validate:"gt=0"`
	BorrowerID int64   `form:"borrower_id" validate:"required"`
}

// DebtFromValues builds a DebtForm from submitted form values.
func DebtFromValues(v url.Values) (DebtForm, error) {
	f := DebtForm{Title: strings.TrimSpace(v.Get("title"))}

	var err error
	if f.Amount, err = parseAmount(v.Get("amount")); err != nil {
		return f, &ValidationError{Fields: []string{"amount"}, Message: "amount must be a number"}
	}
	if s := v.Get("borrower_id"); s != "" {
		if f.BorrowerID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return f, &ValidationError{Fields: []string{"borrower_id"}, Message: "borrower is invalid"}
		}
	}
	return f, nil
}

// Validate checks the title, a positive amount and a selected borrower.
func (f DebtForm) Validate() error {
	return check(f, "")
}

// SplitParticipant is one row of the split calculator.
type SplitParticipant struct {
	UserID int64   `form:"participant_id" validate:"required"`
	Paid   float64 `form:"paid" validate:"gte=0"`
}

// SplitForm is the equal-split calculator draft.
type SplitForm struct {
	Title        string             `form:"title" validate:"required,max=100"`
	Participants []SplitParticipant `form:"participants" validate:"min=2,unique=UserID,dive"`
}

// SplitFromValues builds a SplitForm from the parallel participant_id and
// paid fields. Rows without a participant are skipped.
func SplitFromValues(v url.Values) (SplitForm, error) {
	f := SplitForm{Title: strings.TrimSpace(v.Get("title"))}
	ids := v["participant_id"]
	paid := v["paid"]

	for i, idStr := range ids {
		if strings.TrimSpace(idStr) == "" {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return f, &ValidationError{Fields: []string{"participant_id"}, Message: "participant is invalid"}
		}
		var amount float64
		if i < len(paid) {
			if amount, err = parseAmount(paid[i]); err != nil {
				return f, &ValidationError{Fields: []string{"paid"}, Message: "paid must be a number"}
			}
		}
		f.Participants = append(f.Participants, SplitParticipant{UserID: id, Paid: amount})
	}
	return f, nil
}

// Validate requires a title and at least two distinct participants.
func (f SplitForm) Validate() error {
	return check(f, "")
}

// Total is the sum of what the participants paid.
func (f SplitForm) Total() float64 {
	var total float64
	for _, p := range f.Participants {
		total += p.Paid
	}
	return total
}

func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// check validates v. A non-empty message replaces the per-field messages.
func check(v any, message string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	out := &ValidationError{Fields: make([]string, 0, len(ve))}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		out.Fields = append(out.Fields, fe.Field())
		msgs = append(msgs, fieldError(fe))
	}
	out.Message = message
	if out.Message == "" {
		out.Message = strings.Join(msgs, "; ")
	}
	return out
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_id", "")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("at least %s %s are needed", fe.Param(), field)
	case "unique":
		return field + " must not repeat"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
