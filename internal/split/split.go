package split

import (
	"errors"
	"math"
)

// Amounts below this are treated as settled.
const epsilon = 0.01

var (
	ErrNoParticipants = errors.New("must have at least one participant")
	ErrNothingToSplit = errors.New("nothing was paid, nothing to split")
)

// Contribution is what one participant paid towards a shared cost.
type Contribution struct {
	UserID int64
	Paid   float64
}

// Balance is one participant's position after an equal split.
type Balance struct {
	UserID int64
	Paid   float64
	Share  float64
	Net    float64 // Positive = is owed money, negative = owes money
}

// Transfer is a debt from one participant to another.
type Transfer struct {
	From   int64 // Who owes
	To     int64 // Who is owed
	Amount float64
}

// Equal splits total among n participants.
func Equal(total float64, n int) (float64, error) {
	if n <= 0 {
		return 0, ErrNoParticipants
	}
	return total / float64(n), nil
}

// Settle splits the sum of all contributions equally and plans the
// transfers that even everyone out. Debtors are matched greedily against
// creditors, both in input order, so the result is deterministic.
func Settle(contributions []Contribution) ([]Balance, []Transfer, error) {
	if len(contributions) == 0 {
		return nil, nil, ErrNoParticipants
	}

	var total float64
	for _, c := range contributions {
		total += c.Paid
	}
	if total <= 0 {
		return nil, nil, ErrNothingToSplit
	}

	share, err := Equal(total, len(contributions))
	if err != nil {
		return nil, nil, err
	}

	balances := make([]Balance, 0, len(contributions))
	var debtors, creditors []Balance
	for _, c := range contributions {
		b := Balance{UserID: c.UserID, Paid: c.Paid, Share: share, Net: c.Paid - share}
		balances = append(balances, b)
		switch {
		case b.Net > epsilon:
			creditors = append(creditors, b)
		case b.Net < -epsilon:
			debtors = append(debtors, b)
		}
	}

	owes := make([]float64, len(debtors))
	for i, d := range debtors {
		owes[i] = -d.Net
	}
	owed := make([]float64, len(creditors))
	for j, c := range creditors {
		owed[j] = c.Net
	}

	// received tracks the rounded amount planned for each creditor so the
	// transfer that closes a creditor carries the rounding remainder.
	received := make([]float64, len(creditors))

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := math.Min(owes[i], owed[j])
		rounded := roundCents(amount)
		if owed[j]-amount < epsilon {
			rounded = roundCents(roundCents(creditors[j].Net) - received[j])
		}
		if rounded >= epsilon {
			transfers = append(transfers, Transfer{
				From:   debtors[i].UserID,
				To:     creditors[j].UserID,
				Amount: rounded,
			})
			received[j] += rounded
		}

		owes[i] -= amount
		owed[j] -= amount

		if owes[i] < epsilon {
			i++
		}
		if owed[j] < epsilon {
			j++
		}
	}

	return balances, transfers, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
