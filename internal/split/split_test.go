package split

import (
	"math"
	"testing"
)

func TestEqual(t *testing.T) {
	share, err := Equal(90, 3)
	if err != nil {
		t.Fatalf("Equal() error = %v", err)
	}
	if math.Abs(share-30) > 0.001 {
		t.Errorf("share = %v, want 30", share)
	}

	if _, err := Equal(90, 0); err != ErrNoParticipants {
		t.Errorf("Equal(90, 0) error = %v, want ErrNoParticipants", err)
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name          string
		contributions []Contribution
		wantErr       error
		want          []Transfer
	}{
		{
			name:          "one payer, two debtors",
			contributions: []Contribution{{UserID: 1, Paid: 30}, {UserID: 2}, {UserID: 3}},
			want: []Transfer{
				{From: 2, To: 1, Amount: 10},
				{From: 3, To: 1, Amount: 10},
			},
		},
		{
			name:          "two payers, one debtor",
			contributions: []Contribution{{UserID: 1, Paid: 40}, {UserID: 2, Paid: 20}, {UserID: 3}},
			want: []Transfer{
				{From: 3, To: 1, Amount: 20},
			},
		},
		{
			name:          "debtor split across creditors",
			contributions: []Contribution{{UserID: 1, Paid: 25}, {UserID: 2, Paid: 25}, {UserID: 3}, {UserID: 4}},
			want: []Transfer{
				{From: 3, To: 1, Amount: 12.5},
				{From: 4, To: 2, Amount: 12.5},
			},
		},
		{
			name:          "already even",
			contributions: []Contribution{{UserID: 1, Paid: 10}, {UserID: 2, Paid: 10}},
			want:          nil,
		},
		{
			name:          "thirds carry the rounding remainder on the last transfer",
			contributions: []Contribution{{UserID: 1, Paid: 10}, {UserID: 2}, {UserID: 3}},
			want: []Transfer{
				{From: 2, To: 1, Amount: 3.33},
				{From: 3, To: 1, Amount: 3.34},
			},
		},
		{
			name:          "nothing paid",
			contributions: []Contribution{{UserID: 1}, {UserID: 2}},
			wantErr:       ErrNothingToSplit,
		},
		{
			name:    "no participants",
			wantErr: ErrNoParticipants,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances, transfers, err := Settle(tt.contributions)
			if err != tt.wantErr {
				t.Fatalf("Settle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if len(balances) != len(tt.contributions) {
				t.Errorf("got %d balances, want %d", len(balances), len(tt.contributions))
			}
			if len(transfers) != len(tt.want) {
				t.Fatalf("transfers = %+v, want %+v", transfers, tt.want)
			}
			for i := range tt.want {
				got, want := transfers[i], tt.want[i]
				if got.From != want.From || got.To != want.To || math.Abs(got.Amount-want.Amount) > 0.001 {
					t.Errorf("transfer[%d] = %+v, want %+v", i, got, want)
				}
			}
		})
	}
}

func TestSettle_NetBalancesSumToZero(t *testing.T) {
	balances, _, err := Settle([]Contribution{{UserID: 1, Paid: 17.3}, {UserID: 2, Paid: 4.1}, {UserID: 3, Paid: 0}})
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	var sum float64
	for _, b := range balances {
		sum += b.Net
	}
	if math.Abs(sum) > 0.001 {
		t.Errorf("net balances sum to %v, want 0", sum)
	}
}

func TestSettle_CreditorsReceiveRoundedNet(t *testing.T) {
	contributions := []Contribution{{UserID: 1, Paid: 20}, {UserID: 2, Paid: 10}, {UserID: 3}, {UserID: 4}, {UserID: 5}, {UserID: 6}, {UserID: 7}}
	balances, transfers, err := Settle(contributions)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}

	received := make(map[int64]float64)
	for _, tr := range transfers {
		received[tr.To] += tr.Amount
	}
	for _, b := range balances {
		if b.Net <= epsilon {
			continue
		}
		want := roundCents(b.Net)
		if math.Abs(received[b.UserID]-want) > 0.001 {
			t.Errorf("creditor %d receives %.2f, want %.2f", b.UserID, received[b.UserID], want)
		}
	}
}
