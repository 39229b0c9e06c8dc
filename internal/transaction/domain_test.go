// internal/transaction/domain_test.go
package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		txType   string
		status   string
		due      time.Time
		expected bool
	}{
		{"active past due", TypeCheckout, StatusActive, now.Add(-time.Hour), true},
		{"already marked overdue", TypeCheckout, StatusOverdue, now.Add(-48 * time.Hour), true},
		{"active not yet due", TypeCheckout, StatusActive, now.Add(time.Hour), false},
		{"due exactly now", TypeCheckout, StatusActive, now, false},
		{"returned past due", TypeCheckout, StatusReturned, now.Add(-time.Hour), false},
		{"pending past due", TypeCheckout, StatusPending, now.Add(-time.Hour), false},
		{"cancelled past due", TypeCheckout, StatusCancelled, now.Add(-time.Hour), false},
		{"non-checkout type", TypeAdjustment, StatusActive, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Type: tt.txType, Status: tt.status, ExpectedReturnDate: tt.due}
			assert.Equal(t, tt.expected, tx.IsOverdue(now))
		})
	}
}

func TestDaysOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tx := &Transaction{Type: TypeCheckout, Status: StatusActive}

	tx.ExpectedReturnDate = now.Add(-time.Hour)
	assert.Equal(t, 1, tx.DaysOverdue(now), "partial day rounds up")

	tx.ExpectedReturnDate = now.Add(-24 * time.Hour)
	assert.Equal(t, 1, tx.DaysOverdue(now), "exactly one day")

	tx.ExpectedReturnDate = now.Add(-25 * time.Hour)
	assert.Equal(t, 2, tx.DaysOverdue(now))

	tx.ExpectedReturnDate = now.Add(time.Hour)
	assert.Equal(t, 0, tx.DaysOverdue(now), "not overdue yet")
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{StatusReturned, StatusCancelled, StatusRejected}
	for _, status := range terminal {
		assert.True(t, (&Transaction{Status: status}).IsTerminal(), status)
	}
	open := []string{StatusPending, StatusActive, StatusOverdue, StatusApproved}
	for _, status := range open {
		assert.False(t, (&Transaction{Status: status}).IsTerminal(), status)
	}
}

func TestReturnable(t *testing.T) {
	assert.True(t, (&Transaction{Status: StatusActive}).Returnable())
	assert.True(t, (&Transaction{Status: StatusOverdue}).Returnable())
	assert.False(t, (&Transaction{Status: StatusPending}).Returnable())
	assert.False(t, (&Transaction{Status: StatusReturned}).Returnable())
	assert.False(t, (&Transaction{Status: StatusRejected}).Returnable())
}

func TestValidReturnCondition(t *testing.T) {
	for _, c := range []string{"excellent", "good", "fair", "poor", "damaged", "lost"} {
		assert.True(t, ValidReturnCondition(c), c)
	}
	assert.False(t, ValidReturnCondition("pristine"))
	assert.False(t, ValidReturnCondition(""))
}

func TestTotalPenalties(t *testing.T) {
	tx := &Transaction{Penalties: []Penalty{
		{Type: PenaltyLateFee, Amount: 5.50},
		{Type: PenaltyDamageFee, Amount: 20},
	}}
	assert.InDelta(t, 25.50, tx.TotalPenalties(), 0.001)
	assert.Zero(t, (&Transaction{}).TotalPenalties())
}
