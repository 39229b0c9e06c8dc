// internal/transaction/domain.go
package transaction

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types.
const (
	TypeCheckout    = "checkout"
	TypeReturn      = "return"
	TypeReserve     = "reserve"
	TypeCancel      = "cancel"
	TypeMaintenance = "maintenance"
	TypeAdjustment  = "adjustment"
)

// Transaction statuses. Returned, cancelled and rejected are terminal:
// a transaction never leaves them.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusOverdue   = "overdue"
	StatusReturned  = "returned"
	StatusCancelled = "cancelled"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Return conditions.
var returnConditions = map[string]bool{
	"excellent": true,
	"good":      true,
	"fair":      true,
	"poor":      true,
	"damaged":   true,
	"lost":      true,
}

// ValidReturnCondition reports whether c is an accepted condition for
// a returned item.
func ValidReturnCondition(c string) bool {
	return returnConditions[c]
}

// Penalty types.
const (
	PenaltyLateFee         = "late_fee"
	PenaltyDamageFee       = "damage_fee"
	PenaltyReplacementCost = "replacement_cost"
)

// Condition tracks item condition at checkout and return time.
type Condition struct {
	Checkout string `json:"checkout"`
	Return   string `json:"return,omitempty"`
}

// Approval records whether and how a pending checkout was decided.
type Approval struct {
	Required   bool       `json:"required"`
	ApprovedBy *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Extension is one requested due-date change. Resolution of extension
// requests is not implemented anywhere; entries stay pending.
type Extension struct {
	RequestedAt   time.Time  `json:"requested_at"`
	NewReturnDate time.Time  `json:"new_return_date"`
	Reason        string     `json:"reason"`
	ApprovedBy    *uuid.UUID `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	Status        string     `json:"status"`
}

// Penalty is a fee applied against a transaction.
type Penalty struct {
	Type        string     `json:"type"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description"`
	AppliedAt   time.Time  `json:"applied_at"`
	AppliedBy   uuid.UUID  `json:"applied_by"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// Transaction is one checkout/return/approval/extension event for a
// single item line. Quantity is immutable after creation.
type Transaction struct {
	ID     uuid.UUID `json:"id"`
	Type   string    `json:"type"`
	Status string    `json:"status"`

	ItemID    uuid.UUID `json:"item_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedBy uuid.UUID `json:"created_by"`

	Quantity int `json:"quantity"`

	CheckoutDate       time.Time  `json:"checkout_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`

	Purpose  string `json:"purpose"`
	Project  string `json:"project,omitempty"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`

	Condition  Condition   `json:"condition"`
	Approval   Approval    `json:"approval"`
	Extensions []Extension `json:"extensions"`
	Penalties  []Penalty   `json:"penalties"`

	// Joined for responses, not always populated.
	ItemName string `json:"item_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the transaction reached a final state.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusReturned, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Returnable reports whether the transaction can be returned or
// extended right now.
func (t *Transaction) Returnable() bool {
	return t.Status == StatusActive || t.Status == StatusOverdue
}

// IsOverdue is the canonical overdue predicate. The stored status is
// only updated opportunistically, so every consumer must recompute
// this on read instead of trusting status alone.
func (t *Transaction) IsOverdue(now time.Time) bool {
	if t.Type != TypeCheckout {
		return false
	}
	if t.Status != StatusActive && t.Status != StatusOverdue {
		return false
	}
	return now.After(t.ExpectedReturnDate)
}

// DaysOverdue returns how many days past due the transaction is,
// rounded up; zero when not overdue.
func (t *Transaction) DaysOverdue(now time.Time) int {
	if !t.IsOverdue(now) {
		return 0
	}
	diff := now.Sub(t.ExpectedReturnDate)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// TotalPenalties sums the applied penalty amounts.
func (t *Transaction) TotalPenalties() float64 {
	var total float64
	for _, p := range t.Penalties {
		total += p.Amount
	}
	return total
}
