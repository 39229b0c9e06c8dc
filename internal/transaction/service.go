// internal/transaction/service.go
package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stocktrack/internal/auth"
	"stocktrack/internal/inventory"
	"stocktrack/internal/notification"
	"stocktrack/internal/web"
)

// CheckoutLine is one item request inside a checkout.
type CheckoutLine struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// CheckoutRequest is a multi-line checkout submitted by a user.
type CheckoutRequest struct {
	Items              []CheckoutLine `json:"items"`
	ExpectedReturnDate time.Time      `json:"expected_return_date"`
	Purpose            string         `json:"purpose"`
	Project            string         `json:"project,omitempty"`
	Location           string         `json:"location,omitempty"`
	Notes              string         `json:"notes,omitempty"`
}

// CheckoutResult reports the created transactions. RequiresApproval is
// true when at least one line awaits a manager decision.
type CheckoutResult struct {
	Transactions     []*Transaction `json:"transactions"`
	RequiresApproval bool           `json:"requires_approval"`
}

// ReturnRequest closes out an active checkout line.
type ReturnRequest struct {
	Condition string `json:"condition,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// DecisionRequest resolves a pending approval.
type DecisionRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes,omitempty"`
}

// ExtensionRequest asks for a later return date.
type ExtensionRequest struct {
	NewReturnDate time.Time `json:"new_return_date"`
	Reason        string    `json:"reason"`
}

// PenaltyRequest applies a fee against a transaction.
type PenaltyRequest struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

// Sortable list columns. Anything else falls back to created_at.
var sortColumns = map[string]string{
	"checkoutDate":       "checkout_date",
	"expectedReturnDate": "expected_return_date",
	"createdAt":          "created_at",
}

// Filter narrows and orders transaction listings.
type Filter struct {
	UserID *uuid.UUID
	ItemID *uuid.UUID
	Type   string
	Status string
	SortBy string
	Desc   bool
	Page   int
	Limit  int
}

// Service is the transaction engine: the only path through which item
// quantities change after item creation.
type Service interface {
	Checkout(ctx context.Context, actor auth.Identity, req CheckoutRequest) (*CheckoutResult, error)
	Return(ctx context.Context, actor auth.Identity, id uuid.UUID, req ReturnRequest) (*Transaction, error)
	Decide(ctx context.Context, actor auth.Identity, id uuid.UUID, req DecisionRequest) (*Transaction, error)
	RequestExtension(ctx context.Context, actor auth.Identity, id uuid.UUID, req ExtensionRequest) (*Transaction, error)
	ApplyPenalty(ctx context.Context, actor auth.Identity, id uuid.UUID, req PenaltyRequest) (*Transaction, error)
	MarkPenaltyPaid(ctx context.Context, actor auth.Identity, id uuid.UUID, index int) (*Transaction, error)
	Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Transaction, error)
	List(ctx context.Context, actor auth.Identity, f Filter) ([]*Transaction, *web.Pagination, error)
	ListOverdue(ctx context.Context) ([]*Transaction, error)
	SweepOverdue(ctx context.Context) ([]*Transaction, error)
	ListDueSoon(ctx context.Context, within time.Duration) ([]*Transaction, error)
}

// Store persists transactions and performs the quantity movements that
// must commit atomically with them.
type Store interface {
	// CreateCheckout inserts the transaction and, unless it is pending
	// approval with held stock already accounted, conditionally moves
	// quantity from available to reserved in the same database
	// transaction. It fails without side effects when available stock
	// no longer covers the quantity.
	CreateCheckout(ctx context.Context, t *Transaction) error

	// CancelCheckout reverses a just-created checkout line: marks the
	// transaction cancelled and moves its quantity back to available.
	CancelCheckout(ctx context.Context, t *Transaction) error

	Get(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// MarkReturned finalizes a return: status, return date, condition
	// and notes on the transaction, plus the stock release, in one
	// database transaction.
	MarkReturned(ctx context.Context, t *Transaction) error

	// MarkDecided persists an approval decision. When releaseStock is
	// true (rejection) the held quantity moves back to available.
	MarkDecided(ctx context.Context, t *Transaction, releaseStock bool) error

	SaveExtensions(ctx context.Context, t *Transaction) error
	SavePenalties(ctx context.Context, t *Transaction) error

	List(ctx context.Context, f Filter) ([]*Transaction, int, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*Transaction, error)
	ListDueSoon(ctx context.Context, from, to time.Time) ([]*Transaction, error)

	// MarkOverdue flips active past-due checkouts to overdue and
	// returns the transactions it touched.
	MarkOverdue(ctx context.Context, now time.Time) ([]*Transaction, error)
}

// ItemReader gives the engine read access to inventory.
type ItemReader interface {
	Get(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
}

// Person is the directory view of a user the engine needs for
// ownership checks and notification fan-out.
type Person struct {
	ID   uuid.UUID
	Name string
	Role string
}

// UserDirectory resolves users and the managers who receive approval
// and extension requests.
type UserDirectory interface {
	Person(ctx context.Context, id uuid.UUID) (*Person, error)
	ListItemManagers(ctx context.Context) ([]*Person, error)
}

// Notifier enqueues outbox notifications. Failures are logged and
// swallowed: a committed state change never rolls back because a
// notification could not be written.
type Notifier interface {
	Enqueue(ctx context.Context, n *notification.Notification) error
}
