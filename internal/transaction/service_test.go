// internal/transaction/service_test.go
package transaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocktrack/internal/auth"
	"stocktrack/internal/errs"
	"stocktrack/internal/inventory"
	"stocktrack/internal/notification"
)

// fakeStore is an in-memory Store sharing an item table with the
// engine's pre-flight reads. CreateCheckout performs the same
// conditional decrement the SQL store does, under a lock, so the
// concurrency behavior matches production.
type fakeStore struct {
	mu           sync.Mutex
	items        map[uuid.UUID]*inventory.Item
	transactions map[uuid.UUID]*Transaction

	// failCreateFor forces CreateCheckout to fail for one item,
	// simulating a mid-request race after pre-flight passed.
	failCreateFor uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:        map[uuid.UUID]*inventory.Item{},
		transactions: map[uuid.UUID]*Transaction{},
	}
}

func (f *fakeStore) CreateCheckout(ctx context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t.ItemID == f.failCreateFor {
		return errs.Validation("insufficient quantity for %s: requested %d", t.ItemName, t.Quantity)
	}
	item, ok := f.items[t.ItemID]
	if !ok {
		return errs.NotFound("item %s not found", t.ItemID)
	}
	if !item.IsCheckoutable || item.AvailableQuantity < t.Quantity {
		return errs.Validation("insufficient quantity for %s: requested %d", t.ItemName, t.Quantity)
	}
	item.AvailableQuantity -= t.Quantity
	item.ReservedQuantity += t.Quantity

	clone := *t
	f.transactions[t.ID] = &clone
	return nil
}

func (f *fakeStore) CancelCheckout(ctx context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.transactions[t.ID]
	if !ok {
		return errs.NotFound("transaction %s not found", t.ID)
	}
	stored.Status = StatusCancelled
	t.Status = StatusCancelled
	if item, ok := f.items[t.ItemID]; ok {
		item.Release(t.Quantity)
	}
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.transactions[id]
	if !ok {
		return nil, errs.NotFound("transaction %s not found", id)
	}
	clone := *stored
	return &clone, nil
}

func (f *fakeStore) MarkReturned(ctx context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.transactions[t.ID]
	if !ok {
		return errs.NotFound("transaction %s not found", t.ID)
	}
	if stored.Status != StatusActive && stored.Status != StatusOverdue {
		return errs.InvalidState("transaction %s is no longer returnable", t.ID)
	}
	*stored = *t
	if item, ok := f.items[t.ItemID]; ok {
		item.Release(t.Quantity)
	}
	return nil
}

func (f *fakeStore) MarkDecided(ctx context.Context, t *Transaction, releaseStock bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.transactions[t.ID]
	if !ok {
		return errs.NotFound("transaction %s not found", t.ID)
	}
	if stored.Status != StatusPending {
		return errs.InvalidState("transaction %s is no longer pending", t.ID)
	}
	*stored = *t
	if releaseStock {
		if item, ok := f.items[t.ItemID]; ok {
			item.Release(t.Quantity)
		}
	}
	return nil
}

func (f *fakeStore) SaveExtensions(ctx context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.transactions[t.ID]; ok {
		stored.Extensions = t.Extensions
	}
	return nil
}

func (f *fakeStore) SavePenalties(ctx context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.transactions[t.ID]; ok {
		stored.Penalties = t.Penalties
	}
	return nil
}

func (f *fakeStore) List(ctx context.Context, filter Filter) ([]*Transaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*Transaction
	for _, t := range f.transactions {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		clone := *t
		matched = append(matched, &clone)
	}
	return matched, len(matched), nil
}

func (f *fakeStore) ListOverdue(ctx context.Context, now time.Time) ([]*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var overdue []*Transaction
	for _, t := range f.transactions {
		if t.IsOverdue(now) {
			clone := *t
			overdue = append(overdue, &clone)
		}
	}
	return overdue, nil
}

func (f *fakeStore) ListDueSoon(ctx context.Context, from, to time.Time) ([]*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []*Transaction
	for _, t := range f.transactions {
		if t.Type == TypeCheckout && t.Status == StatusActive &&
			t.ExpectedReturnDate.After(from) && !t.ExpectedReturnDate.After(to) {
			clone := *t
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkOverdue(ctx context.Context, now time.Time) ([]*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var marked []*Transaction
	for _, t := range f.transactions {
		if t.Status == StatusActive && t.IsOverdue(now) {
			t.Status = StatusOverdue
			clone := *t
			marked = append(marked, &clone)
		}
	}
	return marked, nil
}

// fakeItems reads from the same item table the store mutates.
type fakeItems struct {
	store *fakeStore
}

func (f *fakeItems) Get(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	item, ok := f.store.items[id]
	if !ok {
		return nil, errs.NotFound("item %s not found", id)
	}
	clone := *item
	return &clone, nil
}

type fakeUsers struct {
	people   map[uuid.UUID]*Person
	managers []*Person
}

func (f *fakeUsers) Person(ctx context.Context, id uuid.UUID) (*Person, error) {
	if p, ok := f.people[id]; ok {
		return p, nil
	}
	return nil, errs.NotFound("user %s not found", id)
}

func (f *fakeUsers) ListItemManagers(ctx context.Context) ([]*Person, error) {
	return f.managers, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	enqueued []*notification.Notification
}

func (f *fakeNotifier) Enqueue(ctx context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, n)
	return nil
}

func (f *fakeNotifier) byType(notifType string) []*notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for _, n := range f.enqueued {
		if n.Type == notifType {
			out = append(out, n)
		}
	}
	return out
}

type env struct {
	store    *fakeStore
	users    *fakeUsers
	notifier *fakeNotifier
	service  *service
	now      time.Time

	user    auth.Identity
	manager auth.Identity
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := newFakeStore()
	userID := uuid.New()
	managerID := uuid.New()
	users := &fakeUsers{
		people: map[uuid.UUID]*Person{
			userID:    {ID: userID, Name: "Dana Field", Role: auth.RoleUser},
			managerID: {ID: managerID, Name: "Morgan Stone", Role: auth.RoleManager},
		},
		managers: []*Person{{ID: managerID, Name: "Morgan Stone", Role: auth.RoleManager}},
	}
	notifier := &fakeNotifier{}

	e := &env{
		store:    store,
		users:    users,
		notifier: notifier,
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		user:     auth.Identity{UserID: userID, Role: auth.RoleUser, Caps: auth.Capabilities{CanCheckout: true}},
		manager:  auth.Identity{UserID: managerID, Role: auth.RoleManager, Caps: auth.Capabilities{CanCheckout: true}},
	}
	e.service = NewService(store, &fakeItems{store: store}, users, notifier).(*service)
	e.service.now = func() time.Time { return e.now }
	return e
}

func (e *env) addItem(t *testing.T, total, available, reserved int, requiresApproval bool) *inventory.Item {
	t.Helper()
	item := &inventory.Item{
		ID:                uuid.New(),
		Name:              "Oscilloscope",
		Category:          "electronics",
		TotalQuantity:     total,
		AvailableQuantity: available,
		ReservedQuantity:  reserved,
		Status:            inventory.StatusActive,
		IsCheckoutable:    true,
		MaxCheckoutDays:   30,
		RequiresApproval:  requiresApproval,
	}
	e.store.items[item.ID] = item
	return item
}

func (e *env) checkoutRequest(item *inventory.Item, qty int) CheckoutRequest {
	return CheckoutRequest{
		Items:              []CheckoutLine{{ItemID: item.ID, Quantity: qty}},
		ExpectedReturnDate: e.now.AddDate(0, 0, 7),
		Purpose:            "lab session",
	}
}

func TestCheckoutReservesStock(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 3))
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.False(t, result.RequiresApproval)

	tx := result.Transactions[0]
	assert.Equal(t, StatusActive, tx.Status)
	assert.Equal(t, 3, tx.Quantity)
	assert.Equal(t, "good", tx.Condition.Checkout)

	assert.Equal(t, 10, item.TotalQuantity)
	assert.Equal(t, 7, item.AvailableQuantity)
	assert.Equal(t, 3, item.ReservedQuantity)

	confirmations := e.notifier.byType(notification.TypeCheckoutConfirmation)
	require.Len(t, confirmations, 1)
	assert.Equal(t, e.user.UserID, confirmations[0].RecipientID)
	assert.Contains(t, confirmations[0].Message, "3 x Oscilloscope")
}

func TestCheckoutRequiresApproval(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, true)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 2))
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)

	tx := result.Transactions[0]
	assert.Equal(t, StatusPending, tx.Status)
	assert.True(t, tx.Approval.Required)

	// Stock is held from the moment of the request, not the decision.
	assert.Equal(t, 8, item.AvailableQuantity)
	assert.Equal(t, 2, item.ReservedQuantity)

	requests := e.notifier.byType(notification.TypeApprovalRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, e.users.managers[0].ID, requests[0].RecipientID)
	assert.Equal(t, notification.PriorityHigh, requests[0].Priority)

	// The requester is confirmed for every line, pending ones included.
	confirmations := e.notifier.byType(notification.TypeCheckoutConfirmation)
	require.Len(t, confirmations, 1)
	assert.Equal(t, e.user.UserID, confirmations[0].RecipientID)
}

func TestCheckoutApprovalGateAppliesToManagers(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, true)

	result, err := e.service.Checkout(context.Background(), e.manager, e.checkoutRequest(item, 2))
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)
	assert.Equal(t, StatusPending, result.Transactions[0].Status)
	assert.True(t, result.Transactions[0].Approval.Required)
}

func TestCheckoutInsufficientQuantity(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 4, 6, false)

	_, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 5))
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	assert.Equal(t, 4, item.AvailableQuantity, "no stock moved on rejection")
	assert.Equal(t, 6, item.ReservedQuantity)
	assert.Empty(t, e.store.transactions)
}

func TestCheckoutValidation(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	tests := []struct {
		name  string
		req   CheckoutRequest
		field string
	}{
		{"no items", CheckoutRequest{ExpectedReturnDate: e.now.AddDate(0, 0, 7), Purpose: "x"}, "items"},
		{"zero quantity", CheckoutRequest{
			Items:              []CheckoutLine{{ItemID: item.ID, Quantity: 0}},
			ExpectedReturnDate: e.now.AddDate(0, 0, 7),
			Purpose:            "x",
		}, "items[0].quantity"},
		{"past return date", CheckoutRequest{
			Items:              []CheckoutLine{{ItemID: item.ID, Quantity: 1}},
			ExpectedReturnDate: e.now.AddDate(0, 0, -1),
			Purpose:            "x",
		}, "expected_return_date"},
		{"missing purpose", CheckoutRequest{
			Items:              []CheckoutLine{{ItemID: item.ID, Quantity: 1}},
			ExpectedReturnDate: e.now.AddDate(0, 0, 7),
		}, "purpose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.service.Checkout(context.Background(), e.user, tt.req)
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			assert.Contains(t, errs.FieldsOf(err), tt.field)
		})
	}
}

func TestCheckoutExceedsMaxDays(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)
	item.MaxCheckoutDays = 3

	req := e.checkoutRequest(item, 1)
	req.ExpectedReturnDate = e.now.AddDate(0, 0, 10)

	_, err := e.service.Checkout(context.Background(), e.user, req)
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	assert.Contains(t, err.Error(), "cannot exceed 3 days")
}

func TestCheckoutCompensatesEarlierLines(t *testing.T) {
	e := newEnv(t)
	first := e.addItem(t, 10, 10, 0, false)
	second := e.addItem(t, 5, 5, 0, false)
	second.Name = "Signal Generator"

	// Second line fails at commit time even though pre-flight passed,
	// as if a concurrent checkout drained it in between.
	e.store.failCreateFor = second.ID

	req := CheckoutRequest{
		Items: []CheckoutLine{
			{ItemID: first.ID, Quantity: 4},
			{ItemID: second.ID, Quantity: 2},
		},
		ExpectedReturnDate: e.now.AddDate(0, 0, 7),
		Purpose:            "field work",
	}

	_, err := e.service.Checkout(context.Background(), e.user, req)
	require.Error(t, err)

	assert.Equal(t, 10, first.AvailableQuantity, "first line compensated")
	assert.Equal(t, 0, first.ReservedQuantity)
	for _, tx := range e.store.transactions {
		assert.Equal(t, StatusCancelled, tx.Status)
	}
}

func TestConcurrentCheckoutsNeverOvercommit(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 6))
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "exactly one of two 6-unit checkouts against 10 available may succeed")
	assert.Equal(t, 4, item.AvailableQuantity)
	assert.Equal(t, 6, item.ReservedQuantity)
	assert.GreaterOrEqual(t, item.TotalQuantity, item.AvailableQuantity+item.ReservedQuantity)
}

func TestReturnReleasesStock(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 3))
	require.NoError(t, err)
	tx := result.Transactions[0]

	returned, err := e.service.Return(context.Background(), e.user, tx.ID, ReturnRequest{})
	require.NoError(t, err)

	assert.Equal(t, StatusReturned, returned.Status)
	require.NotNil(t, returned.ActualReturnDate)
	assert.Equal(t, "good", returned.Condition.Return, "defaults to checkout condition")

	assert.Equal(t, 10, item.AvailableQuantity)
	assert.Equal(t, 0, item.ReservedQuantity)

	confirmations := e.notifier.byType(notification.TypeReturnConfirmation)
	require.Len(t, confirmations, 1)
}

func TestReturnOwnership(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]

	stranger := auth.Identity{UserID: uuid.New(), Role: auth.RoleUser}
	_, err = e.service.Return(context.Background(), stranger, tx.ID, ReturnRequest{})
	require.Error(t, err)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	// A manager may process returns on behalf of anyone.
	_, err = e.service.Return(context.Background(), e.manager, tx.ID, ReturnRequest{Condition: "fair"})
	require.NoError(t, err)
}

func TestReturnRejectsNonReturnableStates(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, true)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]
	require.Equal(t, StatusPending, tx.Status)

	_, err = e.service.Return(context.Background(), e.user, tx.ID, ReturnRequest{})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestReturnInvalidCondition(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)

	_, err = e.service.Return(context.Background(), e.user, result.Transactions[0].ID,
		ReturnRequest{Condition: "pristine"})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestApproveConfirmsReservationWithoutSecondDecrement(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, true)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 2))
	require.NoError(t, err)
	tx := result.Transactions[0]
	require.Equal(t, 8, item.AvailableQuantity)
	require.Equal(t, 2, item.ReservedQuantity)

	decided, err := e.service.Decide(context.Background(), e.manager, tx.ID, DecisionRequest{Approve: true})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, decided.Status)
	require.NotNil(t, decided.Approval.ApprovedBy)
	assert.Equal(t, e.manager.UserID, *decided.Approval.ApprovedBy)

	// Approval confirms the hold placed at checkout; the partition
	// does not move again.
	assert.Equal(t, 10, item.TotalQuantity)
	assert.Equal(t, 8, item.AvailableQuantity)
	assert.Equal(t, 2, item.ReservedQuantity)

	decisions := e.notifier.byType(notification.TypeApprovalDecision)
	require.Len(t, decisions, 1)
	assert.Contains(t, decisions[0].Message, "approved")
}

func TestRejectReleasesReservation(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, true)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 2))
	require.NoError(t, err)

	decided, err := e.service.Decide(context.Background(), e.manager, result.Transactions[0].ID,
		DecisionRequest{Approve: false, Notes: "not justified"})
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, decided.Status)
	assert.Equal(t, "not justified", decided.Approval.Notes)

	assert.Equal(t, 10, item.AvailableQuantity)
	assert.Equal(t, 0, item.ReservedQuantity)
}

func TestDecideRequiresManager(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, true)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)

	_, err = e.service.Decide(context.Background(), e.user, result.Transactions[0].ID,
		DecisionRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestDecideRejectsNonPending(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)

	_, err = e.service.Decide(context.Background(), e.manager, result.Transactions[0].ID,
		DecisionRequest{Approve: true})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestExtensionStaysPending(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]
	originalDue := tx.ExpectedReturnDate

	extended, err := e.service.RequestExtension(context.Background(), e.user, tx.ID, ExtensionRequest{
		NewReturnDate: originalDue.AddDate(0, 0, 7),
		Reason:        "experiment still running",
	})
	require.NoError(t, err)

	require.Len(t, extended.Extensions, 1)
	assert.Equal(t, StatusPending, extended.Extensions[0].Status)
	assert.Equal(t, originalDue, extended.ExpectedReturnDate,
		"the original due date keeps driving overdue detection")

	requests := e.notifier.byType(notification.TypeExtensionRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, e.users.managers[0].ID, requests[0].RecipientID)
	assert.Equal(t, notification.PriorityMedium, requests[0].Priority)
}

func TestExtensionValidation(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]

	_, err = e.service.RequestExtension(context.Background(), e.user, tx.ID, ExtensionRequest{
		NewReturnDate: tx.ExpectedReturnDate.AddDate(0, 0, -1),
		Reason:        "x",
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = e.service.RequestExtension(context.Background(), e.user, tx.ID, ExtensionRequest{
		NewReturnDate: tx.ExpectedReturnDate.AddDate(0, 0, 7),
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestApplyPenalty(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]

	_, err = e.service.ApplyPenalty(context.Background(), e.user, tx.ID,
		PenaltyRequest{Type: PenaltyLateFee, Amount: 5})
	require.Error(t, err)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = e.service.ApplyPenalty(context.Background(), e.manager, tx.ID,
		PenaltyRequest{Type: "parking_fee", Amount: 5})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	penalized, err := e.service.ApplyPenalty(context.Background(), e.manager, tx.ID,
		PenaltyRequest{Type: PenaltyDamageFee, Amount: 25.5, Description: "cracked casing"})
	require.NoError(t, err)
	require.Len(t, penalized.Penalties, 1)
	assert.Equal(t, e.manager.UserID, penalized.Penalties[0].AppliedBy)
	assert.InDelta(t, 25.5, penalized.TotalPenalties(), 0.001)

	applied := e.notifier.byType(notification.TypePenaltyApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, e.user.UserID, applied[0].RecipientID)
}

func TestMarkPenaltyPaid(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]

	_, err = e.service.ApplyPenalty(context.Background(), e.manager, tx.ID,
		PenaltyRequest{Type: PenaltyLateFee, Amount: 5})
	require.NoError(t, err)

	_, err = e.service.MarkPenaltyPaid(context.Background(), e.user, tx.ID, 0)
	require.Error(t, err)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = e.service.MarkPenaltyPaid(context.Background(), e.manager, tx.ID, 3)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	paid, err := e.service.MarkPenaltyPaid(context.Background(), e.manager, tx.ID, 0)
	require.NoError(t, err)
	assert.True(t, paid.Penalties[0].Paid)
	require.NotNil(t, paid.Penalties[0].PaidAt)

	_, err = e.service.MarkPenaltyPaid(context.Background(), e.manager, tx.ID, 0)
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidState, errs.KindOf(err))
}

func TestListScopesRegularUsersToOwnRows(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	_, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	_, err = e.service.Checkout(context.Background(), e.manager, e.checkoutRequest(item, 1))
	require.NoError(t, err)

	// A regular user asking for someone else's rows still gets their own.
	other := e.manager.UserID
	transactions, _, err := e.service.List(context.Background(), e.user, Filter{UserID: &other})
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, e.user.UserID, transactions[0].UserID)

	transactions, _, err = e.service.List(context.Background(), e.manager, Filter{})
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestListRejectsUnknownSortField(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.service.List(context.Background(), e.manager, Filter{SortBy: "quantity"})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestGetRecomputesOverdueOnRead(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 1))
	require.NoError(t, err)
	tx := result.Transactions[0]

	// No sweep has run, the stored status is still active.
	e.now = e.now.AddDate(0, 0, 14)
	got, err := e.service.Get(context.Background(), e.user, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)
}

func TestSweepOverdueMarksAndAlerts(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	result, err := e.service.Checkout(context.Background(), e.user, e.checkoutRequest(item, 2))
	require.NoError(t, err)
	tx := result.Transactions[0]

	e.now = e.now.AddDate(0, 0, 10)
	marked, err := e.service.SweepOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, tx.ID, marked[0].ID)

	stored, err := e.store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, stored.Status)

	alerts := e.notifier.byType(notification.TypeOverdueAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, notification.PriorityUrgent, alerts[0].Priority)
	assert.Equal(t, "3", alerts[0].Metadata["daysOverdue"])

	// Second sweep finds nothing new to mark.
	marked, err = e.service.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, marked)
}

func TestListDueSoon(t *testing.T) {
	e := newEnv(t)
	item := e.addItem(t, 10, 10, 0, false)

	req := e.checkoutRequest(item, 1)
	req.ExpectedReturnDate = e.now.Add(12 * time.Hour)
	_, err := e.service.Checkout(context.Background(), e.user, req)
	require.NoError(t, err)

	req = e.checkoutRequest(item, 1)
	req.ExpectedReturnDate = e.now.AddDate(0, 0, 5)
	_, err = e.service.Checkout(context.Background(), e.user, req)
	require.NoError(t, err)

	due, err := e.service.ListDueSoon(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, e.now.Add(12*time.Hour), due[0].ExpectedReturnDate)
}
