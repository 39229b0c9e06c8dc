// internal/transaction/implementation.go
package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stocktrack/internal/auth"
	"stocktrack/internal/errs"
	"stocktrack/internal/metrics"
	"stocktrack/internal/notification"
	"stocktrack/internal/web"
)

const dateLayout = "Jan 2, 2006"

// service implements the transaction engine.
type service struct {
	store    Store
	items    ItemReader
	users    UserDirectory
	notifier Notifier
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates the transaction engine.
func NewService(store Store, items ItemReader, users UserDirectory, notifier Notifier) Service {
	return &service{
		store:    store,
		items:    items,
		users:    users,
		notifier: notifier,
		tracer:   otel.Tracer("stocktrack/transaction"),
		now:      time.Now,
	}
}

// Checkout creates one transaction per requested line. Validation runs
// over every line before any stock moves; the conditional decrement in
// the store is still the authority under concurrency. When a later
// line fails, lines already committed are compensated so the request
// is all-or-nothing.
func (s *service) Checkout(ctx context.Context, actor auth.Identity, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "transaction.checkout",
		trace.WithAttributes(attribute.Int("checkout.lines", len(req.Items))),
	)
	defer span.End()

	now := s.now()
	if err := s.validateCheckout(now, req); err != nil {
		metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// Pre-flight every line so an obviously unsatisfiable request
	// fails before any quantity moves.
	type line struct {
		req  CheckoutLine
		item itemView
	}
	lines := make([]line, 0, len(req.Items))
	for _, l := range req.Items {
		item, err := s.items.Get(ctx, l.ItemID)
		if err != nil {
			metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		if err := item.CanSatisfy(l.Quantity); err != nil {
			metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		maxReturn := now.AddDate(0, 0, item.MaxCheckoutDays)
		if item.MaxCheckoutDays > 0 && req.ExpectedReturnDate.After(maxReturn) {
			metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
			return nil, errs.Validation("checkout period for %s cannot exceed %d days",
				item.Name, item.MaxCheckoutDays)
		}
		lines = append(lines, line{req: l, item: itemView{
			ID:               item.ID,
			Name:             item.Name,
			RequiresApproval: item.RequiresApproval,
		}})
	}

	result := &CheckoutResult{}
	for _, l := range lines {
		t := &Transaction{
			ID:                 uuid.New(),
			Type:               TypeCheckout,
			Status:             StatusActive,
			ItemID:             l.item.ID,
			UserID:             actor.UserID,
			CreatedBy:          actor.UserID,
			Quantity:           l.req.Quantity,
			CheckoutDate:       now,
			ExpectedReturnDate: req.ExpectedReturnDate,
			Purpose:            req.Purpose,
			Project:            req.Project,
			Location:           req.Location,
			Notes:              req.Notes,
			Condition:          Condition{Checkout: "good"},
			ItemName:           l.item.Name,
		}
		if l.item.RequiresApproval {
			t.Status = StatusPending
			t.Approval.Required = true
		}

		if err := s.store.CreateCheckout(ctx, t); err != nil {
			s.compensate(ctx, result.Transactions)
			metrics.CheckoutsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		result.Transactions = append(result.Transactions, t)
		if t.Status == StatusPending {
			result.RequiresApproval = true
		}
		metrics.CheckoutsTotal.WithLabelValues("created").Inc()
	}

	s.notifyCheckout(ctx, actor, result)
	return result, nil
}

// itemView is the slice of an item the checkout loop needs after
// pre-flight.
type itemView struct {
	ID               uuid.UUID
	Name             string
	RequiresApproval bool
}

func (s *service) validateCheckout(now time.Time, req CheckoutRequest) error {
	fields := map[string]string{}
	if len(req.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	for i, l := range req.Items {
		if l.Quantity < 1 {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "quantity must be at least 1"
		}
	}
	if req.ExpectedReturnDate.IsZero() || !req.ExpectedReturnDate.After(now) {
		fields["expected_return_date"] = "expected return date must be in the future"
	}
	if req.Purpose == "" {
		fields["purpose"] = "purpose is required"
	}
	if len(fields) > 0 {
		return errs.ValidationFields("validation failed", fields)
	}
	return nil
}

// compensate reverses already-committed lines of a partially failed
// checkout. A failed reversal is logged, not retried: the conditional
// store operations keep the quantity partition consistent either way.
func (s *service) compensate(ctx context.Context, created []*Transaction) {
	for i := len(created) - 1; i >= 0; i-- {
		t := created[i]
		if err := s.store.CancelCheckout(ctx, t); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"transaction": t.ID,
				"item":        t.ItemID,
			}).Error("failed to compensate checkout line")
		}
	}
}

// Return closes an active or overdue checkout and releases its stock.
func (s *service) Return(ctx context.Context, actor auth.Identity, id uuid.UUID, req ReturnRequest) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "transaction.return",
		trace.WithAttributes(attribute.String("transaction.id", id.String())),
	)
	defer span.End()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != actor.UserID && !actor.Elevated() {
		return nil, errs.Forbidden("you can only return your own checkouts")
	}
	if t.Type != TypeCheckout || !t.Returnable() {
		return nil, errs.InvalidState("transaction %s cannot be returned in status %s", id, t.Status)
	}

	condition := req.Condition
	if condition == "" {
		condition = t.Condition.Checkout
	}
	if condition == "" {
		condition = "good"
	}
	if !ValidReturnCondition(condition) {
		return nil, errs.Validation("invalid return condition %q", req.Condition)
	}

	now := s.now()
	t.Status = StatusReturned
	t.ActualReturnDate = &now
	t.Condition.Return = condition
	if req.Notes != "" {
		t.Notes = req.Notes
	}

	if err := s.store.MarkReturned(ctx, t); err != nil {
		return nil, err
	}
	metrics.ReturnsTotal.Inc()

	n := notification.NewOutbound(
		notification.TypeReturnConfirmation,
		"Return Confirmation",
		fmt.Sprintf("You have successfully returned %d x %s", t.Quantity, t.ItemName),
		t.UserID,
	)
	n.RelatedTransactionID = &t.ID
	n.RelatedItemID = &t.ItemID
	n.Metadata = map[string]string{
		"itemName":   t.ItemName,
		"quantity":   fmt.Sprintf("%d", t.Quantity),
		"returnDate": now.Format(dateLayout),
		"condition":  condition,
	}
	s.notify(ctx, n)

	return t, nil
}

// Decide resolves a pending approval. Approval confirms the hold
// placed at checkout time; the stock already reserved stays reserved
// and no further quantity moves. Rejection releases the hold.
func (s *service) Decide(ctx context.Context, actor auth.Identity, id uuid.UUID, req DecisionRequest) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "transaction.decide",
		trace.WithAttributes(attribute.String("transaction.id", id.String())),
	)
	defer span.End()

	if !actor.Elevated() {
		return nil, errs.Forbidden("only managers can decide approval requests")
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending || !t.Approval.Required {
		return nil, errs.InvalidState("transaction %s is not awaiting approval", id)
	}

	now := s.now()
	t.Approval.ApprovedBy = &actor.UserID
	t.Approval.ApprovedAt = &now
	t.Approval.Notes = req.Notes

	decision := "approved"
	releaseStock := false
	if req.Approve {
		t.Status = StatusActive
	} else {
		t.Status = StatusRejected
		decision = "rejected"
		releaseStock = true
	}

	if err := s.store.MarkDecided(ctx, t, releaseStock); err != nil {
		return nil, err
	}
	metrics.ApprovalsTotal.WithLabelValues(decision).Inc()

	n := notification.NewOutbound(
		notification.TypeApprovalDecision,
		"Checkout Request "+decision,
		fmt.Sprintf("Your checkout request for %d x %s has been %s", t.Quantity, t.ItemName, decision),
		t.UserID,
	)
	n.SenderID = &actor.UserID
	n.RelatedTransactionID = &t.ID
	n.RelatedItemID = &t.ItemID
	n.Priority = notification.PriorityHigh
	n.Metadata = map[string]string{
		"itemName": t.ItemName,
		"quantity": fmt.Sprintf("%d", t.Quantity),
		"decision": decision,
		"notes":    req.Notes,
	}
	s.notify(ctx, n)

	return t, nil
}

// RequestExtension appends a pending extension request. Requests are
// recorded and surfaced to managers; nothing resolves them and the
// original due date keeps driving overdue detection.
func (s *service) RequestExtension(ctx context.Context, actor auth.Identity, id uuid.UUID, req ExtensionRequest) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "transaction.request_extension",
		trace.WithAttributes(attribute.String("transaction.id", id.String())),
	)
	defer span.End()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != actor.UserID && !actor.Elevated() {
		return nil, errs.Forbidden("you can only extend your own checkouts")
	}
	if t.Type != TypeCheckout || !t.Returnable() {
		return nil, errs.InvalidState("transaction %s cannot be extended in status %s", id, t.Status)
	}
	if req.NewReturnDate.IsZero() || !req.NewReturnDate.After(t.ExpectedReturnDate) {
		return nil, errs.Validation("new return date must be after the current expected return date")
	}
	if req.Reason == "" {
		return nil, errs.Validation("a reason is required for extension requests")
	}

	t.Extensions = append(t.Extensions, Extension{
		RequestedAt:   s.now(),
		NewReturnDate: req.NewReturnDate,
		Reason:        req.Reason,
		Status:        StatusPending,
	})
	if err := s.store.SaveExtensions(ctx, t); err != nil {
		return nil, err
	}

	s.notifyManagers(ctx, notification.TypeExtensionRequest, notification.PriorityMedium,
		"Extension Request",
		fmt.Sprintf("An extension has been requested for %s", t.ItemName),
		t, map[string]string{
			"itemName":      t.ItemName,
			"newReturnDate": req.NewReturnDate.Format(dateLayout),
			"reason":        req.Reason,
		}, actor.UserID)

	return t, nil
}

// ApplyPenalty records a fee against a transaction.
func (s *service) ApplyPenalty(ctx context.Context, actor auth.Identity, id uuid.UUID, req PenaltyRequest) (*Transaction, error) {
	if !actor.Elevated() {
		return nil, errs.Forbidden("only managers can apply penalties")
	}
	switch req.Type {
	case PenaltyLateFee, PenaltyDamageFee, PenaltyReplacementCost:
	default:
		return nil, errs.Validation("invalid penalty type %q", req.Type)
	}
	if req.Amount <= 0 {
		return nil, errs.Validation("penalty amount must be positive")
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	t.Penalties = append(t.Penalties, Penalty{
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		AppliedAt:   s.now(),
		AppliedBy:   actor.UserID,
	})
	if err := s.store.SavePenalties(ctx, t); err != nil {
		return nil, err
	}

	n := notification.NewOutbound(
		notification.TypePenaltyApplied,
		"Penalty Applied",
		fmt.Sprintf("A %s penalty of %.2f has been applied to your checkout of %s",
			req.Type, req.Amount, t.ItemName),
		t.UserID,
	)
	n.SenderID = &actor.UserID
	n.RelatedTransactionID = &t.ID
	n.Priority = notification.PriorityHigh
	s.notify(ctx, n)

	return t, nil
}

// MarkPenaltyPaid settles one penalty by its position in the list.
func (s *service) MarkPenaltyPaid(ctx context.Context, actor auth.Identity, id uuid.UUID, index int) (*Transaction, error) {
	if !actor.Elevated() {
		return nil, errs.Forbidden("only managers can settle penalties")
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(t.Penalties) {
		return nil, errs.NotFound("transaction %s has no penalty %d", id, index)
	}
	if t.Penalties[index].Paid {
		return nil, errs.InvalidState("penalty %d is already paid", index)
	}

	now := s.now()
	t.Penalties[index].Paid = true
	t.Penalties[index].PaidAt = &now
	if err := s.store.SavePenalties(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one transaction, restricted to its owner unless the
// actor is elevated.
func (s *service) Get(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Transaction, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != actor.UserID && !actor.Elevated() {
		return nil, errs.Forbidden("you can only view your own transactions")
	}
	s.refreshOverdue(t)
	return t, nil
}

// List returns transactions matching the filter. Regular users only
// ever see their own rows regardless of what the filter asks for.
func (s *service) List(ctx context.Context, actor auth.Identity, f Filter) ([]*Transaction, *web.Pagination, error) {
	if !actor.Elevated() {
		f.UserID = &actor.UserID
	}
	if f.SortBy != "" {
		if _, ok := sortColumns[f.SortBy]; !ok {
			return nil, nil, errs.Validation("invalid sort field %q", f.SortBy)
		}
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}

	transactions, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range transactions {
		s.refreshOverdue(t)
	}
	return transactions, web.NewPagination(f.Page, f.Limit, total), nil
}

// ListOverdue returns every transaction that is overdue right now,
// recomputed against the clock rather than the stored status.
func (s *service) ListOverdue(ctx context.Context) ([]*Transaction, error) {
	transactions, err := s.store.ListOverdue(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for _, t := range transactions {
		t.Status = StatusOverdue
	}
	return transactions, nil
}

// SweepOverdue flips active past-due checkouts to overdue and alerts
// their holders. Run on a schedule; detection never depends on it.
func (s *service) SweepOverdue(ctx context.Context) ([]*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "transaction.sweep_overdue")
	defer span.End()

	now := s.now()
	marked, err := s.store.MarkOverdue(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, t := range marked {
		metrics.OverdueMarked.Inc()
		n := notification.NewOutbound(
			notification.TypeOverdueAlert,
			"Overdue Items Alert",
			fmt.Sprintf("Your checkout of %d x %s is overdue", t.Quantity, t.ItemName),
			t.UserID,
		)
		n.RelatedTransactionID = &t.ID
		n.RelatedItemID = &t.ItemID
		n.Priority = notification.PriorityUrgent
		n.Metadata = map[string]string{
			"itemName":           t.ItemName,
			"quantity":           fmt.Sprintf("%d", t.Quantity),
			"expectedReturnDate": t.ExpectedReturnDate.Format(dateLayout),
			"daysOverdue":        fmt.Sprintf("%d", t.DaysOverdue(now)),
		}
		s.notify(ctx, n)
	}
	return marked, nil
}

// ListDueSoon returns active checkouts whose return date falls within
// the given window from now. Feeds the reminder job.
func (s *service) ListDueSoon(ctx context.Context, within time.Duration) ([]*Transaction, error) {
	now := s.now()
	return s.store.ListDueSoon(ctx, now, now.Add(within))
}

// refreshOverdue recomputes the overdue status for display. The stored
// status is a cache; the clock is the authority.
func (s *service) refreshOverdue(t *Transaction) {
	if t.IsOverdue(s.now()) {
		t.Status = StatusOverdue
	}
}

func (s *service) notifyCheckout(ctx context.Context, actor auth.Identity, result *CheckoutResult) {
	for _, t := range result.Transactions {
		meta := map[string]string{
			"itemName":           t.ItemName,
			"quantity":           fmt.Sprintf("%d", t.Quantity),
			"expectedReturnDate": t.ExpectedReturnDate.Format(dateLayout),
			"purpose":            t.Purpose,
		}

		// Every line confirms to the requester, pending ones included;
		// the approval request to managers is an additional event.
		n := notification.NewOutbound(
			notification.TypeCheckoutConfirmation,
			"Checkout Confirmation",
			fmt.Sprintf("You have successfully checked out %d x %s", t.Quantity, t.ItemName),
			t.UserID,
		)
		n.RelatedTransactionID = &t.ID
		n.RelatedItemID = &t.ItemID
		n.Metadata = meta
		s.notify(ctx, n)

		if t.Status == StatusPending {
			s.notifyManagers(ctx, notification.TypeApprovalRequest, notification.PriorityHigh,
				"Approval Required",
				fmt.Sprintf("A checkout of %d x %s requires your approval", t.Quantity, t.ItemName),
				t, meta, actor.UserID)
		}
	}
}

// notifyManagers fans one notification out to every item manager.
func (s *service) notifyManagers(ctx context.Context, notifType, priority, title, message string, t *Transaction, meta map[string]string, sender uuid.UUID) {
	managers, err := s.users.ListItemManagers(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to list managers for notification fan-out")
		return
	}

	requester, err := s.users.Person(ctx, t.UserID)
	if err == nil {
		meta["userName"] = requester.Name
	}

	for _, m := range managers {
		n := notification.NewOutbound(notifType, title, message, m.ID)
		n.SenderID = &sender
		n.RelatedTransactionID = &t.ID
		n.RelatedItemID = &t.ItemID
		n.Priority = priority
		n.Metadata = map[string]string{"managerName": m.Name}
		for k, v := range meta {
			n.Metadata[k] = v
		}
		s.notify(ctx, n)
	}
}

// notify enqueues a notification and swallows failures. Notification
// loss is acceptable; rolling back a committed quantity change is not.
func (s *service) notify(ctx context.Context, n *notification.Notification) {
	if err := s.notifier.Enqueue(ctx, n); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"type":      n.Type,
			"recipient": n.RecipientID,
		}).Warn("failed to enqueue notification")
	}
}
