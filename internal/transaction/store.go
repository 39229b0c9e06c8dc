// internal/transaction/store.go
package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stocktrack/internal/errs"
)

// store implements Store on PostgreSQL.
type store struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewStore creates the PostgreSQL transaction store.
func NewStore(db *sql.DB) Store {
	return &store{
		db:     db,
		tracer: otel.Tracer("stocktrack/transaction/store"),
	}
}

const transactionColumns = `
	t.id, t.type, t.status, t.item_id, t.user_id, t.created_by, t.quantity,
	t.checkout_date, t.expected_return_date, t.actual_return_date,
	t.purpose, t.project, t.location, t.notes,
	t.condition_checkout, t.condition_return,
	t.approval_required, t.approved_by, t.approved_at, t.approval_notes,
	t.extensions, t.penalties,
	t.created_at, t.updated_at,
	i.name AS item_name
`

const transactionFrom = ` FROM transactions t JOIN items i ON i.id = t.item_id`

// CreateCheckout moves quantity from available to reserved and inserts
// the transaction in one database transaction. The UPDATE is
// conditional on sufficient available stock, so two concurrent
// checkouts can never over-commit an item: whoever loses the race sees
// zero rows affected and fails here with nothing to undo.
func (s *store) CreateCheckout(ctx context.Context, t *Transaction) error {
	ctx, span := s.tracer.Start(ctx, "store.create_checkout",
		trace.WithAttributes(
			attribute.String("item.id", t.ItemID.String()),
			attribute.Int("quantity", t.Quantity),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE items
		SET available_quantity = available_quantity - $2,
		    reserved_quantity = reserved_quantity + $2,
		    updated_at = NOW()
		WHERE id = $1 AND available_quantity >= $2 AND is_checkoutable = TRUE
	`, t.ItemID, t.Quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return errs.Validation("insufficient quantity for %s: requested %d", t.ItemName, t.Quantity)
	}

	extensions, penalties, err := marshalLists(t)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, type, status, item_id, user_id, created_by, quantity,
			checkout_date, expected_return_date,
			purpose, project, location, notes,
			condition_checkout, approval_required,
			extensions, penalties
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		t.ID, t.Type, t.Status, t.ItemID, t.UserID, t.CreatedBy, t.Quantity,
		t.CheckoutDate, t.ExpectedReturnDate,
		t.Purpose, t.Project, t.Location, t.Notes,
		t.Condition.Checkout, t.Approval.Required,
		extensions, penalties,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkout: %w", err)
	}
	return nil
}

// CancelCheckout reverses a committed checkout line during
// compensation of a partially failed multi-line request.
func (s *store) CancelCheckout(ctx context.Context, t *Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, t.ID, StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel transaction: %w", err)
	}

	if err := releaseStock(ctx, tx, t.ItemID, t.Quantity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}
	t.Status = StatusCancelled
	return nil
}

// Get loads one transaction with its item name joined in.
func (s *store) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+transactionFrom+` WHERE t.id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return t, nil
}

// MarkReturned finalizes the return and releases the held stock in one
// database transaction. The release is clamped so a corrupt partition
// never drives available above total or reserved below zero.
func (s *store) MarkReturned(ctx context.Context, t *Transaction) error {
	ctx, span := s.tracer.Start(ctx, "store.mark_returned",
		trace.WithAttributes(attribute.String("transaction.id", t.ID.String())),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, actual_return_date = $3, condition_return = $4,
		    notes = $5, updated_at = NOW()
		WHERE id = $1 AND status IN ($6, $7)
	`, t.ID, StatusReturned, t.ActualReturnDate, t.Condition.Return,
		t.Notes, StatusActive, StatusOverdue)
	if err != nil {
		return fmt.Errorf("failed to mark transaction returned: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return errs.InvalidState("transaction %s is no longer returnable", t.ID)
	}

	if err := releaseStock(ctx, tx, t.ItemID, t.Quantity); err != nil {
		// A deleted item must not block closing the transaction.
		if errs.KindOf(err) == errs.KindNotFound {
			log.WithFields(log.Fields{
				"transaction": t.ID,
				"item":        t.ItemID,
			}).Warn("returned item no longer exists, skipping stock release")
		} else {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit return: %w", err)
	}
	return nil
}

// MarkDecided persists an approval decision. Approval leaves the stock
// hold untouched; rejection releases it.
func (s *store) MarkDecided(ctx context.Context, t *Transaction, releaseHeld bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, approved_by = $3, approved_at = $4,
		    approval_notes = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, t.ID, t.Status, t.Approval.ApprovedBy, t.Approval.ApprovedAt,
		t.Approval.Notes, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return errs.InvalidState("transaction %s is no longer pending", t.ID)
	}

	if releaseHeld {
		if err := releaseStock(ctx, tx, t.ItemID, t.Quantity); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}
	return nil
}

// SaveExtensions persists the extension list.
func (s *store) SaveExtensions(ctx context.Context, t *Transaction) error {
	extensions, err := json.Marshal(t.Extensions)
	if err != nil {
		return fmt.Errorf("failed to marshal extensions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE transactions SET extensions = $2, updated_at = NOW() WHERE id = $1
	`, t.ID, extensions)
	if err != nil {
		return fmt.Errorf("failed to save extensions: %w", err)
	}
	return nil
}

// SavePenalties persists the penalty list.
func (s *store) SavePenalties(ctx context.Context, t *Transaction) error {
	penalties, err := json.Marshal(t.Penalties)
	if err != nil {
		return fmt.Errorf("failed to marshal penalties: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE transactions SET penalties = $2, updated_at = NOW() WHERE id = $1
	`, t.ID, penalties)
	if err != nil {
		return fmt.Errorf("failed to save penalties: %w", err)
	}
	return nil
}

// List returns transactions matching the filter, plus the unpaginated
// total.
func (s *store) List(ctx context.Context, f Filter) ([]*Transaction, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where += fmt.Sprintf(" AND t.user_id = $%d", len(args))
	}
	if f.ItemID != nil {
		args = append(args, *f.ItemID)
		where += fmt.Sprintf(" AND t.item_id = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where += fmt.Sprintf(" AND t.type = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND t.status = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*)"+transactionFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	orderBy := "t.created_at"
	if col, ok := sortColumns[f.SortBy]; ok {
		orderBy = "t." + col
	}
	direction := "ASC"
	if f.Desc {
		direction = "DESC"
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf("SELECT %s%s%s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		transactionColumns, transactionFrom, where, orderBy, direction, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// overduePredicate is the canonical overdue condition expressed in
// SQL. Status alone is never trusted: a checkout can be past due
// before any sweep runs.
const overduePredicate = `t.type = 'checkout' AND t.status IN ('active', 'overdue') AND t.expected_return_date < $1`

// ListOverdue returns every currently overdue checkout.
func (s *store) ListOverdue(ctx context.Context, now time.Time) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+transactionFrom+
			` WHERE `+overduePredicate+` ORDER BY t.expected_return_date ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListDueSoon returns active checkouts due inside the window.
func (s *store) ListDueSoon(ctx context.Context, from, to time.Time) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+transactionFrom+`
		WHERE t.type = 'checkout' AND t.status = 'active'
		  AND t.expected_return_date > $1 AND t.expected_return_date <= $2
		ORDER BY t.expected_return_date ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list due transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// MarkOverdue flips past-due active checkouts to overdue and returns
// them for notification fan-out.
func (s *store) MarkOverdue(ctx context.Context, now time.Time) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH marked AS (
			UPDATE transactions t
			SET status = 'overdue', updated_at = NOW()
			WHERE `+overduePredicate+` AND t.status = 'active'
			RETURNING t.*
		)
		SELECT `+transactionColumns+`
		FROM marked t JOIN items i ON i.id = t.item_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark overdue transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// releaseStock moves quantity from reserved back to available inside
// an open database transaction, clamped to the partition invariants.
func releaseStock(ctx context.Context, tx *sql.Tx, itemID uuid.UUID, qty int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE items
		SET available_quantity = LEAST(available_quantity + $2, total_quantity),
		    reserved_quantity = GREATEST(reserved_quantity - $2, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, itemID, qty)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return errs.NotFound("item %s not found", itemID)
	}
	return nil
}

func marshalLists(t *Transaction) ([]byte, []byte, error) {
	extensions, err := json.Marshal(t.Extensions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal extensions: %w", err)
	}
	penalties, err := json.Marshal(t.Penalties)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal penalties: %w", err)
	}
	return extensions, penalties, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	t := &Transaction{}
	var (
		project, location, notes, conditionReturn, approvalNotes sql.NullString
		extensions, penalties                                    []byte
	)
	err := row.Scan(
		&t.ID, &t.Type, &t.Status, &t.ItemID, &t.UserID, &t.CreatedBy, &t.Quantity,
		&t.CheckoutDate, &t.ExpectedReturnDate, &t.ActualReturnDate,
		&t.Purpose, &project, &location, &notes,
		&t.Condition.Checkout, &conditionReturn,
		&t.Approval.Required, &t.Approval.ApprovedBy, &t.Approval.ApprovedAt, &approvalNotes,
		&extensions, &penalties,
		&t.CreatedAt, &t.UpdatedAt,
		&t.ItemName,
	)
	if err != nil {
		return nil, err
	}
	t.Project = project.String
	t.Location = location.String
	t.Notes = notes.String
	t.Condition.Return = conditionReturn.String
	t.Approval.Notes = approvalNotes.String
	if len(extensions) > 0 {
		if err := json.Unmarshal(extensions, &t.Extensions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extensions: %w", err)
		}
	}
	if len(penalties) > 0 {
		if err := json.Unmarshal(penalties, &t.Penalties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal penalties: %w", err)
		}
	}
	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var transactions []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
