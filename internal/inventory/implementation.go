// internal/inventory/implementation.go
package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stocktrack/internal/errs"
	"stocktrack/internal/web"
)

// service implements the Service interface on PostgreSQL.
type service struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewService creates a new inventory service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("stocktrack/inventory"),
	}
}

const itemColumns = `
	id, name, description, category, subcategory, sku, barcode, qr_code,
	total_quantity, available_quantity, reserved_quantity,
	unit, cost, value, location, tags,
	status, is_checkoutable, max_checkout_days, requires_approval,
	created_by, created_at, updated_at
`

// Create inserts a new item. Available stock defaults to the full
// total when the caller leaves it at zero alongside a positive total.
func (s *service) Create(ctx context.Context, createdBy uuid.UUID, item *Item) (*Item, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.create")
	defer span.End()

	if err := item.Validate(); err != nil {
		return nil, err
	}

	item.ID = uuid.New()
	if item.Status == "" {
		item.Status = StatusActive
	}
	if item.Unit == "" {
		item.Unit = "piece"
	}
	if item.MaxCheckoutDays == 0 {
		item.MaxCheckoutDays = 7
	}
	if item.AvailableQuantity == 0 && item.ReservedQuantity == 0 {
		item.AvailableQuantity = item.TotalQuantity
	}
	item.Clamp()
	item.CreatedBy = createdBy

	locationJSON, err := json.Marshal(item.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal location: %w", err)
	}

	query := `
		INSERT INTO items (
			id, name, description, category, subcategory, sku, barcode, qr_code,
			total_quantity, available_quantity, reserved_quantity,
			unit, cost, value, location, tags,
			status, is_checkoutable, max_checkout_days, requires_approval, created_by
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err = s.db.ExecContext(ctx, query,
		item.ID, item.Name, item.Description, item.Category, item.Subcategory,
		item.SKU, item.Barcode, item.QRCode,
		item.TotalQuantity, item.AvailableQuantity, item.ReservedQuantity,
		item.Unit, item.Cost, item.Value, locationJSON, pq.Array(item.Tags),
		item.Status, item.IsCheckoutable, item.MaxCheckoutDays, item.RequiresApproval,
		item.CreatedBy,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errs.Conflict("item with the same SKU, barcode or QR code already exists")
		}
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}

	span.SetAttributes(attribute.String("item.id", item.ID.String()))
	return s.Get(ctx, item.ID)
}

// Get retrieves an item by its ID.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	item, err := scanItem(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Update rewrites the item's descriptive fields and total quantity.
// The available/reserved partition is owned by the engines and is
// only adjusted here through clamping against the new total.
func (s *service) Update(ctx context.Context, modifiedBy uuid.UUID, item *Item) (*Item, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.update",
		trace.WithAttributes(attribute.String("item.id", item.ID.String())),
	)
	defer span.End()

	if err := item.Validate(); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	current.Name = item.Name
	current.Description = item.Description
	current.Category = item.Category
	current.Subcategory = item.Subcategory
	current.SKU = item.SKU
	current.Barcode = item.Barcode
	current.QRCode = item.QRCode
	current.Unit = item.Unit
	current.Cost = item.Cost
	current.Value = item.Value
	current.Location = item.Location
	current.Tags = item.Tags
	current.Status = item.Status
	current.IsCheckoutable = item.IsCheckoutable
	current.MaxCheckoutDays = item.MaxCheckoutDays
	current.RequiresApproval = item.RequiresApproval
	if err := current.SetTotalQuantity(item.TotalQuantity); err != nil {
		return nil, err
	}

	locationJSON, err := json.Marshal(current.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal location: %w", err)
	}

	query := `
		UPDATE items SET
			name = $2, description = $3, category = $4, subcategory = $5,
			sku = NULLIF($6, ''), barcode = NULLIF($7, ''), qr_code = NULLIF($8, ''),
			total_quantity = $9, available_quantity = $10, reserved_quantity = $11,
			unit = $12, cost = $13, value = $14, location = $15, tags = $16,
			status = $17, is_checkoutable = $18, max_checkout_days = $19,
			requires_approval = $20, updated_at = NOW()
		WHERE id = $1
	`
	_, err = s.db.ExecContext(ctx, query,
		current.ID, current.Name, current.Description, current.Category, current.Subcategory,
		current.SKU, current.Barcode, current.QRCode,
		current.TotalQuantity, current.AvailableQuantity, current.ReservedQuantity,
		current.Unit, current.Cost, current.Value, locationJSON, pq.Array(current.Tags),
		current.Status, current.IsCheckoutable, current.MaxCheckoutDays, current.RequiresApproval,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, errs.Conflict("item with the same SKU, barcode or QR code already exists")
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	return s.Get(ctx, item.ID)
}

// Delete removes an item unless a non-terminal transaction still
// references it.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE id = $1
		AND NOT EXISTS (
			SELECT 1 FROM transactions
			WHERE item_id = $1 AND status IN ('pending', 'active', 'overdue')
		)
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check item existence: %w", err)
		}
		if exists {
			return errs.InvalidState("item has open transactions and cannot be deleted")
		}
		return errs.NotFound("item %s not found", id)
	}
	return nil
}

// List returns items matching the filter, newest first.
func (s *service) List(ctx context.Context, f Filter) ([]*Item, *web.Pagination, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list")
	defer span.End()

	where := " WHERE 1=1"
	var args []any

	if f.Category != "" {
		args = append(args, f.Category)
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d OR category ILIKE $%d)", n, n, n)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items"+where, args...).Scan(&total); err != nil {
		return nil, nil, fmt.Errorf("failed to count items: %w", err)
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := `SELECT ` + itemColumns + ` FROM items` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	span.SetAttributes(attribute.Int("items.count", len(items)))
	return items, web.NewPagination(f.Page, f.Limit, total), nil
}

// BulkImport creates items one by one and reports a successful/failed
// split instead of aborting on the first bad row.
func (s *service) BulkImport(ctx context.Context, createdBy uuid.UUID, items []*Item) (*BulkResult, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.bulk_import",
		trace.WithAttributes(attribute.Int("items.count", len(items))),
	)
	defer span.End()

	if len(items) == 0 {
		return nil, errs.Validation("at least one item is required")
	}

	result := &BulkResult{Failed: []BulkError{}}
	for i, item := range items {
		created, err := s.Create(ctx, createdBy, item)
		if err != nil {
			result.Failed = append(result.Failed, BulkError{Index: i, Name: item.Name, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, created)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	item := &Item{}
	var sku, barcode, qrCode sql.NullString
	var locationJSON []byte
	var tags pq.StringArray

	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Category, &item.Subcategory,
		&sku, &barcode, &qrCode,
		&item.TotalQuantity, &item.AvailableQuantity, &item.ReservedQuantity,
		&item.Unit, &item.Cost, &item.Value, &locationJSON, &tags,
		&item.Status, &item.IsCheckoutable, &item.MaxCheckoutDays, &item.RequiresApproval,
		&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.SKU = sku.String
	item.Barcode = barcode.String
	item.QRCode = qrCode.String
	item.Tags = tags
	if len(locationJSON) > 0 {
		if err := json.Unmarshal(locationJSON, &item.Location); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location: %w", err)
		}
	}
	item.Refresh()
	return item, nil
}
