// internal/notification/implementation.go
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// NewService creates a new notification service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("stocktrack/notification"),
	}
}

// Enqueue persists a notification into the outbox. The in-app channel
// is delivered by the row itself; email stays pending until the
// dispatcher picks it up.
func (s *service) Enqueue(ctx context.Context, n *Notification) error {
	ctx, span := s.tracer.Start(ctx, "notification.enqueue",
		trace.WithAttributes(attribute.String("notification.type", n.Type)),
	)
	defer span.End()

	n.ID = uuid.New()
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	now := time.Now()
	for i := range n.Channels {
		if n.Channels[i].Type == ChannelInApp && n.Channels[i].Status == ChannelPending {
			n.Channels[i].Status = ChannelDelivered
			n.Channels[i].DeliveredAt = &now
		}
	}

	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	metadataJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (
			id, type, title, message, recipient_id, sender_id,
			related_transaction_id, related_item_id,
			channels, priority, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		n.ID, n.Type, n.Title, n.Message, n.RecipientID, n.SenderID,
		n.RelatedTransactionID, n.RelatedItemID,
		channelsJSON, n.Priority, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

const notificationColumns = `
	id, type, title, message, recipient_id, sender_id,
	related_transaction_id, related_item_id,
	channels, priority, metadata, is_read, read_at, created_at
`

// ListForRecipient returns a recipient's notifications, newest first.
func (s *service) ListForRecipient(ctx context.Context, recipient uuid.UUID, f Filter) ([]*Notification, *web.Pagination, error) {
	where := " WHERE recipient_id = $1"
	args := []any{recipient}
	if f.UnreadOnly {
		where += " AND is_read = FALSE"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications"+where, args...).Scan(&total); err != nil {
		return nil, nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := `SELECT ` + notificationColumns + ` FROM notifications` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotifications(rows)
	if err != nil {
		return nil, nil, err
	}
	return notifications, web.NewPagination(f.Page, f.Limit, total), nil
}

// MarkRead flags one notification as read by its recipient.
func (s *service) MarkRead(ctx context.Context, recipient, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_id = $2
	`, id, recipient)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return errs.NotFound("notification %s not found", id)
	}
	return nil
}

// MarkAllRead flags every unread notification for the recipient.
func (s *service) MarkAllRead(ctx context.Context, recipient uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipient)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// PendingEmail returns notifications whose email channel still needs
// delivery, oldest first: never attempted, or failed with retry
// budget left.
func (s *service) PendingEmail(ctx context.Context, limit int) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE EXISTS (
			SELECT 1 FROM jsonb_array_elements(channels) AS c
			WHERE c->>'type' = 'email'
			  AND (c->>'status' = 'pending'
			       OR (c->>'status' = 'failed' AND COALESCE((c->>'attempts')::int, 0) < $2))
		)
		ORDER BY created_at ASC
		LIMIT $1
	`, limit, MaxDeliveryAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending email notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// UpdateChannels persists the channel statuses after a delivery pass.
func (s *service) UpdateChannels(ctx context.Context, n *Notification) error {
	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE notifications SET channels = $2 WHERE id = $1`, n.ID, channelsJSON)
	if err != nil {
		return fmt.Errorf("failed to update channels: %w", err)
	}
	return nil
}

func scanNotifications(rows *sql.Rows) ([]*Notification, error) {
	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		var channelsJSON, metadataJSON []byte
		err := rows.Scan(
			&n.ID, &n.Type, &n.Title, &n.Message, &n.RecipientID, &n.SenderID,
			&n.RelatedTransactionID, &n.RelatedItemID,
			&channelsJSON, &n.Priority, &metadataJSON, &n.IsRead, &n.ReadAt, &n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(channelsJSON, &n.Channels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
