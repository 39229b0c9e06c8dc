// internal/notification/service.go
package notification

import (
	"context"

	"github.com/google/uuid"

	"stocktrack/internal/web"
)

// Filter narrows notification listings for one recipient.
type Filter struct {
	UnreadOnly bool
	Page       int
	Limit      int
}

// Service defines the interface for the notification outbox.
type Service interface {
	Enqueue(ctx context.Context, n *Notification) error
	ListForRecipient(ctx context.Context, recipient uuid.UUID, f Filter) ([]*Notification, *web.Pagination, error)
	MarkRead(ctx context.Context, recipient, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipient uuid.UUID) (int64, error)

	// Dispatcher-facing operations.
	PendingEmail(ctx context.Context, limit int) ([]*Notification, error)
	UpdateChannels(ctx context.Context, n *Notification) error
}
