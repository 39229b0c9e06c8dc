// internal/notification/domain.go
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	TypeCheckoutConfirmation = "checkout_confirmation"
	TypeReturnConfirmation   = "return_confirmation"
	TypeReturnReminder       = "return_reminder"
	TypeOverdueAlert         = "overdue_alert"
	TypeApprovalRequest      = "approval_request"
	TypeApprovalDecision     = "approval_decision"
	TypeExtensionRequest     = "extension_request"
	TypeItemAvailable        = "item_available"
	TypeMaintenanceDue       = "maintenance_due"
	TypeSystemAlert          = "system_alert"
	TypeBulkOperation        = "bulk_operation"
	TypePenaltyApplied       = "penalty_applied"
)

// Channel types.
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// Channel delivery statuses.
const (
	ChannelPending   = "pending"
	ChannelSent      = "sent"
	ChannelDelivered = "delivered"
	ChannelFailed    = "failed"
	ChannelRead      = "read"
)

// MaxDeliveryAttempts caps how often a failed channel is retried by
// the redelivery sweep before it is left terminal.
const MaxDeliveryAttempts = 5

// Priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Channel is one delivery attempt surface with its own status. A
// failed email never rolls back the state change that produced the
// notification; it is recorded here and retried by the redelivery
// sweep until the attempt cap is reached.
type Channel struct {
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Notification is one outbound message in the outbox. Engines only
// enqueue rows; the dispatcher performs delivery asynchronously.
type Notification struct {
	ID      uuid.UUID `json:"id"`
	Type    string    `json:"type"`
	Title   string    `json:"title"`
	Message string    `json:"message"`

	RecipientID uuid.UUID  `json:"recipient_id"`
	SenderID    *uuid.UUID `json:"sender_id,omitempty"`

	RelatedTransactionID *uuid.UUID `json:"related_transaction_id,omitempty"`
	RelatedItemID        *uuid.UUID `json:"related_item_id,omitempty"`

	Channels []Channel `json:"channels"`
	Priority string    `json:"priority"`

	// Metadata carries the template fields for email rendering.
	Metadata map[string]string `json:"metadata,omitempty"`

	IsRead bool       `json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewOutbound builds a notification with the default email + in-app
// channel pair, both pending.
func NewOutbound(notifType, title, message string, recipient uuid.UUID) *Notification {
	return &Notification{
		Type:        notifType,
		Title:       title,
		Message:     message,
		RecipientID: recipient,
		Priority:    PriorityMedium,
		Channels: []Channel{
			{Type: ChannelEmail, Status: ChannelPending},
			{Type: ChannelInApp, Status: ChannelPending},
		},
	}
}

// Deliverable reports whether the channel still needs a delivery
// attempt: not yet attempted, or failed with retry budget left.
func (c *Channel) Deliverable() bool {
	switch c.Status {
	case ChannelPending:
		return true
	case ChannelFailed:
		return c.Attempts < MaxDeliveryAttempts
	default:
		return false
	}
}

// EmailChannel returns a pointer to the email channel, or nil.
func (n *Notification) EmailChannel() *Channel {
	for i := range n.Channels {
		if n.Channels[i].Type == ChannelEmail {
			return &n.Channels[i]
		}
	}
	return nil
}
