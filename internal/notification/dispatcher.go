// internal/notification/dispatcher.go
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"stocktrack/internal/errs"
	"stocktrack/internal/mail"
	"stocktrack/internal/metrics"
)

// Recipient is the delivery address resolved for a notification.
type Recipient struct {
	Name  string
	Email string
}

// RecipientResolver looks up delivery details for a user.
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, id uuid.UUID) (*Recipient, error)
}

// Dispatcher drains the outbox asynchronously. Engine operations never
// wait on delivery: a failed send is recorded on the channel status
// and the committed state change stands.
type Dispatcher struct {
	service  Service
	mailer   mail.Mailer
	resolver RecipientResolver
	breaker  *gobreaker.CircuitBreaker
	interval time.Duration
	batch    int
}

// NewDispatcher creates a dispatcher polling the outbox at the given
// interval. SMTP sends run behind a circuit breaker so a dead mail
// server does not stall every delivery pass.
func NewDispatcher(service Service, mailer mail.Mailer, resolver RecipientResolver, interval time.Duration) *Dispatcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.MailBreakerState.Set(state)
			log.WithFields(log.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("mail circuit breaker state changed")
		},
	})

	return &Dispatcher{
		service:  service,
		mailer:   mailer,
		resolver: resolver,
		breaker:  breaker,
		interval: interval,
		batch:    50,
	}
}

// Run polls the outbox until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchPending(ctx)
		}
	}
}

// DispatchPending performs one delivery pass over pending email
// channels. Also called by the scheduled redelivery sweep.
func (d *Dispatcher) DispatchPending(ctx context.Context) {
	pending, err := d.service.PendingEmail(ctx, d.batch)
	if err != nil {
		log.WithError(err).Error("failed to load pending notifications")
		return
	}

	for _, n := range pending {
		d.deliverEmail(ctx, n)
		if err := d.service.UpdateChannels(ctx, n); err != nil {
			log.WithError(err).WithField("notification", n.ID).Error("failed to persist channel status")
		}
	}
}

func (d *Dispatcher) deliverEmail(ctx context.Context, n *Notification) {
	channel := n.EmailChannel()
	if channel == nil || !channel.Deliverable() {
		return
	}

	now := time.Now()
	channel.Attempts++
	recipient, err := d.resolver.ResolveRecipient(ctx, n.RecipientID)
	if err != nil {
		channel.Status = ChannelFailed
		channel.Error = "unknown recipient"
		metrics.NotificationsTotal.WithLabelValues(ChannelEmail, ChannelFailed).Inc()
		log.WithError(err).WithField("recipient", n.RecipientID).Warn("failed to resolve notification recipient")
		return
	}

	data := map[string]string{"userName": recipient.Name}
	for k, v := range n.Metadata {
		data[k] = v
	}

	msg := mail.Message{To: recipient.Email}
	if mail.HasTemplate(n.Type) {
		msg.Template = n.Type
		msg.Data = data
	} else {
		msg.Subject = n.Title + " - Inventory Tracker"
		msg.HTML = "<p>Hello " + recipient.Name + ",</p><p>" + n.Message + "</p>"
	}

	_, err = d.breaker.Execute(func() (any, error) {
		return nil, d.mailer.Send(ctx, msg)
	})
	if err != nil {
		err = errs.Upstream("email delivery failed", err)
		channel.Status = ChannelFailed
		channel.Error = err.Error()
		metrics.NotificationsTotal.WithLabelValues(ChannelEmail, ChannelFailed).Inc()
		log.WithError(err).WithFields(log.Fields{
			"notification": n.ID,
			"type":         n.Type,
			"attempt":      channel.Attempts,
		}).Warn("email delivery failed")
		return
	}

	channel.Status = ChannelSent
	channel.SentAt = &now
	channel.Error = ""
	metrics.NotificationsTotal.WithLabelValues(ChannelEmail, ChannelSent).Inc()
}
