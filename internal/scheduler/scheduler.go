// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"stocktrack/internal/notification"
	"stocktrack/internal/transaction"
)

// reminderWindow is how far ahead the reminder job looks for upcoming
// return dates.
const reminderWindow = 24 * time.Hour

// Scheduler runs the periodic jobs: the overdue sweep, return
// reminders and the outbox redelivery pass.
type Scheduler struct {
	cron         *cron.Cron
	transactions transaction.Service
	notifier     transaction.Notifier
	dispatcher   *notification.Dispatcher
}

func New(transactions transaction.Service, notifier transaction.Notifier, dispatcher *notification.Dispatcher) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		transactions: transactions,
		notifier:     notifier,
		dispatcher:   dispatcher,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		{"@hourly", "overdue-sweep", s.sweepOverdue},
		{"0 9 * * *", "return-reminders", s.sendReminders},
		{"*/10 * * * *", "outbox-redelivery", s.redeliver},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.spec, func() {
			start := time.Now()
			job.run(ctx)
			log.WithFields(log.Fields{
				"job":      job.name,
				"duration": time.Since(start),
			}).Debug("scheduled job finished")
		})
		if err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepOverdue(ctx context.Context) {
	marked, err := s.transactions.SweepOverdue(ctx)
	if err != nil {
		log.WithError(err).Error("overdue sweep failed")
		return
	}
	if len(marked) > 0 {
		log.WithField("count", len(marked)).Info("marked transactions overdue")
	}
}

func (s *Scheduler) sendReminders(ctx context.Context) {
	due, err := s.transactions.ListDueSoon(ctx, reminderWindow)
	if err != nil {
		log.WithError(err).Error("return reminder query failed")
		return
	}

	for _, t := range due {
		n := notification.NewOutbound(
			notification.TypeReturnReminder,
			"Return Reminder",
			fmt.Sprintf("Your checkout of %d x %s is due on %s",
				t.Quantity, t.ItemName, t.ExpectedReturnDate.Format("Jan 2, 2006")),
			t.UserID,
		)
		n.RelatedTransactionID = &t.ID
		n.RelatedItemID = &t.ItemID
		n.Metadata = map[string]string{
			"itemName":           t.ItemName,
			"quantity":           fmt.Sprintf("%d", t.Quantity),
			"expectedReturnDate": t.ExpectedReturnDate.Format("Jan 2, 2006"),
		}
		if err := s.notifier.Enqueue(ctx, n); err != nil {
			log.WithError(err).WithField("transaction", t.ID).Warn("failed to enqueue return reminder")
		}
	}
}

func (s *Scheduler) redeliver(ctx context.Context) {
	s.dispatcher.DispatchPending(ctx)
}
