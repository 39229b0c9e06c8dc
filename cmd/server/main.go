// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"stocktrack/internal/auth"
	"stocktrack/internal/config"
	"stocktrack/internal/inventory"
	"stocktrack/internal/mail"
	"stocktrack/internal/notification"
	"stocktrack/internal/postgres"
	"stocktrack/internal/scheduler"
	"stocktrack/internal/server"
	"stocktrack/internal/telemetry"
	"stocktrack/internal/transaction"
	"stocktrack/internal/user"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "stocktrack", cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to set up tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("failed to shut down tracing")
		}
	}()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	users := user.NewService(db)
	items := inventory.NewService(db)
	notifications := notification.NewService(db)

	directory := server.NewDirectory(users)
	transactions := transaction.NewService(transaction.NewStore(db), items, directory, notifications)

	var mailer mail.Mailer = mail.LogMailer{}
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	}
	dispatcher := notification.NewDispatcher(notifications, mailer, directory, cfg.DispatchInterval)
	go dispatcher.Run(ctx)

	jobs := scheduler.New(transactions, notifications, dispatcher)
	if err := jobs.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}
	defer jobs.Stop()

	handler := server.New(tokens, server.Handlers{
		Users:         user.NewHandler(users, tokens),
		Items:         inventory.NewHandler(items),
		Transactions:  transaction.NewHandler(transactions),
		Notifications: notification.NewHandler(notifications),
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("forced server shutdown")
		}
	}()

	log.WithField("addr", cfg.Addr).Info("starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server failed")
	}
	log.Info("server stopped")
}
