// internal/server/server.go
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stocktrack/internal/auth"
	"stocktrack/internal/inventory"
	"stocktrack/internal/notification"
	"stocktrack/internal/transaction"
	"stocktrack/internal/user"
)

// Handlers bundles the per-domain HTTP handlers mounted on the router.
type Handlers struct {
	Users         *user.Handler
	Items         *inventory.Handler
	Transactions  *transaction.Handler
	Notifications *notification.Handler
}

// New builds the HTTP router. Authentication applies to everything
// under /api; write access is gated per route by capability.
func New(tokens *auth.TokenManager, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(instrument)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/auth/register", h.Users.HandleRegister)
	r.Post("/api/auth/login", h.Users.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens))

		r.Get("/api/auth/me", h.Users.HandleMe)

		r.Route("/api/users", func(r chi.Router) {
			r.Use(auth.Require(auth.CanManageUsers))
			r.Get("/", h.Users.HandleList)
			r.Get("/{id}", h.Users.HandleGet)
			r.Put("/{id}", h.Users.HandleUpdate)
			r.Put("/{id}/permissions", h.Users.HandlePermissions)
		})

		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", h.Items.HandleList)
			r.Get("/{id}", h.Items.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(auth.CanManageItems))
				r.Post("/", h.Items.HandleCreate)
				r.Post("/bulk", h.Items.HandleBulkImport)
				r.Put("/{id}", h.Items.HandleUpdate)
				r.Delete("/{id}", h.Items.HandleDelete)
			})
		})

		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", h.Transactions.HandleList)
			r.With(auth.Require(auth.ElevatedRole)).Get("/overdue", h.Transactions.HandleOverdue)
			r.Get("/{id}", h.Transactions.HandleGet)

			r.With(auth.Require(auth.CanCheckout)).Post("/checkout", h.Transactions.HandleCheckout)
			r.Post("/{id}/return", h.Transactions.HandleReturn)
			r.Post("/{id}/extend", h.Transactions.HandleExtend)

			r.Group(func(r chi.Router) {
				r.Use(auth.Require(auth.ElevatedRole))
				r.Post("/{id}/approve", h.Transactions.HandleDecide)
				r.Post("/{id}/penalties", h.Transactions.HandlePenalty)
				r.Post("/{id}/penalties/{index}/paid", h.Transactions.HandlePenaltyPaid)
			})
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", h.Notifications.HandleList)
			r.Post("/read-all", h.Notifications.HandleMarkAllRead)
			r.Post("/{id}/read", h.Notifications.HandleMarkRead)
		})
	})

	return r
}
