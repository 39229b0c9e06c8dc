// internal/notification/handler.go
package notification

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stocktrack/internal/auth"
	"stocktrack/internal/errs"
	"stocktrack/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	page, limit := web.PageParams(r)
	f := Filter{
		UnreadOnly: r.URL.Query().Get("unread") == "true",
		Page:       page,
		Limit:      limit,
	}

	notifications, pagination, err := h.service.ListForRecipient(r.Context(), actor.UserID, f)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"pagination":    pagination,
	})
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid notification ID"))
		return
	}

	if err := h.service.MarkRead(r.Context(), actor.UserID, id); err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"message": "notification marked as read"})
}

func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	count, err := h.service.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"updated": count})
}
