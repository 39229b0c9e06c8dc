// internal/inventory/handler.go
package inventory

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

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	var item Item
	if err := web.DecodeJSON(r, &item); err != nil {
		web.Error(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), actor.UserID, &item)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid item ID"))
		return
	}

	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, item)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid item ID"))
		return
	}

	var item Item
	if err := web.DecodeJSON(r, &item); err != nil {
		web.Error(w, err)
		return
	}
	item.ID = id

	updated, err := h.service.Update(r.Context(), actor.UserID, &item)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid item ID"))
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		web.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, limit := web.PageParams(r)
	f := Filter{
		Category: r.URL.Query().Get("category"),
		Status:   r.URL.Query().Get("status"),
		Search:   r.URL.Query().Get("search"),
		Page:     page,
		Limit:    limit,
	}

	items, pagination, err := h.service.List(r.Context(), f)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": pagination,
	})
}

func (h *Handler) HandleBulkImport(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	var req struct {
		Items []*Item `json:"items"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	result, err := h.service.BulkImport(r.Context(), actor.UserID, req.Items)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, result)
}
