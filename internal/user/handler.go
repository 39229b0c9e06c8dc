// internal/user/handler.go
package user

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
	tokens  *auth.TokenManager
}

func NewHandler(service Service, tokens *auth.TokenManager) *Handler {
	return &Handler{service: service, tokens: tokens}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	u, err := h.service.Register(r.Context(), req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, u)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	u, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		web.Error(w, err)
		return
	}

	token, err := h.tokens.Issue(u.Identity())
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  u,
	})
}

// HandleMe returns the authenticated account.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	u, err := h.service.Get(r.Context(), actor.UserID)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid user ID"))
		return
	}

	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, limit := web.PageParams(r)
	q := r.URL.Query()
	f := Filter{
		Role:   q.Get("role"),
		Status: q.Get("status"),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}

	users, pagination, err := h.service.List(r.Context(), f)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"users":      users,
		"pagination": pagination,
	})
}

func (h *Handler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid user ID"))
		return
	}
	var caps auth.Capabilities
	if err := web.DecodeJSON(r, &caps); err != nil {
		web.Error(w, err)
		return
	}

	u, err := h.service.UpdatePermissions(r.Context(), id, caps)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, errs.Validation("invalid user ID"))
		return
	}
	var req UpdateRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	u, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}
