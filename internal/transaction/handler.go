// internal/transaction/handler.go
package transaction

import (
	"net/http"
	"strconv"
	"time"

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

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	var req CheckoutRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	result, err := h.service.Checkout(r.Context(), actor, req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	var req ReturnRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	t, err := h.service.Return(r.Context(), actor, id, req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	var req DecisionRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	t, err := h.service.Decide(r.Context(), actor, id, req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	var req ExtensionRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	t, err := h.service.RequestExtension(r.Context(), actor, id, req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) HandlePenalty(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	var req PenaltyRequest
	if err := web.DecodeJSON(r, &req); err != nil {
		web.Error(w, err)
		return
	}

	t, err := h.service.ApplyPenalty(r.Context(), actor, id, req)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) HandlePenaltyPaid(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		web.Error(w, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		web.Error(w, errs.Validation("invalid penalty index"))
		return
	}

	t, err := h.service.MarkPenaltyPaid(r.Context(), actor, id, index)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	id, err := parseID(r)
	if err != nil {
		web.Error(w, err)
		return
	}

	t, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	page, limit := web.PageParams(r)
	q := r.URL.Query()
	f := Filter{
		Type:   q.Get("type"),
		Status: q.Get("status"),
		SortBy: q.Get("sortBy"),
		Desc:   q.Get("order") != "asc",
		Page:   page,
		Limit:  limit,
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			web.Error(w, errs.Validation("invalid user ID filter"))
			return
		}
		f.UserID = &id
	}
	if v := q.Get("item_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			web.Error(w, errs.Validation("invalid item ID filter"))
			return
		}
		f.ItemID = &id
	}

	transactions, pagination, err := h.service.List(r.Context(), actor, f)
	if err != nil {
		web.Error(w, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"pagination":   pagination,
	})
}

// HandleOverdue reports every currently overdue checkout together with
// how far past due each one is.
func (h *Handler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.ListOverdue(r.Context())
	if err != nil {
		web.Error(w, err)
		return
	}

	now := time.Now()
	type overdueRow struct {
		*Transaction
		DaysOverdue int `json:"days_overdue"`
	}
	rows := make([]overdueRow, 0, len(transactions))
	for _, t := range transactions {
		rows = append(rows, overdueRow{Transaction: t, DaysOverdue: t.DaysOverdue(now)})
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"transactions": rows,
		"count":        len(rows),
	})
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errs.Validation("invalid transaction ID")
	}
	return id, nil
}
