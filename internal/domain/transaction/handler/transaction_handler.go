// Package handler exposes the transaction ledger HTTP endpoints.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/transaction/service"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
	"github.com/hearthbooks/hearthbooks/pkg/money"
)

// CurrencyResolver looks up the display currency of a project.
type CurrencyResolver interface {
	ProjectCurrency(ctx context.Context, projectID uuid.UUID) (string, error)
}

// TransactionHandler serves the transaction endpoints under a project.
type TransactionHandler struct {
	svc      *service.TransactionService
	currency CurrencyResolver
	tags     service.TagLister
	logger   *slog.Logger
}

// NewTransactionHandler creates the transaction handler.
func NewTransactionHandler(svc *service.TransactionService, currency CurrencyResolver, tags service.TagLister, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, currency: currency, tags: tags, logger: logger}
}

// Register mounts the transaction routes on a project-scoped router.
func (h *TransactionHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects/{projectID}/transactions", h.list).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/transactions", h.create).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/transactions/export.csv", h.exportCSV).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/transactions/{txnID}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/transactions/{txnID}/notes", h.updateNotes).Methods(http.MethodPut)
	r.HandleFunc("/projects/{projectID}/transactions/{txnID}/tags", h.replaceTags).Methods(http.MethodPut)
	r.HandleFunc("/projects/{projectID}/transactions/{txnID}", h.delete).Methods(http.MethodDelete)
}

type transactionResponse struct {
	ID            string   `json:"id"`
	AccountID     string   `json:"account_id"`
	AmountMinor   int64    `json:"amount_minor"`
	AmountDisplay string   `json:"amount_display,omitempty"`
	OccurredOn    string   `json:"occurred_on"`
	Description   string   `json:"description"`
	Notes         *string  `json:"notes,omitempty"`
	BatchID       *string  `json:"batch_id,omitempty"`
	TagIDs        []string `json:"tag_ids"`
}

func toResponse(t *repository.Transaction, display string) transactionResponse {
	resp := transactionResponse{
		ID:            t.ID.String(),
		AccountID:     t.AccountID.String(),
		AmountMinor:   t.AmountMinor,
		AmountDisplay: display,
		OccurredOn:    t.OccurredOn.Format("2006-01-02"),
		Description:   t.Description,
		Notes:         t.Notes,
		TagIDs:        make([]string, 0, len(t.TagIDs)),
	}
	if t.BatchID != nil {
		id := t.BatchID.String()
		resp.BatchID = &id
	}
	for _, tagID := range t.TagIDs {
		resp.TagIDs = append(resp.TagIDs, tagID.String())
	}
	return resp
}

func (h *TransactionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httpx.NotFound(w)
	case errors.Is(err, service.ErrDescriptionRequired), errors.Is(err, service.ErrNoAccount):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "transaction request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// parseFilter reads the listing filters off the query string. Bad values are
// ignored rather than rejected; a typo'd filter just widens the listing.
func parseFilter(r *http.Request) repository.Filter {
	q := r.URL.Query()
	var filter repository.Filter

	if raw := q.Get("account_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filter.AccountID = &id
		}
	}
	if raw := q.Get("tag_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filter.TagID = &id
		}
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = &t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}
	if filter.Limit == 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return filter
}

func (h *TransactionHandler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	currency, err := h.currency.ProjectCurrency(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := parseFilter(r)

	var views []*service.View
	if query := r.URL.Query().Get("q"); query != "" {
		views, err = h.svc.SearchTransactions(r.Context(), projectID, currency, query, filter.Limit)
	} else {
		views, err = h.svc.ListTransactions(r.Context(), projectID, currency, filter)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toResponse(v.Transaction, v.AmountDisplay))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (h *TransactionHandler) create(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		AccountID   string   `json:"account_id"`
		AmountMinor int64    `json:"amount_minor"`
		OccurredOn  string   `json:"occurred_on"`
		Description string   `json:"description"`
		Notes       *string  `json:"notes"`
		TagIDs      []string `json:"tag_ids"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	var occurredOn time.Time
	if req.OccurredOn != "" {
		occurredOn, err = time.Parse("2006-01-02", req.OccurredOn)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "occurred_on must be YYYY-MM-DD")
			return
		}
	}

	tagIDs := make([]uuid.UUID, 0, len(req.TagIDs))
	for _, raw := range req.TagIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid tag id")
			return
		}
		tagIDs = append(tagIDs, id)
	}

	txn, err := h.svc.CreateTransaction(r.Context(), projectID, accountID, req.AmountMinor, occurredOn, req.Description, req.Notes, tagIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	currency, err := h.currency.ProjectCurrency(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transaction": toResponse(txn, money.Format(txn.AmountMinor, currency))})
}

func (h *TransactionHandler) get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	txnID, err := httpx.PathUUID(vars, "txnID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	txn, err := h.svc.GetTransaction(r.Context(), projectID, txnID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	currency, err := h.currency.ProjectCurrency(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transaction": toResponse(txn, money.Format(txn.AmountMinor, currency))})
}

func (h *TransactionHandler) updateNotes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	txnID, err := httpx.PathUUID(vars, "txnID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		Notes *string `json:"notes"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.UpdateNotes(r.Context(), projectID, txnID, req.Notes); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) replaceTags(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	txnID, err := httpx.PathUUID(vars, "txnID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		TagIDs []string `json:"tag_ids"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	tagIDs := make([]uuid.UUID, 0, len(req.TagIDs))
	for _, raw := range req.TagIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid tag id")
			return
		}
		tagIDs = append(tagIDs, id)
	}

	if err := h.svc.ReplaceTags(r.Context(), projectID, txnID, tagIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	txnID, err := httpx.PathUUID(vars, "txnID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.DeleteTransaction(r.Context(), projectID, txnID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) exportCSV(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	currency, err := h.currency.ProjectCurrency(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filter := parseFilter(r)
	filter.Limit = 0 // export is unbounded
	filter.Offset = 0

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := h.svc.ExportCSV(r.Context(), w, projectID, currency, filter, h.tags); err != nil {
		h.logger.ErrorContext(r.Context(), "csv export failed", "project_id", projectID, "error", err)
	}
}
