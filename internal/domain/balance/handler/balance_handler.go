// Package handler exposes the balance summary HTTP endpoint.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hearthbooks/hearthbooks/internal/domain/balance"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// CurrencyResolver looks up the display currency of a project.
type CurrencyResolver interface {
	ProjectCurrency(ctx context.Context, projectID uuid.UUID) (string, error)
}

// BalanceHandler serves the balance rollup endpoint.
type BalanceHandler struct {
	svc      *balance.Service
	currency CurrencyResolver
	logger   *slog.Logger
}

// NewBalanceHandler creates the balance handler.
func NewBalanceHandler(svc *balance.Service, currency CurrencyResolver, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{svc: svc, currency: currency, logger: logger}
}

// Register mounts the balance route on a project-scoped router.
func (h *BalanceHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects/{projectID}/balance", h.summary).Methods(http.MethodGet)
}

type accountBalanceResponse struct {
	AccountID      string  `json:"account_id"`
	Name           string  `json:"name"`
	AccountType    string  `json:"account_type"`
	CurrencyCode   string  `json:"currency_code"`
	BalanceMinor   int64   `json:"balance_minor"`
	BalanceDisplay string  `json:"balance_display"`
	TxnCount       int64   `json:"txn_count"`
	LastActivity   *string `json:"last_activity,omitempty"`
}

type projectBalanceResponse struct {
	ProjectID      string `json:"project_id"`
	Name           string `json:"name"`
	BalanceMinor   int64  `json:"balance_minor"`
	BalanceDisplay string `json:"balance_display"`
	TxnCount       int64  `json:"txn_count"`
}

func (h *BalanceHandler) summary(w http.ResponseWriter, r *http.Request) {
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

	summary, err := h.svc.GetSummary(r.Context(), projectID, currency)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	accounts := make([]accountBalanceResponse, 0, len(summary.Accounts))
	for _, a := range summary.Accounts {
		resp := accountBalanceResponse{
			AccountID:      a.AccountID.String(),
			Name:           a.AccountName,
			AccountType:    a.AccountType,
			CurrencyCode:   a.CurrencyCode,
			BalanceMinor:   a.BalanceMinor,
			BalanceDisplay: a.BalanceDisplay,
			TxnCount:       a.TxnCount,
		}
		if a.LastActivity != nil {
			formatted := a.LastActivity.Format(time.DateOnly)
			resp.LastActivity = &formatted
		}
		accounts = append(accounts, resp)
	}

	subtree := make([]projectBalanceResponse, 0, len(summary.Subtree))
	for _, p := range summary.Subtree {
		subtree = append(subtree, projectBalanceResponse{
			ProjectID:      p.ProjectID.String(),
			Name:           p.ProjectName,
			BalanceMinor:   p.BalanceMinor,
			BalanceDisplay: p.BalanceDisplay,
			TxnCount:       p.TxnCount,
		})
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"total_minor":          summary.TotalMinor,
		"total_display":        summary.TotalDisplay,
		"month_change_minor":   summary.MonthChangeMinor,
		"month_change_display": summary.MonthChangeDisplay,
		"currency_code":        summary.CurrencyCode,
		"accounts":             accounts,
		"subtree":              subtree,
	})
}

func (h *BalanceHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		httpx.NotFound(w)
		return
	}
	h.logger.ErrorContext(r.Context(), "balance request failed", "error", err)
	httpx.Error(w, http.StatusInternalServerError, "internal error")
}
