// Package handler exposes the account HTTP endpoints.
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hearthbooks/hearthbooks/internal/domain/account"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// AccountHandler serves the account endpoints under a project.
type AccountHandler struct {
	svc    *account.Service
	logger *slog.Logger
}

// NewAccountHandler creates the account handler.
func NewAccountHandler(svc *account.Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

// Register mounts the account routes on a project-scoped router.
func (h *AccountHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects/{projectID}/accounts", h.list).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/accounts", h.create).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/accounts/{accountID}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/accounts/{accountID}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/projects/{projectID}/accounts/{accountID}", h.delete).Methods(http.MethodDelete)
}

type accountResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AccountType  string `json:"account_type"`
	CurrencyCode string `json:"currency_code"`
	CreatedAt    string `json:"created_at"`
}

func toAccountResponse(a *account.Account) accountResponse {
	return accountResponse{
		ID:           a.ID.String(),
		Name:         a.Name,
		AccountType:  a.AccountType,
		CurrencyCode: a.CurrencyCode,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
}

func (h *AccountHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httpx.NotFound(w)
	case errors.Is(err, account.ErrNameRequired), errors.Is(err, account.ErrInvalidType):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "account request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *AccountHandler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *AccountHandler) create(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		Name         string `json:"name"`
		AccountType  string `json:"account_type"`
		CurrencyCode string `json:"currency_code"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.svc.CreateAccount(r.Context(), projectID, req.Name, req.AccountType, req.CurrencyCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{"account": toAccountResponse(acct)})
}

func (h *AccountHandler) get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	accountID, err := httpx.PathUUID(vars, "accountID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	acct, err := h.svc.GetAccount(r.Context(), projectID, accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": toAccountResponse(acct)})
}

func (h *AccountHandler) update(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	accountID, err := httpx.PathUUID(vars, "accountID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		Name         string `json:"name"`
		AccountType  string `json:"account_type"`
		CurrencyCode string `json:"currency_code"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	acct, err := h.svc.UpdateAccount(r.Context(), projectID, accountID, req.Name, req.AccountType, req.CurrencyCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": toAccountResponse(acct)})
}

func (h *AccountHandler) delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	accountID, err := httpx.PathUUID(vars, "accountID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), projectID, accountID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
