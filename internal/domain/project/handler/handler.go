// Package handler exposes the project HTTP endpoints.
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hearthbooks/hearthbooks/internal/domain/project/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/project/service"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// ProjectHandler serves the /projects endpoints.
type ProjectHandler struct {
	svc    *service.ProjectService
	logger *slog.Logger
}

// NewProjectHandler creates the project handler.
func NewProjectHandler(svc *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

// Register mounts the project routes on an authenticated router.
func (h *ProjectHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects", h.list).Methods(http.MethodGet)
	r.HandleFunc("/projects", h.create).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/projects/{projectID}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{projectID}/archive", h.archive).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/children", h.children).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/members", h.listMembers).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/members", h.addMember).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/members/{userID}", h.removeMember).Methods(http.MethodDelete)
}

type projectResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	CurrencyCode string  `json:"currency_code"`
	ParentID     *string `json:"parent_id,omitempty"`
	Archived     bool    `json:"archived"`
	CreatedAt    string  `json:"created_at"`
}

func toProjectResponse(p *repository.Project) projectResponse {
	resp := projectResponse{
		ID:           p.ID.String(),
		Name:         p.Name,
		CurrencyCode: p.CurrencyCode,
		Archived:     p.ArchivedAt != nil,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
	if p.ParentID != nil {
		id := p.ParentID.String()
		resp.ParentID = &id
	}
	return resp
}

func (h *ProjectHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, service.ErrForbidden):
		// Denied and absent look identical
		httpx.NotFound(w)
	case errors.Is(err, service.ErrNameRequired), errors.Is(err, service.ErrLastOwner),
		errors.Is(err, service.ErrUnknownRole):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "project request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *ProjectHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())

	projects, err := h.svc.ListProjects(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *ProjectHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())

	var req struct {
		Name         string  `json:"name"`
		CurrencyCode string  `json:"currency_code"`
		ParentID     *string `json:"parent_id"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var parentID *uuid.UUID
	if req.ParentID != nil && *req.ParentID != "" {
		id, err := uuid.Parse(*req.ParentID)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid parent_id")
			return
		}
		parentID = &id
	}

	project, err := h.svc.CreateProject(r.Context(), userID, req.Name, req.CurrencyCode, parentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{"project": toProjectResponse(project)})
}

func (h *ProjectHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	project, err := h.svc.GetProject(r.Context(), userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"project": toProjectResponse(project)})
}

func (h *ProjectHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		Name         string `json:"name"`
		CurrencyCode string `json:"currency_code"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.UpdateProject(r.Context(), userID, projectID, req.Name, req.CurrencyCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"project": toProjectResponse(project)})
}

func (h *ProjectHandler) archive(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.ArchiveProject(r.Context(), userID, projectID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (h *ProjectHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.DeleteProject(r.Context(), userID, projectID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) children(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	children, err := h.svc.ListChildren(r.Context(), userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]projectResponse, 0, len(children))
	for _, p := range children {
		out = append(out, toProjectResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *ProjectHandler) listMembers(w http.ResponseWriter, r *http.Request) {
	userID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	members, err := h.svc.ListMembers(r.Context(), userID, projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type memberResponse struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{UserID: m.UserID.String(), Role: m.Role})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *ProjectHandler) addMember(w http.ResponseWriter, r *http.Request) {
	callerID, _ := httpx.UserID(r.Context())
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	memberID, err := uuid.Parse(req.UserID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	if err := h.svc.AddMember(r.Context(), callerID, projectID, memberID, req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "member added"})
}

func (h *ProjectHandler) removeMember(w http.ResponseWriter, r *http.Request) {
	callerID, _ := httpx.UserID(r.Context())
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	memberID, err := httpx.PathUUID(vars, "userID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.RemoveMember(r.Context(), callerID, projectID, memberID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
