// Package handler exposes the tag HTTP endpoints.
package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hearthbooks/hearthbooks/internal/domain/tag"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// TagHandler serves the tag endpoints under a project.
type TagHandler struct {
	svc    *tag.Service
	logger *slog.Logger
}

// NewTagHandler creates the tag handler.
func NewTagHandler(svc *tag.Service, logger *slog.Logger) *TagHandler {
	return &TagHandler{svc: svc, logger: logger}
}

// Register mounts the tag routes on a project-scoped router.
func (h *TagHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects/{projectID}/tags", h.list).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/tags", h.create).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/tags/{tagID}", h.rename).Methods(http.MethodPut)
	r.HandleFunc("/projects/{projectID}/tags/{tagID}", h.delete).Methods(http.MethodDelete)
}

type tagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *TagHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httpx.NotFound(w)
	case errors.Is(err, tag.ErrNameRequired), errors.Is(err, tag.ErrDuplicateName):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "tag request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *TagHandler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	tags, err := h.svc.ListTags(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]tagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagResponse{ID: t.ID.String(), Name: t.Name})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tags": out})
}

func (h *TagHandler) create(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.svc.CreateTag(r.Context(), projectID, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"tag": tagResponse{ID: created.ID.String(), Name: created.Name}})
}

func (h *TagHandler) rename(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	tagID, err := httpx.PathUUID(vars, "tagID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	renamed, err := h.svc.RenameTag(r.Context(), projectID, tagID, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tag": tagResponse{ID: renamed.ID.String(), Name: renamed.Name}})
}

func (h *TagHandler) delete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectID, err := httpx.PathUUID(vars, "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}
	tagID, err := httpx.PathUUID(vars, "tagID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.DeleteTag(r.Context(), projectID, tagID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
