// Package handler exposes the statement import pipeline over HTTP.
package handler

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/hearthbooks/hearthbooks/internal/domain/import/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/import/service"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// ImportHandler serves the import pipeline endpoints under a project.
type ImportHandler struct {
	svc    *service.ImportService
	logger *slog.Logger
}

// NewImportHandler creates the import handler.
func NewImportHandler(svc *service.ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, logger: logger}
}

// Register mounts the import routes on a project-scoped router.
func (h *ImportHandler) Register(r *mux.Router) {
	r.HandleFunc("/projects/{projectID}/imports", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/imports", h.list).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/preview", h.preview).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/mapping", h.confirmMapping).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/rows", h.listRows).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/rows/{rowID}/toggle-exclude", h.toggleExclude).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/rows/{rowID}/tags", h.updateRowTags).Methods(http.MethodPut)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/suggest", h.suggestTags).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/commit", h.commit).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/imports/{batchID}/abandon", h.abandon).Methods(http.MethodPost)
}

type batchResponse struct {
	ID                string  `json:"id"`
	AccountID         string  `json:"account_id"`
	OriginalFilename  string  `json:"original_filename"`
	RowCount          int     `json:"row_count"`
	Status            string  `json:"status"`
	DateHeader        *string `json:"date_header,omitempty"`
	AmountHeader      *string `json:"amount_header,omitempty"`
	DescriptionHeader *string `json:"description_header,omitempty"`
	CreatedAt         string  `json:"created_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
}

func toBatchResponse(b *repository.Batch) batchResponse {
	resp := batchResponse{
		ID:                b.ID.String(),
		AccountID:         b.AccountID.String(),
		OriginalFilename:  b.OriginalFilename,
		RowCount:          b.RowCount,
		Status:            string(b.Status),
		DateHeader:        b.DateHeader,
		AmountHeader:      b.AmountHeader,
		DescriptionHeader: b.DescriptionHeader,
		CreatedAt:         b.CreatedAt.Format(time.RFC3339),
	}
	if b.CompletedAt != nil {
		formatted := b.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &formatted
	}
	return resp
}

type rowResponse struct {
	ID          string   `json:"id"`
	RowIndex    int      `json:"row_index"`
	RawFields   []string `json:"raw_fields"`
	AmountMinor *int64   `json:"amount_minor,omitempty"`
	DateText    string   `json:"date_text,omitempty"`
	Description string   `json:"description"`
	IsDuplicate bool     `json:"is_duplicate"`
	IsExcluded  bool     `json:"is_excluded"`
	TagIDs      []string `json:"tag_ids"`
}

func toRowResponse(row *repository.StagingRow) rowResponse {
	resp := rowResponse{
		ID:          row.ID.String(),
		RowIndex:    row.RowIndex,
		RawFields:   row.RawFields,
		AmountMinor: row.AmountMinor,
		DateText:    row.DateText,
		Description: row.Description,
		IsDuplicate: row.IsDuplicate,
		IsExcluded:  row.IsExcluded,
		TagIDs:      make([]string, 0, len(row.TagIDs)),
	}
	for _, id := range row.TagIDs {
		resp.TagIDs = append(resp.TagIDs, id.String())
	}
	return resp
}

func toRowResponses(rows []*repository.StagingRow) []rowResponse {
	out := make([]rowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRowResponse(row))
	}
	return out
}

func previewPayload(p *service.Preview) map[string]any {
	return map[string]any{
		"batch":   toBatchResponse(p.Batch),
		"headers": p.Headers,
		"sample":  p.Sample,
		"suggested_mapping": map[string]string{
			"date_header":        p.Suggested.DateHeader,
			"amount_header":      p.Suggested.AmountHeader,
			"description_header": p.Suggested.DescriptionHeader,
		},
	}
}

func (h *ImportHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httpx.NotFound(w)
	case errors.Is(err, service.ErrFileTooLarge):
		httpx.Error(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrNoFile),
		errors.Is(err, service.ErrNoAccount),
		errors.Is(err, service.ErrMappingIncomplete),
		errors.Is(err, service.ErrHeaderNotFound),
		errors.Is(err, service.ErrNothingToCommit):
		httpx.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBatchState),
		errors.Is(err, repository.ErrBatchNotMapping),
		errors.Is(err, repository.ErrBatchNotReviewing):
		httpx.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "import request failed", "error", err)
		httpx.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// pathIDs pulls project and batch (and optionally row) IDs off the route.
func pathIDs(r *http.Request, withRow bool) (projectID, batchID, rowID uuid.UUID, ok bool) {
	vars := mux.Vars(r)
	var err error
	if projectID, err = httpx.PathUUID(vars, "projectID"); err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	if batchID, err = httpx.PathUUID(vars, "batchID"); err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}
	if withRow {
		if rowID, err = httpx.PathUUID(vars, "rowID"); err != nil {
			return uuid.Nil, uuid.Nil, uuid.Nil, false
		}
	}
	return projectID, batchID, rowID, true
}

func (h *ImportHandler) upload(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	// The size cap is enforced again by the service; this bound just keeps a
	// runaway body from being buffered in full.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpx.Error(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}

	accountID, err := uuid.Parse(r.FormValue("account_id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid account_id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, service.ErrNoFile.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	preview, err := h.svc.StartImport(r.Context(), projectID, accountID, header.Filename, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, previewPayload(preview))
}

func (h *ImportHandler) list(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathUUID(mux.Vars(r), "projectID")
	if err != nil {
		httpx.NotFound(w)
		return
	}

	batches, err := h.svc.ListBatches(r.Context(), projectID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": out})
}

func (h *ImportHandler) get(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	batch, err := h.svc.GetBatch(r.Context(), projectID, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batch": toBatchResponse(batch)})
}

func (h *ImportHandler) preview(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	preview, err := h.svc.PreviewBatch(r.Context(), projectID, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, previewPayload(preview))
}

func (h *ImportHandler) confirmMapping(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	var req struct {
		DateHeader        string `json:"date_header"`
		AmountHeader      string `json:"amount_header"`
		DescriptionHeader string `json:"description_header"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.svc.ConfirmMapping(r.Context(), projectID, batchID, req.DateHeader, req.AmountHeader, req.DescriptionHeader)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": toRowResponses(rows)})
}

func (h *ImportHandler) listRows(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	rows, err := h.svc.ListReviewRows(r.Context(), projectID, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": toRowResponses(rows)})
}

func (h *ImportHandler) toggleExclude(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, rowID, ok := pathIDs(r, true)
	if !ok {
		httpx.NotFound(w)
		return
	}

	excluded, err := h.svc.ToggleRowExclusion(r.Context(), projectID, batchID, rowID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"is_excluded": excluded})
}

func (h *ImportHandler) updateRowTags(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, rowID, ok := pathIDs(r, true)
	if !ok {
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

	if err := h.svc.UpdateRowTags(r.Context(), projectID, batchID, rowID, tagIDs); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImportHandler) suggestTags(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	applied, err := h.svc.SuggestTags(r.Context(), projectID, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"applied": applied})
}

func (h *ImportHandler) commit(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	created, err := h.svc.CommitBatch(r.Context(), projectID, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions_created": created})
}

func (h *ImportHandler) abandon(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.AbandonBatch(r.Context(), projectID, batchID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImportHandler) delete(w http.ResponseWriter, r *http.Request) {
	projectID, batchID, _, ok := pathIDs(r, false)
	if !ok {
		httpx.NotFound(w)
		return
	}

	if err := h.svc.DeleteBatch(r.Context(), projectID, batchID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
