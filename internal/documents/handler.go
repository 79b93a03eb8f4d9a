package documents

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"invoice-backend/internal/shared/server/middleware"
	"invoice-backend/internal/shared/server/respond"
)

const maxUploadSize = 25 << 20 // 25MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.submit)
	rg.POST("/documents/sessions", h.createSessions)
	rg.POST("/documents/:id/complete", h.completeUpload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.POST("/documents/:id/retry", h.retry)
	rg.POST("/documents/:id/replace", h.replace)
	rg.POST("/documents/:id/restore", h.restore)
	rg.DELETE("/documents/:id", h.delete)
	rg.POST("/documents/delete", h.bulkDelete)
	rg.POST("/documents/restore", h.bulkRestore)
}

func (h *Handler) submit(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	rec, err := h.Svc.Submit(c.Request.Context(), orgID, locationID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		var stage *StageError
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.As(err, &stage):
			respond.Error(c, http.StatusBadGateway, "submission_failed", err.Error(), gin.H{"stage": stage.Stage})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit document", nil)
		}
		return
	}

	respond.Created(c, toResponse(rec))
}

func (h *Handler) createSessions(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.Files) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "files is required", nil)
		return
	}
	if len(req.Files) > MaxUploadSessions {
		respond.Error(c, http.StatusBadRequest, "validation_error", "at most 20 files per request", nil)
		return
	}

	specs := make([]UploadFileSpec, 0, len(req.Files))
	for _, f := range req.Files {
		specs = append(specs, UploadFileSpec{
			FileName:  strings.TrimSpace(f.FileName),
			MediaType: strings.TrimSpace(f.MediaType),
		})
	}

	sessions, err := h.Svc.CreateUploadSessions(c.Request.Context(), orgID, locationID, specs)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid upload session request", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create upload sessions", nil)
		}
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			DocumentID: s.DocumentID,
			StorageKey: s.StorageKey,
			UploadURL:  s.UploadURL,
		})
	}
	respond.Created(c, gin.H{"sessions": resp})
}

func (h *Handler) completeUpload(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	rec, err := h.Svc.CompleteUpload(c.Request.Context(), orgID, locationID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrInvalidState):
			respond.Error(c, http.StatusConflict, "invalid_state", "document is not awaiting upload completion", nil)
		case errors.Is(err, ErrDeleted):
			respond.Error(c, http.StatusConflict, "deleted", "document is deleted", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to complete upload", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(rec))
}

func (h *Handler) list(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	recs, err := h.Svc.List(c.Request.Context(), orgID, locationID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list documents", nil)
		return
	}

	resp := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, toResponse(rec))
	}
	respond.JSON(c, http.StatusOK, gin.H{"documents": resp})
}

func (h *Handler) get(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	rec, err := h.Svc.Get(c.Request.Context(), orgID, locationID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(rec))
}

func (h *Handler) retry(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	rec, err := h.Svc.Retry(c.Request.Context(), orgID, locationID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrRetryExhausted):
			respond.Error(c, http.StatusConflict, "retry_exhausted", "retry attempts exhausted", nil)
		case errors.Is(err, ErrInvalidState):
			respond.Error(c, http.StatusConflict, "invalid_state", "document is not in a failed state", nil)
		case errors.Is(err, ErrDeleted):
			respond.Error(c, http.StatusConflict, "deleted", "document is deleted", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to retry document", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(rec))
}

func (h *Handler) replace(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	rec, err := h.Svc.Replace(c.Request.Context(), orgID, locationID, c.Param("id"), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		var stage *StageError
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrDeleted):
			respond.Error(c, http.StatusConflict, "deleted", "document is deleted", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.As(err, &stage):
			respond.Error(c, http.StatusBadGateway, "replacement_failed", err.Error(), gin.H{"stage": stage.Stage})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to replace document", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(rec))
}

func (h *Handler) restore(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	count, err := h.Svc.BulkRestore(c.Request.Context(), orgID, locationID, []string{c.Param("id")})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to restore document", nil)
		return
	}
	if count == 0 {
		respond.Error(c, http.StatusNotFound, "not_found", "no deleted document to restore", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"restored": count})
}

// delete soft-deletes by default; ?permanent=true removes the record and its
// derived rows entirely.
func (h *Handler) delete(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)
	id := c.Param("id")

	if c.Query("permanent") == "true" {
		if err := h.Svc.HardDelete(c.Request.Context(), orgID, locationID, id); err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
			default:
				respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete document", nil)
			}
			return
		}
		respond.JSON(c, http.StatusOK, gin.H{"deleted": 1, "permanent": true})
		return
	}

	count, err := h.Svc.BulkDelete(c.Request.Context(), orgID, locationID, []string{id})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete document", nil)
		return
	}
	if count == 0 {
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": count})
}

func (h *Handler) bulkDelete(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", nil)
		return
	}

	count, err := h.Svc.BulkDelete(c.Request.Context(), orgID, locationID, req.DocumentIDs)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete documents", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": count})
}

func (h *Handler) bulkRestore(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.DocumentIDs) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", nil)
		return
	}

	count, err := h.Svc.BulkRestore(c.Request.Context(), orgID, locationID, req.DocumentIDs)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to restore documents", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"restored": count})
}
