package processing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"invoice-backend/internal/documents"
	"invoice-backend/internal/shared/server/middleware"
	"invoice-backend/internal/shared/server/respond"
)

// Handler exposes the on-demand refresh endpoints.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches refresh routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/refresh", h.refreshBatch)
	rg.POST("/documents/:id/refresh", h.refreshOne)
}

type refreshBatchRequest struct {
	DocumentIDs []string `json:"documentIds"`
}

func (h *Handler) refreshBatch(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	var req refreshBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	items, err := h.Svc.RefreshBatch(c.Request.Context(), orgID, locationID, req.DocumentIDs)
	if err != nil {
		switch {
		case errors.Is(err, ErrBatchTooLarge):
			respond.Error(c, http.StatusBadRequest, "batch_too_large", "at most 20 documents per refresh", nil)
		case errors.Is(err, documents.ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "documentIds is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to refresh documents", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"results": items})
}

func (h *Handler) refreshOne(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	polled, err := h.Svc.PollOne(c.Request.Context(), orgID, locationID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, documents.ErrDeleted):
			respond.Error(c, http.StatusConflict, "deleted", "document is deleted", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to refresh document", nil)
		}
		return
	}

	rec := polled.Record
	respond.JSON(c, http.StatusOK, gin.H{
		"documentId":       rec.ID,
		"processingStatus": string(rec.ProcessingStatus),
		"reviewStatus":     string(rec.ReviewStatus),
		"attemptCount":     rec.AttemptCount,
		"failureCode":      rec.FailureCode,
		"failureReason":    rec.FailureReason,
		"confidence":       rec.Confidence,
		"readUrl":          polled.ReadURL,
		"updatedAt":        rec.UpdatedAt,
	})
}
