package extraction

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"invoice-backend/internal/documents"
	"invoice-backend/internal/shared/server/middleware"
	"invoice-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches extraction routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/extraction", h.get)
	rg.PUT("/documents/:id/extraction", h.update)
	rg.POST("/documents/:id/verify", h.verify)
	rg.POST("/documents/:id/revert", h.revert)
	rg.POST("/documents/:id/manual-entry", h.manualEntry)
}

type verifyRequest struct {
	SupplierID          string   `json:"supplierId"`
	SupplierName        string   `json:"supplierName"`
	SelectedLineItemIDs []string `json:"selectedLineItemIds"`
}

type lineItemPayload struct {
	ID           string  `json:"id,omitempty"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	LineTotal    float64 `json:"lineTotal"`
	CategoryCode string  `json:"categoryCode,omitempty"`
}

type extractionPayload struct {
	SupplierID    string            `json:"supplierId,omitempty"`
	SupplierName  string            `json:"supplierName"`
	InvoiceNumber string            `json:"invoiceNumber"`
	InvoiceDate   *time.Time        `json:"invoiceDate,omitempty"`
	Subtotal      *float64          `json:"subtotal,omitempty"`
	Tax           *float64          `json:"tax,omitempty"`
	Total         float64           `json:"total"`
	CurrencyCode  string            `json:"currencyCode,omitempty"`
	LineItems     []lineItemPayload `json:"lineItems"`
}

type extractionResponse struct {
	ExtractionID string `json:"extractionId"`
	DocumentID   string `json:"documentId"`
	extractionPayload
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(doc ExtractedDocument) extractionResponse {
	items := make([]lineItemPayload, 0, len(doc.LineItems))
	for _, item := range doc.LineItems {
		items = append(items, lineItemPayload{
			ID:           item.ID,
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
			CategoryCode: item.CategoryCode,
		})
	}
	return extractionResponse{
		ExtractionID: doc.ID,
		DocumentID:   doc.DocumentID,
		extractionPayload: extractionPayload{
			SupplierID:    doc.SupplierID,
			SupplierName:  doc.SupplierName,
			InvoiceNumber: doc.InvoiceNumber,
			InvoiceDate:   doc.InvoiceDate,
			Subtotal:      doc.Subtotal,
			Tax:           doc.Tax,
			Total:         doc.Total,
			CurrencyCode:  doc.CurrencyCode,
			LineItems:     items,
		},
		UpdatedAt: doc.UpdatedAt,
	}
}

func (h *Handler) get(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	doc, err := h.Svc.Get(c.Request.Context(), orgID, locationID, c.Param("id"))
	if err != nil {
		h.respondErr(c, err, "failed to fetch extraction")
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) update(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	var req extractionPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	items := make([]LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, LineItem{
			ID:           item.ID,
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
			CategoryCode: item.CategoryCode,
		})
	}
	doc, err := h.Svc.Update(c.Request.Context(), orgID, locationID, c.Param("id"), ExtractedDocument{
		SupplierID:    req.SupplierID,
		SupplierName:  req.SupplierName,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		Total:         req.Total,
		CurrencyCode:  req.CurrencyCode,
		LineItems:     items,
	})
	if err != nil {
		h.respondErr(c, err, "failed to update extraction")
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) verify(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	doc, err := h.Svc.Verify(c.Request.Context(), orgID, locationID, c.Param("id"), VerifyInput{
		SupplierID:          req.SupplierID,
		SupplierName:        req.SupplierName,
		SelectedLineItemIDs: req.SelectedLineItemIDs,
	})
	if err != nil {
		h.respondErr(c, err, "failed to verify document")
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) revert(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	if err := h.Svc.Revert(c.Request.Context(), orgID, locationID, c.Param("id")); err != nil {
		h.respondErr(c, err, "failed to revert verification")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"reviewStatus": string(documents.ReviewNeeded)})
}

func (h *Handler) manualEntry(c *gin.Context) {
	orgID := middleware.OrgIDFromContext(c)
	locationID := middleware.LocationIDFromContext(c)

	doc, err := h.Svc.ManualEntry(c.Request.Context(), orgID, locationID, c.Param("id"))
	if err != nil {
		h.respondErr(c, err, "failed to create manual entry")
		return
	}
	respond.Created(c, toResponse(doc))
}

func (h *Handler) respondErr(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, documents.ErrNotFound), errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrNoExtraction):
		respond.Error(c, http.StatusConflict, "no_extraction", "document has no extracted data", nil)
	case errors.Is(err, ErrValidation):
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid supplier or line item selection", nil)
	case errors.Is(err, ErrNotVerified):
		respond.Error(c, http.StatusConflict, "not_verified", "document was never verified", nil)
	case errors.Is(err, ErrInvalidState):
		respond.Error(c, http.StatusConflict, "invalid_state", "document is not in a failed state", nil)
	case errors.Is(err, documents.ErrDeleted):
		respond.Error(c, http.StatusConflict, "deleted", "document is deleted", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
