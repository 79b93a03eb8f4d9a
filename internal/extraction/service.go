package extraction

import (
	"context"
	"errors"
	"strings"

	"invoice-backend/internal/documents"
	"invoice-backend/internal/shared/telemetry"
	"invoice-backend/internal/suppliers"
)

// Service contains review and manual-correction logic for extracted data.
type Service struct {
	Repo      Repo
	Documents documents.Repo
	Suppliers suppliers.Resolver
}

// VerifyInput carries an operator's sign-off decision. Exactly one of
// SupplierID (existing) or SupplierName (resolve-or-create) must be set.
type VerifyInput struct {
	SupplierID          string
	SupplierName        string
	SelectedLineItemIDs []string
}

// Verify applies a human sign-off: resolves the supplier, keeps only the
// selected line items and marks the record VERIFIED. Validation failures
// leave everything untouched. Verifying an already verified record
// overwrites the previous decision.
func (s *Service) Verify(ctx context.Context, orgID, locationID, documentID string, in VerifyInput) (ExtractedDocument, error) {
	rec, err := s.ownedRecord(ctx, orgID, locationID, documentID)
	if err != nil {
		return ExtractedDocument{}, err
	}

	doc, err := s.Repo.GetByDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ExtractedDocument{}, ErrNoExtraction
		}
		return ExtractedDocument{}, err
	}

	// All validation happens before any mutation.
	in.SupplierID = strings.TrimSpace(in.SupplierID)
	in.SupplierName = strings.TrimSpace(in.SupplierName)
	if in.SupplierID == "" && in.SupplierName == "" {
		return ExtractedDocument{}, ErrValidation
	}
	owned := make(map[string]bool, len(doc.LineItems))
	for _, item := range doc.LineItems {
		owned[item.ID] = true
	}
	for _, id := range in.SelectedLineItemIDs {
		if !owned[id] {
			return ExtractedDocument{}, ErrValidation
		}
	}

	var sup suppliers.Supplier
	if in.SupplierID != "" {
		sup, err = s.Suppliers.GetByID(ctx, orgID, in.SupplierID)
		if err != nil {
			if errors.Is(err, suppliers.ErrNotFound) {
				return ExtractedDocument{}, ErrValidation
			}
			return ExtractedDocument{}, err
		}
	} else {
		sup, err = suppliers.ResolveOrCreate(ctx, s.Suppliers, orgID, in.SupplierName, doc.SupplierName)
		if err != nil {
			return ExtractedDocument{}, err
		}
	}

	if err := s.Repo.SetSupplier(ctx, doc.ID, sup.ID, sup.Name); err != nil {
		return ExtractedDocument{}, err
	}
	if err := s.Repo.KeepLineItems(ctx, doc.ID, in.SelectedLineItemIDs); err != nil {
		return ExtractedDocument{}, err
	}
	if err := s.Documents.SetReviewStatus(ctx, documentID, documents.ReviewVerified); err != nil {
		return ExtractedDocument{}, err
	}

	telemetry.Info("document.verified", map[string]any{
		"document_id": documentID,
		"org_id":      rec.OrgID,
		"supplier_id": sup.ID,
		"kept_items":  len(in.SelectedLineItemIDs),
	})
	return s.Repo.GetByDocument(ctx, documentID)
}

// Revert withdraws a previous verification, moving the record back to
// NEEDS_REVIEW. Fails when the record was never verified.
func (s *Service) Revert(ctx context.Context, orgID, locationID, documentID string) error {
	rec, err := s.ownedRecord(ctx, orgID, locationID, documentID)
	if err != nil {
		return err
	}
	if rec.ReviewStatus != documents.ReviewVerified {
		return ErrNotVerified
	}
	return s.Documents.SetReviewStatus(ctx, documentID, documents.ReviewNeeded)
}

// ManualEntry creates an empty extracted-document shell for a failed record
// so a human can fill it in. The processing state is left untouched.
func (s *Service) ManualEntry(ctx context.Context, orgID, locationID, documentID string) (ExtractedDocument, error) {
	rec, err := s.ownedRecord(ctx, orgID, locationID, documentID)
	if err != nil {
		return ExtractedDocument{}, err
	}
	if rec.ProcessingStatus != documents.StatusAnalysisFailed {
		return ExtractedDocument{}, ErrInvalidState
	}

	if existing, err := s.Repo.GetByDocument(ctx, documentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return ExtractedDocument{}, err
	}

	doc, err := s.Repo.Upsert(ctx, ExtractedDocument{DocumentID: documentID})
	if err != nil {
		return ExtractedDocument{}, err
	}
	if err := s.Documents.SetReviewStatus(ctx, documentID, documents.ReviewNeeded); err != nil {
		return ExtractedDocument{}, err
	}
	return doc, nil
}

// Get returns the extracted data for an owned record.
func (s *Service) Get(ctx context.Context, orgID, locationID, documentID string) (ExtractedDocument, error) {
	if _, err := s.ownedRecord(ctx, orgID, locationID, documentID); err != nil {
		return ExtractedDocument{}, err
	}
	return s.Repo.GetByDocument(ctx, documentID)
}

// Update overwrites the extracted header and line items with operator input.
// Used to fill in a manual-entry shell or correct a parse.
func (s *Service) Update(ctx context.Context, orgID, locationID, documentID string, doc ExtractedDocument) (ExtractedDocument, error) {
	if _, err := s.ownedRecord(ctx, orgID, locationID, documentID); err != nil {
		return ExtractedDocument{}, err
	}
	if _, err := s.Repo.GetByDocument(ctx, documentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ExtractedDocument{}, ErrNoExtraction
		}
		return ExtractedDocument{}, err
	}
	doc.DocumentID = documentID
	return s.Repo.Upsert(ctx, doc)
}

func (s *Service) ownedRecord(ctx context.Context, orgID, locationID, documentID string) (documents.DocumentRecord, error) {
	rec, err := s.Documents.GetOwned(ctx, orgID, locationID, documentID)
	if err != nil {
		return documents.DocumentRecord{}, err
	}
	if rec.DeletedAt != nil {
		return documents.DocumentRecord{}, documents.ErrDeleted
	}
	return rec, nil
}
