package processing

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"invoice-backend/internal/documents"
)

// BatchLimit caps how many documents one batch refresh may touch. Enforced
// before any provider call.
const BatchLimit = 20

// batchWorkers bounds concurrent provider queries per batch.
const batchWorkers = 5

// ErrBatchTooLarge rejects refresh requests above BatchLimit.
var ErrBatchTooLarge = errors.New("too many documents in batch")

// BatchItem is the per-document outcome of a batch refresh.
type BatchItem struct {
	DocumentID       string `json:"documentId"`
	ProcessingStatus string `json:"processingStatus,omitempty"`
	Refreshed        bool   `json:"refreshed"`
	// Skip or failure reason: not_found, deleted, not_analyzing,
	// provider_error.
	Reason string `json:"reason,omitempty"`
}

// RefreshBatch polls the provider for up to BatchLimit owned documents with
// bounded concurrency. Individual failures are captured per item; the batch
// itself never fails once validated.
func (s *Service) RefreshBatch(ctx context.Context, orgID, locationID string, ids []string) ([]BatchItem, error) {
	if len(ids) == 0 {
		return nil, documents.ErrInvalidInput
	}
	if len(ids) > BatchLimit {
		return nil, ErrBatchTooLarge
	}

	items := make([]BatchItem, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			items[i] = s.refreshOne(ctx, orgID, locationID, id)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()
	return items, nil
}

func (s *Service) refreshOne(ctx context.Context, orgID, locationID, id string) BatchItem {
	item := BatchItem{DocumentID: id}

	rec, err := s.Docs.GetOwned(ctx, orgID, locationID, id)
	if err != nil {
		item.Reason = "not_found"
		return item
	}
	if rec.DeletedAt != nil {
		item.Reason = "deleted"
		return item
	}
	if rec.ProcessingStatus != documents.StatusAnalyzing || rec.JobHandle == "" {
		item.ProcessingStatus = string(rec.ProcessingStatus)
		item.Reason = "not_analyzing"
		return item
	}

	if _, err := s.pollRecord(ctx, rec); err != nil {
		item.ProcessingStatus = string(rec.ProcessingStatus)
		item.Reason = "provider_error"
		return item
	}

	if updated, err := s.Docs.Get(ctx, id); err == nil {
		item.ProcessingStatus = string(updated.ProcessingStatus)
	}
	item.Refreshed = true
	return item
}
