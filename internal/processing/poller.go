package processing

import (
	"context"
	"time"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/documents"
	"invoice-backend/internal/extraction"
	"invoice-backend/internal/shared/metrics"
	"invoice-backend/internal/shared/telemetry"
)

// PollResult summarizes one reconciliation pass.
type PollResult struct {
	Skipped   bool `json:"skipped"`
	Polled    int  `json:"polled"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
}

// RunPoll reconciles in-flight analysis jobs with the provider. An
// overlapping invocation is skipped, not queued. Per-record errors are
// logged and never abort the pass.
func (s *Service) RunPoll(ctx context.Context) PollResult {
	if !s.pollMu.TryLock() {
		return PollResult{Skipped: true}
	}
	defer s.pollMu.Unlock()

	start := time.Now()
	var res PollResult

	recs, err := s.Docs.ListAnalyzing(ctx, s.scanLimit())
	if err != nil {
		telemetry.Error("poller.scan_failed", map[string]any{"error": err.Error()})
		return res
	}

	for _, rec := range recs {
		res.Polled++
		outcome, err := s.pollRecord(ctx, rec)
		if err != nil {
			telemetry.Error("poller.record_failed", map[string]any{
				"document_id": rec.ID,
				"job_handle":  rec.JobHandle,
				"error":       err.Error(),
			})
			continue
		}
		switch outcome {
		case analysis.JobStatusSucceeded:
			res.Completed++
		case analysis.JobStatusFailed:
			res.Failed++
		}
	}

	metrics.ObservePollPassDurationMs(float64(time.Since(start).Milliseconds()))
	if res.Polled > 0 {
		telemetry.Info("poller.pass_complete", map[string]any{
			"polled":    res.Polled,
			"completed": res.Completed,
			"failed":    res.Failed,
		})
	}
	return res
}

// pollRecord queries the provider once and applies any terminal transition.
// Running and Unknown statuses leave the record untouched for the next pass.
func (s *Service) pollRecord(ctx context.Context, rec documents.DocumentRecord) (analysis.JobStatus, error) {
	if rec.ProcessingStatus != documents.StatusAnalyzing || rec.JobHandle == "" {
		return analysis.JobStatusUnknown, nil
	}

	result, err := s.Analyzer.GetJobStatus(ctx, rec.JobHandle)
	if err != nil {
		// Transient provider error; the next interval retries.
		return analysis.JobStatusUnknown, err
	}

	switch result.Status {
	case analysis.JobStatusSucceeded:
		if err := s.applySuccess(ctx, rec, result); err != nil {
			return analysis.JobStatusUnknown, err
		}
		return analysis.JobStatusSucceeded, nil
	case analysis.JobStatusFailed:
		reason := result.FailureReason
		if reason == "" {
			reason = "analysis provider reported failure"
		}
		// The provider rejected the job; the start already counted the
		// attempt, so the counter stays put.
		if err := s.Docs.MarkFailed(ctx, rec.ID, documents.FailureCodeProviderRejected, reason, false); err != nil {
			return analysis.JobStatusUnknown, err
		}
		metrics.IncAnalysisFailed()
		return analysis.JobStatusFailed, nil
	default:
		return result.Status, nil
	}
}

// applySuccess stores the audit snapshot, replaces the extracted document in
// place and resolves the record as complete.
func (s *Service) applySuccess(ctx context.Context, rec documents.DocumentRecord, result analysis.JobResult) error {
	if len(result.Raw) > 0 {
		if err := s.Extractions.SaveResult(ctx, extraction.AnalysisResult{
			DocumentID: rec.ID,
			JobHandle:  rec.JobHandle,
			Raw:        result.Raw,
		}); err != nil {
			return err
		}
	}

	inv := result.Invoice
	if inv == nil {
		inv = &analysis.Invoice{}
	}
	items := make([]extraction.LineItem, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		items = append(items, extraction.LineItem{
			Description:  item.Description,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
			CategoryCode: item.CategoryCode,
		})
	}
	if _, err := s.Extractions.Upsert(ctx, extraction.ExtractedDocument{
		DocumentID:    rec.ID,
		SupplierName:  inv.SupplierName,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		Total:         inv.Total,
		CurrencyCode:  inv.CurrencyCode,
		LineItems:     items,
	}); err != nil {
		return err
	}

	// Review always lands on NEEDS_REVIEW; the confidence is stored for the
	// reviewer but never auto-verifies.
	if err := s.Docs.MarkCompleted(ctx, rec.ID, inv.Confidence); err != nil {
		return err
	}
	metrics.IncAnalysisCompleted()
	telemetry.Info("poller.analysis_complete", map[string]any{
		"document_id": rec.ID,
		"org_id":      rec.OrgID,
		"confidence":  inv.Confidence,
		"line_items":  len(items),
	})
	return nil
}

// PolledRecord is the outcome of a single synchronous poll, with a
// short-lived read URL for the stored document.
type PolledRecord struct {
	Record  documents.DocumentRecord
	ReadURL string
}

// PollOne runs the poller logic for one owned record synchronously and
// returns its up-to-date state.
func (s *Service) PollOne(ctx context.Context, orgID, locationID, id string) (PolledRecord, error) {
	rec, err := s.Docs.GetOwned(ctx, orgID, locationID, id)
	if err != nil {
		return PolledRecord{}, err
	}
	if rec.DeletedAt != nil {
		return PolledRecord{}, documents.ErrDeleted
	}

	if rec.ProcessingStatus == documents.StatusAnalyzing && rec.JobHandle != "" {
		if _, err := s.pollRecord(ctx, rec); err != nil {
			telemetry.Warn("poller.single_poll_failed", map[string]any{
				"document_id": rec.ID,
				"error":       err.Error(),
			})
		}
		rec, err = s.Docs.GetOwned(ctx, orgID, locationID, id)
		if err != nil {
			return PolledRecord{}, err
		}
	}

	out := PolledRecord{Record: rec}
	if rec.StorageKey != "" {
		url, err := s.Store.PresignRead(ctx, rec.StorageKey)
		if err != nil {
			telemetry.Warn("poller.presign_failed", map[string]any{
				"document_id": rec.ID,
				"error":       err.Error(),
			})
		} else {
			out.ReadURL = url
		}
	}
	return out, nil
}
