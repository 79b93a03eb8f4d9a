package processing

import (
	"context"
	"time"

	"invoice-backend/internal/documents"
	"invoice-backend/internal/shared/metrics"
	"invoice-backend/internal/shared/telemetry"
)

// JanitorResult summarizes one janitor pass.
type JanitorResult struct {
	Skipped   bool `json:"skipped"`
	FailedOut int  `json:"failedOut"`
	Requeued  int  `json:"requeued"`
	Started   int  `json:"started"`
}

// RunJanitor sweeps three disjoint buckets of stale records: stuck ANALYZING
// jobs, retryable failures, and PENDING_ANALYSIS records that never started.
// Each record is handled independently; one failure never aborts siblings.
func (s *Service) RunJanitor(ctx context.Context) JanitorResult {
	if !s.janitorMu.TryLock() {
		return JanitorResult{Skipped: true}
	}
	defer s.janitorMu.Unlock()

	var res JanitorResult
	cutoff := time.Now().UTC().Add(-s.stuckThreshold())

	res.FailedOut = s.sweepStuckAnalyzing(ctx, cutoff)
	res.Requeued = s.sweepRetryableFailed(ctx, cutoff)
	res.Started = s.sweepStuckPending(ctx, cutoff)

	if res.FailedOut+res.Requeued+res.Started > 0 {
		telemetry.Info("janitor.pass_complete", map[string]any{
			"failed_out": res.FailedOut,
			"requeued":   res.Requeued,
			"started":    res.Started,
		})
	}
	return res
}

// sweepStuckAnalyzing fails out ANALYZING records with no provider signal
// past the threshold. A record still under the attempt cap consumes one
// attempt and becomes eligible for requeue; one at the cap gets a terminal
// reason.
func (s *Service) sweepStuckAnalyzing(ctx context.Context, cutoff time.Time) int {
	recs, err := s.Docs.ListStuckAnalyzing(ctx, cutoff, s.scanLimit())
	if err != nil {
		telemetry.Error("janitor.scan_stuck_analyzing_failed", map[string]any{"error": err.Error()})
		return 0
	}

	handled := 0
	for _, rec := range recs {
		code := documents.FailureCodeStuck
		reason := "no provider signal within the stuck threshold"
		countAttempt := true
		if !rec.AttemptsRemaining() {
			code = documents.FailureCodeRetryExhausted
			reason = "analysis retries exhausted"
			countAttempt = false
		}
		if err := s.Docs.MarkFailed(ctx, rec.ID, code, reason, countAttempt); err != nil {
			telemetry.Error("janitor.mark_failed_error", map[string]any{
				"document_id": rec.ID,
				"error":       err.Error(),
			})
			continue
		}
		metrics.IncJanitorRecovered()
		handled++
	}
	return handled
}

// sweepRetryableFailed requeues failed records with attempts remaining.
func (s *Service) sweepRetryableFailed(ctx context.Context, cutoff time.Time) int {
	recs, err := s.Docs.ListRetryableFailed(ctx, cutoff, s.scanLimit())
	if err != nil {
		telemetry.Error("janitor.scan_retryable_failed", map[string]any{"error": err.Error()})
		return 0
	}

	handled := 0
	for _, rec := range recs {
		if err := s.Docs.Requeue(ctx, rec.ID, true); err != nil {
			telemetry.Error("janitor.requeue_error", map[string]any{
				"document_id": rec.ID,
				"error":       err.Error(),
			})
			continue
		}
		metrics.IncJanitorRecovered()
		handled++
	}
	return handled
}

// sweepStuckPending starts analysis jobs directly for records parked in
// PENDING_ANALYSIS past the threshold. Unlike the submission path this start
// consumes an attempt whether it succeeds or fails.
func (s *Service) sweepStuckPending(ctx context.Context, cutoff time.Time) int {
	recs, err := s.Docs.ListStuckPending(ctx, cutoff, s.scanLimit())
	if err != nil {
		telemetry.Error("janitor.scan_stuck_pending_failed", map[string]any{"error": err.Error()})
		return 0
	}

	handled := 0
	for _, rec := range recs {
		if !rec.AttemptsRemaining() {
			if err := s.Docs.MarkFailed(ctx, rec.ID, documents.FailureCodeRetryExhausted, "analysis retries exhausted", false); err != nil {
				telemetry.Error("janitor.mark_failed_error", map[string]any{
					"document_id": rec.ID,
					"error":       err.Error(),
				})
			}
			continue
		}

		handle, err := s.Analyzer.StartJob(ctx, rec.StorageKey)
		if err != nil {
			if markErr := s.Docs.MarkFailed(ctx, rec.ID, documents.FailureCodeStartFailed, err.Error(), true); markErr != nil {
				telemetry.Error("janitor.mark_failed_error", map[string]any{
					"document_id": rec.ID,
					"error":       markErr.Error(),
				})
			}
			metrics.IncAnalysisFailed()
			continue
		}
		if err := s.Docs.MarkAnalyzing(ctx, rec.ID, handle, true); err != nil {
			telemetry.Error("janitor.mark_analyzing_error", map[string]any{
				"document_id": rec.ID,
				"error":       err.Error(),
			})
			continue
		}
		metrics.IncAnalysisStarted()
		metrics.IncJanitorRecovered()
		handled++
	}
	return handled
}
