package processing

import (
	"sync"
	"time"

	"invoice-backend/internal/analysis"
	"invoice-backend/internal/documents"
	"invoice-backend/internal/extraction"
	"invoice-backend/internal/shared/storage/object"
)

const defaultScanLimit = 100

// Service drives the reconciliation poller, the stuck-job janitor and the
// batch status aggregator over shared collaborators.
type Service struct {
	Docs        documents.Repo
	Extractions extraction.Repo
	Analyzer    analysis.Client
	Store       object.ObjectStore

	StuckThreshold time.Duration
	ScanLimit      int

	// Non-reentrant run guards. Overlapping scheduled passes are skipped,
	// never queued; the locks are released in defers so a panic mid-pass
	// cannot wedge the scheduler.
	pollMu    sync.Mutex
	janitorMu sync.Mutex
}

func (s *Service) scanLimit() int {
	if s.ScanLimit > 0 {
		return s.ScanLimit
	}
	return defaultScanLimit
}

func (s *Service) stuckThreshold() time.Duration {
	if s.StuckThreshold > 0 {
		return s.StuckThreshold
	}
	return 10 * time.Minute
}
