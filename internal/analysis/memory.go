package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryClient is an in-process provider used in tests and local development.
// Started jobs stay RUNNING until resolved via Complete or Fail.
type MemoryClient struct {
	mu       sync.Mutex
	jobs     map[string]JobResult
	startErr error
}

// NewMemoryClient constructs a MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{jobs: make(map[string]JobResult)}
}

// StartJob registers a new running job and returns its handle.
func (m *MemoryClient) StartJob(ctx context.Context, storageKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return "", m.startErr
	}
	_ = storageKey
	handle := uuid.NewString()
	m.jobs[handle] = JobResult{Status: JobStatusRunning}
	return handle, nil
}

// GetJobStatus returns the current result for a handle.
func (m *MemoryClient) GetJobStatus(ctx context.Context, jobHandle string) (JobResult, error) {
	if err := ctx.Err(); err != nil {
		return JobResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.jobs[jobHandle]
	if !ok {
		return JobResult{}, fmt.Errorf("unknown job handle %s", jobHandle)
	}
	return res, nil
}

// Complete resolves a job as succeeded with the given invoice payload.
func (m *MemoryClient) Complete(jobHandle string, invoice Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobHandle] = JobResult{Status: JobStatusSucceeded, Invoice: &invoice}
}

// Fail resolves a job as failed with a reason.
func (m *MemoryClient) Fail(jobHandle string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobHandle] = JobResult{Status: JobStatusFailed, FailureReason: reason}
}

// FailStarts makes subsequent StartJob calls return err.
func (m *MemoryClient) FailStarts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

var _ Client = (*MemoryClient)(nil)
