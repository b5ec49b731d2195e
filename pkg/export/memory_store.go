package export

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

// MemoryJobStore is an in-process JobStore with the same transition
// semantics as the SQL store. Used in tests and embedded deployments.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*Job)}
}

func (s *MemoryJobStore) Insert(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fault.New(fault.CodeNotFound, "export job %s not found", id)
	}
	clone := *job
	return &clone, nil
}

func (s *MemoryJobStore) List(ctx context.Context, orgID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Job, 0)
	for _, job := range s.jobs {
		if job.OrgID == orgID {
			clone := *job
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryJobStore) CountCreatedSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.jobs {
		if job.OrgID == orgID && !job.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryJobStore) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(id, StatusPending, func(j *Job) {
		j.Status = StatusProcessing
	})
}

func (s *MemoryJobStore) MarkCompleted(ctx context.Context, id, filePath string, recordCount int, at time.Time) error {
	return s.transition(id, StatusProcessing, func(j *Job) {
		j.Status = StatusCompleted
		j.FilePath = &filePath
		j.RecordCount = &recordCount
		j.CompletedAt = &at
	})
}

func (s *MemoryJobStore) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	msg := truncateMessage(message)
	return s.transition(id, StatusProcessing, func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = &msg
		j.CompletedAt = &at
	})
}

func (s *MemoryJobStore) transition(id string, from Status, apply func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fault.New(fault.CodeNotFound, "export job %s not found", id)
	}
	if job.Status != from {
		return fault.New(fault.CodeInvalidStateMove, "job %s is not in the required state", id)
	}
	apply(job)
	return nil
}
