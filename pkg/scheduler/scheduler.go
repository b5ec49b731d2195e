// Package scheduler is the dispatch boundary between export job creation
// and job processing. Enqueueing is fire-and-forget; at-most-once dispatch
// per job is the queue's responsibility.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobTypeAuditExport dispatches an export job; the payload carries job_id.
const JobTypeAuditExport = "audit_export"

// ErrNoTask is returned by Next when the queue stays empty past the wait.
var ErrNoTask = errors.New("scheduler: no task available")

// Task is one queued unit of work.
type Task struct {
	OrgID      string         `json:"org_id"`
	JobType    string         `json:"job_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Scheduler enqueues work for later processing.
type Scheduler interface {
	Schedule(ctx context.Context, orgID, jobType string, payload map[string]any) error
}

// RedisScheduler is a Redis-list-backed queue. Workers drain it with Next.
type RedisScheduler struct {
	client *redis.Client
	queue  string
}

// NewRedisScheduler connects to Redis and uses the named list as the queue.
func NewRedisScheduler(addr, password string, db int, queue string) *RedisScheduler {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisScheduler{client: rdb, queue: queue}
}

// Schedule pushes a task onto the queue.
func (s *RedisScheduler) Schedule(ctx context.Context, orgID, jobType string, payload map[string]any) error {
	task := Task{
		OrgID:      orgID,
		JobType:    jobType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("scheduler: marshal task: %w", err)
	}
	if err := s.client.LPush(ctx, s.queue, raw).Err(); err != nil {
		return fmt.Errorf("scheduler: enqueue: %w", err)
	}
	return nil
}

// Next blocks up to wait for the next task. Redis's BRPOP gives each task
// to exactly one worker, which is what keeps per-job processing at most
// once across a worker fleet.
func (s *RedisScheduler) Next(ctx context.Context, wait time.Duration) (*Task, error) {
	res, err := s.client.BRPop(ctx, wait, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoTask
		}
		return nil, fmt.Errorf("scheduler: dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("scheduler: decode task: %w", err)
	}
	return &task, nil
}

// Close releases the underlying Redis connection.
func (s *RedisScheduler) Close() error {
	return s.client.Close()
}

// MemoryScheduler records scheduled tasks in order. Testing aid.
type MemoryScheduler struct {
	mu    sync.Mutex
	tasks []Task
}

// NewMemoryScheduler creates an empty in-memory scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

// Schedule appends the task to the in-memory list.
func (s *MemoryScheduler) Schedule(_ context.Context, orgID, jobType string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, Task{
		OrgID:      orgID,
		JobType:    jobType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	})
	return nil
}

// Tasks returns a copy of everything scheduled so far.
func (s *MemoryScheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}
