package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-process, hash-chained audit trail implementing both
// Reader and Recorder. One chain per org; append-only. Used by the worker
// in embedded deployments and throughout the tests.
type MemoryLog struct {
	mu        sync.RWMutex
	entries   []Entry
	chainHead map[string]string
	clock     func() time.Time
}

// NewMemoryLog creates an empty in-memory trail.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		chainHead: make(map[string]string),
		clock:     time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *MemoryLog) WithClock(clock func() time.Time) *MemoryLog {
	l.clock = clock
	return l
}

// Record appends an event, computing entry_hash over the entry content
// and the per-org chain head.
func (l *MemoryLog) Record(ctx context.Context, event Event) error {
	_, err := l.Append(event)
	return err
}

// Append appends an event and returns the stored entry.
func (l *MemoryLog) Append(event Event) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:          uuid.New().String(),
		OrgID:       event.OrgID,
		EventType:   event.EventType,
		ActorUserID: event.ActorUserID,
		TargetType:  event.TargetType,
		TargetID:    event.TargetID,
		Details:     event.Details,
		CreatedAt:   l.clock().UTC(),
	}

	if head, ok := l.chainHead[event.OrgID]; ok {
		entry.PrevHash = &head
	}
	hash, err := entryHash(&entry)
	if err != nil {
		return nil, fmt.Errorf("audit: compute entry hash: %w", err)
	}
	entry.EntryHash = &hash
	l.chainHead[event.OrgID] = hash

	l.entries = append(l.entries, entry)
	return &entry, nil
}

func entryHash(e *Entry) (string, error) {
	hashable := struct {
		OrgID     string         `json:"org_id"`
		EventType string         `json:"event_type"`
		Actor     string         `json:"actor"`
		Target    string         `json:"target"`
		Details   map[string]any `json:"details"`
		PrevHash  *string        `json:"prev_hash"`
		CreatedAt time.Time      `json:"created_at"`
	}{e.OrgID, e.EventType, e.ActorUserID, e.TargetType + "/" + e.TargetID, e.Details, e.PrevHash, e.CreatedAt}

	raw, err := json.Marshal(hashable)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// FetchRange returns org entries in the inclusive range, ordered by
// (created_at, id).
func (l *MemoryLog) FetchRange(ctx context.Context, orgID string, start, end time.Time) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range l.entries {
		if e.OrgID != orgID {
			continue
		}
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountRange returns the number of org entries in the inclusive range.
func (l *MemoryLog) CountRange(ctx context.Context, orgID string, start, end time.Time) (int, error) {
	entries, err := l.FetchRange(ctx, orgID, start, end)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ChainHead returns the current head hash for an org, or "" when the
// org's chain is empty.
func (l *MemoryLog) ChainHead(orgID string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chainHead[orgID]
}

// Size returns the number of stored entries across all orgs.
func (l *MemoryLog) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
