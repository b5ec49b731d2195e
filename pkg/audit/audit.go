// Package audit defines the read-side contract over the append-only audit
// trail and the recorder used to append engine-emitted events.
//
// The write path that computes each entry's hash lives outside this
// module; readers here consume entry_hash/prev_hash as opaque values.
package audit

import (
	"context"
	"time"
)

// Event types emitted by the engine itself.
const (
	EventExportRequested = "audit_export.requested"
	EventPurgeExecuted   = "retention.purge_executed"
)

// Entry is one immutable row of the audit trail. PrevHash and EntryHash
// are populated by the external writer; either may be nil on legacy rows.
type Entry struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	EventType   string         `json:"event_type"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	TargetType  string         `json:"target_type,omitempty"`
	TargetID    string         `json:"target_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	PrevHash    *string        `json:"prev_hash"`
	EntryHash   *string        `json:"entry_hash"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Reader is the ordered read-side of the trail. Implementations must
// return rows in (created_at, id) order; the chain-contiguity check is
// meaningless otherwise.
type Reader interface {
	// FetchRange returns all entries for org in the inclusive range.
	FetchRange(ctx context.Context, orgID string, start, end time.Time) ([]Entry, error)
	// CountRange returns the number of entries in the inclusive range.
	CountRange(ctx context.Context, orgID string, start, end time.Time) (int, error)
}

// Event is an engine-emitted audit event handed to the external writer.
type Event struct {
	OrgID       string         `json:"org_id"`
	EventType   string         `json:"event_type"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	TargetType  string         `json:"target_type,omitempty"`
	TargetID    string         `json:"target_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Recorder appends one event to the trail. Hash-chain maintenance is the
// writer pipeline's responsibility, not the caller's.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}
