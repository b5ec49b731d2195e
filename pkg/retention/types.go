// Package retention implements retention-policy configuration, legal
// holds, and the purge engine that deletes aged rows across entity types
// while honoring holds.
package retention

import (
	"time"
)

// EntityType names a purgeable entity table.
type EntityType string

const (
	EntityCases        EntityType = "cases"
	EntityMatches      EntityType = "matches"
	EntityTasks        EntityType = "tasks"
	EntityNotes        EntityType = "entity_notes"
	EntityCaseActivity EntityType = "case_activity"

	// entityAuditLogs is permanently excluded from retention: the audit
	// trail is archive-only and cannot be purged through this engine.
	entityAuditLogs EntityType = "audit_logs"
)

// PurgeableEntityTypes lists the entity types the purge engine handles.
var PurgeableEntityTypes = []EntityType{
	EntityCases, EntityMatches, EntityTasks, EntityNotes, EntityCaseActivity,
}

func purgeable(et EntityType) bool {
	for _, t := range PurgeableEntityTypes {
		if t == et {
			return true
		}
	}
	return false
}

// Policy is a per-(org, entity_type) retention configuration.
type Policy struct {
	ID            string     `json:"id"`
	OrgID         string     `json:"org_id"`
	EntityType    EntityType `json:"entity_type"`
	RetentionDays int        `json:"retention_days"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Hold suspends deletion for a scope regardless of retention policy.
// EntityType nil means org-wide; EntityID nil with EntityType set blocks
// the whole entity type.
type Hold struct {
	ID              string      `json:"id"`
	OrgID           string      `json:"org_id"`
	EntityType      *EntityType `json:"entity_type,omitempty"`
	EntityID        *string     `json:"entity_id,omitempty"`
	Reason          string      `json:"reason"`
	CreatedByUserID string      `json:"created_by_user_id"`
	CreatedAt       time.Time   `json:"created_at"`
	ReleasedAt      *time.Time  `json:"released_at,omitempty"`
}

// Active reports whether the hold is in force.
func (h *Hold) Active() bool {
	return h.ReleasedAt == nil
}

// ActiveHolds is the hold state of an org at one instant, shaped for the
// purge predicate.
type ActiveHolds struct {
	// OrgWide short-circuits every policy pass to an empty result.
	OrgWide bool
	// CaseIDs protect the case rows and, by fan-out, every row in other
	// entity tables referencing those case IDs.
	CaseIDs []string
	// TypeWide entity types are blocked entirely.
	TypeWide map[EntityType]bool
	// OtherIDs protect individual non-case rows, keyed by entity type.
	OtherIDs map[EntityType][]string
}

// PurgeResult is the per-entity-type outcome of a purge pass. It is
// emitted as audit detail, never persisted.
type PurgeResult struct {
	EntityType EntityType `json:"entity_type"`
	Count      int        `json:"count"`
}
