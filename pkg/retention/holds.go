package retention

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

// HoldRegistry persists legal holds. It supports both Postgres and SQLite
// via standard drivers.
type HoldRegistry struct {
	db *sql.DB
}

// NewHoldRegistry wraps an open database handle.
func NewHoldRegistry(db *sql.DB) *HoldRegistry {
	return &HoldRegistry{db: db}
}

// CreateHoldRequest describes a new hold. EntityType nil creates an
// org-wide hold.
type CreateHoldRequest struct {
	OrgID           string
	EntityType      *EntityType
	EntityID        *string
	Reason          string
	CreatedByUserID string
}

// Create records a new active hold.
func (r *HoldRegistry) Create(ctx context.Context, req CreateHoldRequest) (*Hold, error) {
	if req.OrgID == "" {
		return nil, fault.New(fault.CodeValidation, "org_id must not be empty")
	}
	if req.Reason == "" {
		return nil, fault.New(fault.CodeValidation, "a legal hold requires a reason")
	}
	if req.EntityType != nil && !purgeable(*req.EntityType) {
		return nil, fault.New(fault.CodeUnknownEntity, "unknown entity type %q", *req.EntityType)
	}
	if req.EntityType == nil && req.EntityID != nil {
		return nil, fault.New(fault.CodeValidation, "entity_id requires an entity_type")
	}

	hold := &Hold{
		ID:              uuid.New().String(),
		OrgID:           req.OrgID,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		Reason:          req.Reason,
		CreatedByUserID: req.CreatedByUserID,
		CreatedAt:       time.Now().UTC(),
	}

	query := `INSERT INTO legal_holds (id, org_id, entity_type, entity_id, reason, created_by_user_id, created_at, released_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL)`
	if _, err := r.db.ExecContext(ctx, query,
		hold.ID, hold.OrgID, nullableEntityType(hold.EntityType), nullableString(hold.EntityID),
		hold.Reason, hold.CreatedByUserID, hold.CreatedAt); err != nil {
		return nil, fmt.Errorf("retention: create hold: %w", err)
	}
	return hold, nil
}

// Release marks an active hold as released. Releasing an unknown or
// already-released hold is a not-found condition.
func (r *HoldRegistry) Release(ctx context.Context, holdID string) error {
	query := `UPDATE legal_holds SET released_at = $1 WHERE id = $2 AND released_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), holdID)
	if err != nil {
		return fmt.Errorf("retention: release hold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retention: release hold: %w", err)
	}
	if n == 0 {
		return fault.New(fault.CodeNotFound, "no active hold %s", holdID)
	}
	return nil
}

const holdColumns = `id, org_id, entity_type, entity_id, reason, created_by_user_id, created_at, released_at`

// List returns org holds, active ones first, newest first within each group.
func (r *HoldRegistry) List(ctx context.Context, orgID string, includeReleased bool) ([]Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM legal_holds WHERE org_id = $1`
	if !includeReleased {
		query += ` AND released_at IS NULL`
	}
	query += ` ORDER BY released_at IS NOT NULL, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("retention: list holds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Hold, 0)
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *hold)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retention: list holds: %w", err)
	}
	return out, nil
}

// Active returns the org's hold state shaped for the purge predicate.
// querier lets the purge engine read holds inside its own transaction.
func (r *HoldRegistry) Active(ctx context.Context, orgID string) (*ActiveHolds, error) {
	return activeHolds(ctx, r.db, orgID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func activeHolds(ctx context.Context, q querier, orgID string) (*ActiveHolds, error) {
	query := `SELECT ` + holdColumns + ` FROM legal_holds WHERE org_id = $1 AND released_at IS NULL`
	rows, err := q.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("retention: fetch active holds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	active := &ActiveHolds{
		TypeWide: make(map[EntityType]bool),
		OtherIDs: make(map[EntityType][]string),
	}
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		switch {
		case hold.EntityType == nil:
			active.OrgWide = true
		case hold.EntityID == nil:
			active.TypeWide[*hold.EntityType] = true
		case *hold.EntityType == EntityCases:
			active.CaseIDs = append(active.CaseIDs, *hold.EntityID)
		default:
			active.OtherIDs[*hold.EntityType] = append(active.OtherIDs[*hold.EntityType], *hold.EntityID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retention: fetch active holds: %w", err)
	}
	return active, nil
}

func scanHold(rows *sql.Rows) (*Hold, error) {
	var (
		h          Hold
		entityType sql.NullString
		entityID   sql.NullString
		releasedAt sql.NullTime
	)
	if err := rows.Scan(&h.ID, &h.OrgID, &entityType, &entityID, &h.Reason,
		&h.CreatedByUserID, &h.CreatedAt, &releasedAt); err != nil {
		return nil, fmt.Errorf("retention: scan hold: %w", err)
	}
	if entityType.Valid {
		et := EntityType(entityType.String)
		h.EntityType = &et
	}
	if entityID.Valid {
		h.EntityID = &entityID.String
	}
	if releasedAt.Valid {
		h.ReleasedAt = &releasedAt.Time
	}
	return &h, nil
}

func nullableEntityType(et *EntityType) any {
	if et == nil {
		return nil
	}
	return string(*et)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
