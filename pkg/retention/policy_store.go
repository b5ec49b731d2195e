package retention

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

// PolicyStore persists retention policies, unique per (org, entity_type).
// It supports both Postgres and SQLite via standard drivers.
type PolicyStore struct {
	db *sql.DB
}

// NewPolicyStore wraps an open database handle.
func NewPolicyStore(db *sql.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// Upsert creates or updates the policy for (org, entity type).
// entity_type "audit_logs" always fails: the trail is archive-only.
func (s *PolicyStore) Upsert(ctx context.Context, orgID string, entityType EntityType, retentionDays int, isActive bool) (*Policy, error) {
	if entityType == entityAuditLogs {
		return nil, fault.New(fault.CodeTrailProtected,
			"the audit trail is archive-only and cannot be governed by a retention policy")
	}
	if !purgeable(entityType) {
		return nil, fault.New(fault.CodeUnknownEntity, "unknown entity type %q", entityType)
	}
	if retentionDays < 0 {
		return nil, fault.New(fault.CodeValidation, "retention_days must not be negative")
	}

	now := time.Now().UTC()
	policy := &Policy{
		ID:            uuid.New().String(),
		OrgID:         orgID,
		EntityType:    entityType,
		RetentionDays: retentionDays,
		IsActive:      isActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	query := `INSERT INTO data_retention_policies (id, org_id, entity_type, retention_days, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (org_id, entity_type) DO UPDATE SET
			retention_days = EXCLUDED.retention_days,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		policy.ID, policy.OrgID, policy.EntityType, policy.RetentionDays,
		policy.IsActive, policy.CreatedAt, policy.UpdatedAt); err != nil {
		return nil, fmt.Errorf("retention: upsert policy: %w", err)
	}
	return policy, nil
}

// Delete removes the policy for (org, entity type).
func (s *PolicyStore) Delete(ctx context.Context, orgID string, entityType EntityType) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM data_retention_policies WHERE org_id = $1 AND entity_type = $2`,
		orgID, entityType)
	if err != nil {
		return fmt.Errorf("retention: delete policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retention: delete policy: %w", err)
	}
	if n == 0 {
		return fault.New(fault.CodeNotFound, "no retention policy for %s/%s", orgID, entityType)
	}
	return nil
}

const policyColumns = `id, org_id, entity_type, retention_days, is_active, created_at, updated_at`

// Get returns the policy for (org, entity type).
func (s *PolicyStore) Get(ctx context.Context, orgID string, entityType EntityType) (*Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM data_retention_policies WHERE org_id = $1 AND entity_type = $2`
	var p Policy
	err := s.db.QueryRowContext(ctx, query, orgID, entityType).
		Scan(&p.ID, &p.OrgID, &p.EntityType, &p.RetentionDays, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.CodeNotFound, "no retention policy for %s/%s", orgID, entityType)
	}
	if err != nil {
		return nil, fmt.Errorf("retention: get policy: %w", err)
	}
	return &p, nil
}

// List returns all org policies.
func (s *PolicyStore) List(ctx context.Context, orgID string) ([]Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM data_retention_policies WHERE org_id = $1 ORDER BY entity_type`
	return s.scanPolicies(ctx, query, orgID)
}

// ActivePolicies returns org policies that are active with a non-zero
// retention window; only these drive a purge pass.
func (s *PolicyStore) ActivePolicies(ctx context.Context, orgID string) ([]Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM data_retention_policies
		WHERE org_id = $1 AND is_active = TRUE AND retention_days > 0 ORDER BY entity_type`
	return s.scanPolicies(ctx, query, orgID)
}

func (s *PolicyStore) scanPolicies(ctx context.Context, query string, args ...any) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("retention: list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Policy, 0)
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.OrgID, &p.EntityType, &p.RetentionDays, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("retention: scan policy: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retention: list policies: %w", err)
	}
	return out, nil
}
