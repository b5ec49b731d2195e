package retention

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Arclight-Systems/casetrail/pkg/audit"
	"github.com/Arclight-Systems/casetrail/pkg/observability"
)

// entitySpec describes how one entity table participates in retention.
// agePredicate carries one %s verb for the cutoff placeholder.
type entitySpec struct {
	table        string
	agePredicate string
	hasCaseID    bool
}

var entitySpecs = map[EntityType]entitySpec{
	EntityCases:        {table: "cases", agePredicate: "archived_at IS NOT NULL AND archived_at < %s"},
	EntityMatches:      {table: "matches", agePredicate: "updated_at < %s", hasCaseID: true},
	EntityTasks:        {table: "tasks", agePredicate: "is_completed = TRUE AND completed_at IS NOT NULL AND completed_at < %s", hasCaseID: true},
	EntityNotes:        {table: "entity_notes", agePredicate: "created_at < %s", hasCaseID: true},
	EntityCaseActivity: {table: "case_activity", agePredicate: "created_at < %s", hasCaseID: true},
}

// PurgeEngine computes and executes retention-based deletion across
// entity types, honoring legal holds.
type PurgeEngine struct {
	db       *sql.DB
	policies *PolicyStore
	holds    *HoldRegistry
	recorder audit.Recorder
	metrics  *observability.Provider
	logger   *slog.Logger
	clock    func() time.Time
}

// NewPurgeEngine wires the purge pass.
func NewPurgeEngine(db *sql.DB, policies *PolicyStore, holds *HoldRegistry,
	recorder audit.Recorder, metrics *observability.Provider) *PurgeEngine {
	return &PurgeEngine{
		db:       db,
		policies: policies,
		holds:    holds,
		recorder: recorder,
		metrics:  metrics,
		logger:   slog.Default().With("component", "retention"),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (e *PurgeEngine) WithClock(clock func() time.Time) *PurgeEngine {
	e.clock = clock
	return e
}

// Preview returns the per-entity-type counts a purge pass would delete,
// using the exact execute predicate, without mutating anything.
func (e *PurgeEngine) Preview(ctx context.Context, orgID string) ([]PurgeResult, error) {
	policies, err := e.policies.ActivePolicies(ctx, orgID)
	if err != nil {
		return nil, err
	}
	holds, err := e.holds.Active(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if holds.OrgWide {
		return []PurgeResult{}, nil
	}

	now := e.clock().UTC()
	results := make([]PurgeResult, 0, len(policies))
	for _, policy := range policies {
		if holds.TypeWide[policy.EntityType] {
			continue
		}
		where, args := purgePredicate(policy.EntityType, orgID, cutoff(now, policy.RetentionDays), holds)
		spec := entitySpecs[policy.EntityType]
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", spec.table, where)
		if err := e.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("retention: preview %s: %w", policy.EntityType, err)
		}
		results = append(results, PurgeResult{EntityType: policy.EntityType, Count: count})
	}
	return results, nil
}

// Execute deletes eligible rows per active non-zero-day policy. The whole
// pass runs in a single transaction committed once at the end, so a hold
// created mid-pass either fully applies or doesn't: holds are read once,
// at pass start, inside the transaction. One consolidated audit event
// carries the per-entity-type counts.
func (e *PurgeEngine) Execute(ctx context.Context, orgID, actorUserID string) ([]PurgeResult, error) {
	policies, err := e.policies.ActivePolicies(ctx, orgID)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("retention: begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	holds, err := activeHolds(ctx, tx, orgID)
	if err != nil {
		return nil, err
	}
	if holds.OrgWide {
		e.logger.InfoContext(ctx, "purge skipped, org-wide legal hold active", "org_id", orgID)
		return []PurgeResult{}, nil
	}

	now := e.clock().UTC()
	results := make([]PurgeResult, 0, len(policies))
	for _, policy := range policies {
		if holds.TypeWide[policy.EntityType] {
			continue
		}
		where, args := purgePredicate(policy.EntityType, orgID, cutoff(now, policy.RetentionDays), holds)
		spec := entitySpecs[policy.EntityType]
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", spec.table, where)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("retention: purge %s: %w", policy.EntityType, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("retention: purge %s: %w", policy.EntityType, err)
		}
		results = append(results, PurgeResult{EntityType: policy.EntityType, Count: int(n)})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("retention: commit purge: %w", err)
	}

	for _, r := range results {
		if e.metrics != nil {
			e.metrics.PurgeExecuted(ctx, string(r.EntityType), r.Count)
		}
	}

	counts := make(map[string]any, len(results))
	for _, r := range results {
		counts[string(r.EntityType)] = r.Count
	}
	if err := e.recorder.Record(ctx, audit.Event{
		OrgID:       orgID,
		EventType:   audit.EventPurgeExecuted,
		ActorUserID: actorUserID,
		Details:     map[string]any{"deleted": counts},
	}); err != nil {
		e.logger.WarnContext(ctx, "failed to record purge audit event", "org_id", orgID, "error", err)
	}

	e.logger.InfoContext(ctx, "purge executed", "org_id", orgID, "entity_types", len(results))
	return results, nil
}

func cutoff(now time.Time, retentionDays int) time.Time {
	return now.AddDate(0, 0, -retentionDays)
}

// purgePredicate builds the WHERE clause shared by preview and execute:
// org scope, age cutoff, entity-specific eligibility, and exclusion of
// rows linked directly or via case_id to an active hold.
func purgePredicate(et EntityType, orgID string, cutoff time.Time, holds *ActiveHolds) (string, []any) {
	spec := entitySpecs[et]
	args := []any{orgID, cutoff}
	clauses := []string{
		"org_id = $1",
		fmt.Sprintf(spec.agePredicate, "$2"),
	}

	if et == EntityCases {
		if clause := notIn("id", holds.CaseIDs, &args); clause != "" {
			clauses = append(clauses, clause)
		}
	} else if spec.hasCaseID {
		if clause := notIn("case_id", holds.CaseIDs, &args); clause != "" {
			clauses = append(clauses, "(case_id IS NULL OR "+clause+")")
		}
	}
	if clause := notIn("id", holds.OtherIDs[et], &args); clause != "" {
		clauses = append(clauses, clause)
	}

	return strings.Join(clauses, " AND "), args
}

// notIn appends ids to args and returns a "col NOT IN (...)" clause, or
// "" when ids is empty.
func notIn(column string, ids []string, args *[]any) string {
	if len(ids) == 0 {
		return ""
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		*args = append(*args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return fmt.Sprintf("%s NOT IN (%s)", column, strings.Join(placeholders, ", "))
}
