package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLStore reads the audit_logs table and appends engine events to it.
// It supports both Postgres and SQLite via standard drivers.
//
// Appended rows carry null entry_hash/prev_hash: the chain is maintained
// by the external writer pipeline, which stamps hashes as rows are sealed.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const entryColumns = `id, org_id, event_type, actor_user_id, target_type, target_id,
	details, ip_address, user_agent, request_id, prev_hash, entry_hash, created_at`

// FetchRange returns org entries in the inclusive range in (created_at, id)
// order.
func (s *SQLStore) FetchRange(ctx context.Context, orgID string, start, end time.Time) ([]Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM audit_logs
		WHERE org_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("audit: fetch range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: fetch range: %w", err)
	}
	return result, nil
}

// CountRange returns the number of org entries in the inclusive range.
func (s *SQLStore) CountRange(ctx context.Context, orgID string, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM audit_logs WHERE org_id = $1 AND created_at >= $2 AND created_at <= $3`
	var count int
	if err := s.db.QueryRowContext(ctx, query, orgID, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit: count range: %w", err)
	}
	return count, nil
}

// Record appends one engine-emitted event.
func (s *SQLStore) Record(ctx context.Context, event Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("audit: serialize details: %w", err)
	}
	query := `INSERT INTO audit_logs (id, org_id, event_type, actor_user_id, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(), event.OrgID, event.EventType,
		nullable(event.ActorUserID), nullable(event.TargetType), nullable(event.TargetID),
		string(details), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e          Entry
		actor      sql.NullString
		targetType sql.NullString
		targetID   sql.NullString
		details    sql.NullString
		ip         sql.NullString
		agent      sql.NullString
		requestID  sql.NullString
		prevHash   sql.NullString
		entryHash  sql.NullString
	)
	err := rows.Scan(&e.ID, &e.OrgID, &e.EventType, &actor, &targetType, &targetID,
		&details, &ip, &agent, &requestID, &prevHash, &entryHash, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("audit: scan entry: %w", err)
	}
	e.ActorUserID = actor.String
	e.TargetType = targetType.String
	e.TargetID = targetID.String
	e.IPAddress = ip.String
	e.UserAgent = agent.String
	e.RequestID = requestID.String
	if prevHash.Valid {
		e.PrevHash = &prevHash.String
	}
	if entryHash.Valid {
		e.EntryHash = &entryHash.String
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return nil, fmt.Errorf("audit: decode details for entry %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
