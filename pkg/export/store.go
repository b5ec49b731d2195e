package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

// DefaultPageSize is the default page size for org-scoped job listings.
const DefaultPageSize = 50

// JobStore persists export jobs. Every state transition is its own
// commit, so external observers see progress as it happens.
type JobStore interface {
	Insert(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns org jobs newest first. limit <= 0 means DefaultPageSize.
	List(ctx context.Context, orgID string, limit int) ([]*Job, error)
	// CountCreatedSince counts org jobs created at or after since. The
	// rolling-hour rate limit is a stateless query over these timestamps
	// so it holds across worker processes.
	CountCreatedSince(ctx context.Context, orgID string, since time.Time) (int, error)
	// MarkProcessing transitions pending -> processing.
	MarkProcessing(ctx context.Context, id string) error
	// MarkCompleted is the single terminal commit for a successful job.
	MarkCompleted(ctx context.Context, id, filePath string, recordCount int, at time.Time) error
	// MarkFailed is the single terminal commit for a failed job.
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

// SQLJobStore implements JobStore over the export_jobs table. It supports
// both Postgres and SQLite via standard drivers.
type SQLJobStore struct {
	db *sql.DB
}

// NewSQLJobStore wraps an open database handle.
func NewSQLJobStore(db *sql.DB) *SQLJobStore {
	return &SQLJobStore{db: db}
}

const jobColumns = `id, org_id, created_by_user_id, status, export_type, format, redact_mode,
	date_range_start, date_range_end, record_count, file_path, error_message, created_at, completed_at`

func (s *SQLJobStore) Insert(ctx context.Context, job *Job) error {
	query := `INSERT INTO export_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.OrgID, job.CreatedByUserID, job.Status, job.ExportType, job.Format, job.RedactMode,
		job.DateRangeStart, job.DateRangeEnd, job.RecordCount, job.FilePath, job.ErrorMessage,
		job.CreatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("export: insert job: %w", err)
	}
	return nil
}

func (s *SQLJobStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.CodeNotFound, "export job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("export: get job: %w", err)
	}
	return job, nil
}

func (s *SQLJobStore) List(ctx context.Context, orgID string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	query := `SELECT ` + jobColumns + ` FROM export_jobs
		WHERE org_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("export: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("export: list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export: list jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLJobStore) CountCreatedSince(ctx context.Context, orgID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM export_jobs WHERE org_id = $1 AND created_at >= $2`
	var count int
	if err := s.db.QueryRowContext(ctx, query, orgID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("export: count recent jobs: %w", err)
	}
	return count, nil
}

func (s *SQLJobStore) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE export_jobs SET status = $1 WHERE id = $2 AND status = $3`
	res, err := s.db.ExecContext(ctx, query, StatusProcessing, id, StatusPending)
	if err != nil {
		return fmt.Errorf("export: mark processing: %w", err)
	}
	return requireTransition(res, id)
}

func (s *SQLJobStore) MarkCompleted(ctx context.Context, id, filePath string, recordCount int, at time.Time) error {
	query := `UPDATE export_jobs
		SET status = $1, file_path = $2, record_count = $3, completed_at = $4
		WHERE id = $5 AND status = $6`
	res, err := s.db.ExecContext(ctx, query, StatusCompleted, filePath, recordCount, at, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("export: mark completed: %w", err)
	}
	return requireTransition(res, id)
}

func (s *SQLJobStore) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	query := `UPDATE export_jobs
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4 AND status = $5`
	res, err := s.db.ExecContext(ctx, query, StatusFailed, truncateMessage(message), at, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("export: mark failed: %w", err)
	}
	return requireTransition(res, id)
}

func requireTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("export: check rows affected: %w", err)
	}
	if n == 0 {
		return fault.New(fault.CodeInvalidStateMove, "job %s is not in the required state", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j           Job
		recordCount sql.NullInt64
		filePath    sql.NullString
		errMessage  sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&j.ID, &j.OrgID, &j.CreatedByUserID, &j.Status, &j.ExportType, &j.Format, &j.RedactMode,
		&j.DateRangeStart, &j.DateRangeEnd, &recordCount, &filePath, &errMessage, &j.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if recordCount.Valid {
		n := int(recordCount.Int64)
		j.RecordCount = &n
	}
	if filePath.Valid {
		j.FilePath = &filePath.String
	}
	if errMessage.Valid {
		j.ErrorMessage = &errMessage.String
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}
