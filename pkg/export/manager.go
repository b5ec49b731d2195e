package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Arclight-Systems/casetrail/pkg/audit"
	"github.com/Arclight-Systems/casetrail/pkg/fault"
	"github.com/Arclight-Systems/casetrail/pkg/observability"
	"github.com/Arclight-Systems/casetrail/pkg/scheduler"
	"github.com/Arclight-Systems/casetrail/pkg/storage"
)

// Limits bounds export job creation per org.
type Limits struct {
	// RateLimitPerHour caps jobs created in the trailing rolling hour.
	RateLimitPerHour int
	// MaxRows caps the in-range row count of a single export.
	MaxRows int
	// DownloadTTL bounds the validity of issued download URLs.
	DownloadTTL time.Duration
}

// DefaultLimits returns production defaults.
func DefaultLimits() Limits {
	return Limits{
		RateLimitPerHour: 5,
		MaxRows:          50_000,
		DownloadTTL:      15 * time.Minute,
	}
}

// CreateRequest is a validated export request.
type CreateRequest struct {
	OrgID           string
	CreatedByUserID string
	ExportType      string
	Format          Format
	RedactMode      RedactMode
	DateRangeStart  time.Time
	DateRangeEnd    time.Time
}

// Manager owns the export job lifecycle and orchestrates the pipeline:
// fetch -> build/redact -> serialize -> persist.
type Manager struct {
	jobs     JobStore
	trail    audit.Reader
	recorder audit.Recorder
	builder  *RowBuilder
	files    *FileWriter
	store    storage.Adapter
	sched    scheduler.Scheduler
	limits   Limits
	metrics  *observability.Provider
	logger   *slog.Logger
	clock    func() time.Time
}

// NewManager wires the export pipeline.
func NewManager(jobs JobStore, trail audit.Reader, recorder audit.Recorder,
	builder *RowBuilder, store storage.Adapter, sched scheduler.Scheduler,
	limits Limits, metrics *observability.Provider) *Manager {
	return &Manager{
		jobs:     jobs,
		trail:    trail,
		recorder: recorder,
		builder:  builder,
		files:    NewFileWriter(),
		store:    store,
		sched:    sched,
		limits:   limits,
		metrics:  metrics,
		logger:   slog.Default().With("component", "export"),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Create validates the request, persists a pending job, hands it to the
// scheduler, and emits an audit event describing the request. Any
// validation failure aborts before a job row is persisted.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	now := m.clock().UTC()

	recent, err := m.jobs.CountCreatedSince(ctx, req.OrgID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("export: rate-limit check: %w", err)
	}
	if recent >= m.limits.RateLimitPerHour {
		return nil, fault.New(fault.CodeRateLimit,
			"org %s created %d export jobs in the last hour (limit %d)",
			req.OrgID, recent, m.limits.RateLimitPerHour)
	}

	rowCount, err := m.trail.CountRange(ctx, req.OrgID, req.DateRangeStart, req.DateRangeEnd)
	if err != nil {
		return nil, fmt.Errorf("export: volume check: %w", err)
	}
	if rowCount > m.limits.MaxRows {
		return nil, fault.New(fault.CodeVolumeExceeded,
			"range holds %d rows, cap is %d; narrow the date range", rowCount, m.limits.MaxRows)
	}

	job := &Job{
		ID:              uuid.New().String(),
		OrgID:           req.OrgID,
		CreatedByUserID: req.CreatedByUserID,
		Status:          StatusPending,
		ExportType:      req.ExportType,
		Format:          req.Format,
		RedactMode:      req.RedactMode,
		DateRangeStart:  req.DateRangeStart,
		DateRangeEnd:    req.DateRangeEnd,
		CreatedAt:       now,
	}
	if err := m.jobs.Insert(ctx, job); err != nil {
		return nil, err
	}

	// Dispatch is fire-and-forget: a queue hiccup leaves the job pending
	// for a later sweep rather than failing the accepted request.
	if err := m.sched.Schedule(ctx, job.OrgID, scheduler.JobTypeAuditExport, map[string]any{"job_id": job.ID}); err != nil {
		m.logger.WarnContext(ctx, "failed to enqueue export job", "job_id", job.ID, "error", err)
	}

	if err := m.recorder.Record(ctx, audit.Event{
		OrgID:       job.OrgID,
		EventType:   audit.EventExportRequested,
		ActorUserID: job.CreatedByUserID,
		TargetType:  "export_job",
		TargetID:    job.ID,
		Details: map[string]any{
			"export_type":  job.ExportType,
			"record_count": rowCount,
			"redact_mode":  string(job.RedactMode),
			"format":       string(job.Format),
		},
	}); err != nil {
		m.logger.WarnContext(ctx, "failed to record export audit event", "job_id", job.ID, "error", err)
	}

	return job, nil
}

// Process runs one export job to a terminal state. The transition to
// processing commits before any heavy work so external observers see
// progress. Failures are recorded on the job with a bounded message and
// re-raised to the caller; they are never swallowed.
func (m *Manager) Process(ctx context.Context, jobID string) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := m.jobs.MarkProcessing(ctx, job.ID); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ExportStarted(ctx, string(job.Format))
	}

	filePath, rows, err := m.run(ctx, job)
	if err != nil {
		now := m.clock().UTC()
		if markErr := m.jobs.MarkFailed(ctx, job.ID, err.Error(), now); markErr != nil {
			m.logger.ErrorContext(ctx, "failed to record job failure", "job_id", job.ID, "error", markErr)
		}
		if m.metrics != nil {
			m.metrics.ExportFailed(ctx, string(job.Format))
		}
		return fault.Wrap(fault.CodeProcessing, err, "export job %s failed", job.ID)
	}

	now := m.clock().UTC()
	if err := m.jobs.MarkCompleted(ctx, job.ID, filePath, rows, now); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ExportCompleted(ctx, string(job.Format), rows)
	}
	m.logger.InfoContext(ctx, "export completed",
		"job_id", job.ID, "org_id", job.OrgID, "rows", rows, "path", filePath)
	return nil
}

// run executes the fetch -> build -> serialize -> persist pipeline and
// returns the stored artifact path and row count.
func (m *Manager) run(ctx context.Context, job *Job) (string, int, error) {
	if m.store == nil {
		return "", 0, fault.New(fault.CodeConfiguration, "storage backend not configured")
	}

	entries, err := m.trail.FetchRange(ctx, job.OrgID, job.DateRangeStart, job.DateRangeEnd)
	if err != nil {
		return "", 0, fmt.Errorf("fetch range: %w", err)
	}

	rows, chain, err := m.builder.Build(ctx, job.OrgID, entries, job.RedactMode)
	if err != nil {
		return "", 0, err
	}

	var body bytes.Buffer
	if err := m.files.Write(&body, rows, job.Format); err != nil {
		return "", 0, err
	}

	var sidecarBody bytes.Buffer
	sidecar := NewSidecar(job.ID, job.RedactMode, len(rows), chain, m.clock())
	if err := m.files.WriteSidecar(&sidecarBody, sidecar); err != nil {
		return "", 0, err
	}

	filename := fmt.Sprintf("audit_export_%s.%s", job.ID, job.Format)
	sidecarName := fmt.Sprintf("audit_export_%s.metadata.json", job.ID)

	filePath, err := m.store.Put(ctx, job.OrgID, filename, body.Bytes())
	if err != nil {
		return "", 0, fmt.Errorf("persist artifact: %w", err)
	}
	if _, err := m.store.Put(ctx, job.OrgID, sidecarName, sidecarBody.Bytes()); err != nil {
		return "", 0, fmt.Errorf("persist sidecar: %w", err)
	}

	return filePath, len(rows), nil
}

// DownloadURL returns a retrieval URL for a completed job. Jobs in any
// other state, and completed jobs without a file path, yield no URL.
func (m *Manager) DownloadURL(ctx context.Context, job *Job) (string, error) {
	if job == nil || job.Status != StatusCompleted || job.FilePath == nil {
		return "", nil
	}
	return m.store.DownloadURL(ctx, *job.FilePath, m.limits.DownloadTTL)
}

// Get returns one job by ID.
func (m *Manager) Get(ctx context.Context, jobID string) (*Job, error) {
	return m.jobs.Get(ctx, jobID)
}

// List returns org jobs, newest first.
func (m *Manager) List(ctx context.Context, orgID string, limit int) ([]*Job, error) {
	return m.jobs.List(ctx, orgID, limit)
}

func validateRequest(req CreateRequest) error {
	if req.OrgID == "" {
		return fault.New(fault.CodeValidation, "org_id must not be empty")
	}
	if req.CreatedByUserID == "" {
		return fault.New(fault.CodeValidation, "created_by_user_id must not be empty")
	}
	if !req.DateRangeStart.Before(req.DateRangeEnd) {
		return fault.New(fault.CodeValidation, "date_range_start must be before date_range_end")
	}
	switch req.Format {
	case FormatCSV, FormatJSON:
	default:
		return fault.New(fault.CodeValidation, "unsupported format %q", req.Format)
	}
	switch req.RedactMode {
	case RedactModeRedacted, RedactModeFull:
	default:
		return fault.New(fault.CodeValidation, "unsupported redact_mode %q", req.RedactMode)
	}
	return nil
}
