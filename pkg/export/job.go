// Package export implements the audit export pipeline: request
// validation, the job state machine, row building with redaction, file
// serialization, and artifact persistence.
package export

import (
	"time"
)

// Status is the export job lifecycle state.
// pending -> processing -> {completed, failed}. Terminal states are
// final; there is no automatic retry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Format is the output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// RedactMode selects between masked and unmasked output.
type RedactMode string

const (
	// RedactModeRedacted masks PII for broader disclosure.
	RedactModeRedacted RedactMode = "redacted"
	// RedactModeFull leaves values unmasked, for internal/legal use.
	RedactModeFull RedactMode = "full"
)

// maxErrorMessageLen bounds the error message stored on a failed job.
const maxErrorMessageLen = 500

// Job is one export request and its lifecycle record. FilePath is set
// only on completion; ErrorMessage only on failure.
type Job struct {
	ID              string     `json:"id"`
	OrgID           string     `json:"org_id"`
	CreatedByUserID string     `json:"created_by_user_id"`
	Status          Status     `json:"status"`
	ExportType      string     `json:"export_type"`
	Format          Format     `json:"format"`
	RedactMode      RedactMode `json:"redact_mode"`
	DateRangeStart  time.Time  `json:"date_range_start"`
	DateRangeEnd    time.Time  `json:"date_range_end"`
	RecordCount     *int       `json:"record_count,omitempty"`
	FilePath        *string    `json:"file_path,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func truncateMessage(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen]
}
