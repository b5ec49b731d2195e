package scheduler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySchedulerRecordsTasksInOrder(t *testing.T) {
	s := NewMemoryScheduler()
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "org-1", JobTypeAuditExport, map[string]any{"job_id": "j1"}))
	require.NoError(t, s.Schedule(ctx, "org-2", JobTypeAuditExport, map[string]any{"job_id": "j2"}))

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "org-1", tasks[0].OrgID)
	assert.Equal(t, "j1", tasks[0].Payload["job_id"])
	assert.Equal(t, "j2", tasks[1].Payload["job_id"])
	assert.False(t, tasks[0].EnqueuedAt.IsZero())

	// Tasks returns a copy.
	tasks[0].OrgID = "mutated"
	assert.Equal(t, "org-1", s.Tasks()[0].OrgID)
}

func TestTaskWireFormat(t *testing.T) {
	task := Task{
		OrgID:   "org-1",
		JobType: JobTypeAuditExport,
		Payload: map[string]any{"job_id": "j1"},
	}
	raw, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded Task
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "audit_export", decoded.JobType)
	assert.Equal(t, "j1", decoded.Payload["job_id"])
}
