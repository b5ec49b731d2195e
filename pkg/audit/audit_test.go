package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogChainsPerOrg(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	log := NewMemoryLog().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	first, err := log.Append(Event{OrgID: "org-1", EventType: "case.created"})
	require.NoError(t, err)
	assert.Nil(t, first.PrevHash)
	require.NotNil(t, first.EntryHash)
	assert.Contains(t, *first.EntryHash, "sha256:")

	second, err := log.Append(Event{OrgID: "org-1", EventType: "case.updated"})
	require.NoError(t, err)
	require.NotNil(t, second.PrevHash)
	assert.Equal(t, *first.EntryHash, *second.PrevHash)
	assert.Equal(t, *second.EntryHash, log.ChainHead("org-1"))

	// A second org starts its own chain.
	other, err := log.Append(Event{OrgID: "org-2", EventType: "case.created"})
	require.NoError(t, err)
	assert.Nil(t, other.PrevHash)
	assert.NotEqual(t, log.ChainHead("org-1"), log.ChainHead("org-2"))
}

func TestMemoryLogFetchRangeIsInclusiveAndOrdered(t *testing.T) {
	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	tick := -1
	log := NewMemoryLog().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	for i := 0; i < 5; i++ {
		_, err := log.Append(Event{OrgID: "org-1", EventType: "case.viewed"})
		require.NoError(t, err)
	}

	entries, err := log.FetchRange(context.Background(), "org-1", base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].CreatedAt.Before(entries[i].CreatedAt))
	}

	count, err := log.CountRange(context.Background(), "org-1", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestSQLStoreFetchRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	created := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "org_id", "event_type", "actor_user_id", "target_type", "target_id",
		"details", "ip_address", "user_agent", "request_id", "prev_hash", "entry_hash", "created_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("e1", "org-1", "case.updated", "u1", "case", "c1",
			`{"field":"status"}`, "203.0.113.9", "cli", "r1", nil, "sha256:abc", created).
		AddRow("e2", "org-1", "system.config", nil, nil, nil,
			nil, nil, nil, nil, "sha256:abc", "sha256:def", created.Add(time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs")).
		WithArgs("org-1", created.Add(-time.Hour), created.Add(time.Hour)).
		WillReturnRows(rows)

	entries, err := NewSQLStore(db).FetchRange(context.Background(), "org-1",
		created.Add(-time.Hour), created.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "u1", entries[0].ActorUserID)
	assert.Equal(t, map[string]any{"field": "status"}, entries[0].Details)
	assert.Nil(t, entries[0].PrevHash)
	require.NotNil(t, entries[0].EntryHash)

	assert.Empty(t, entries[1].ActorUserID)
	assert.Nil(t, entries[1].Details)
	require.NotNil(t, entries[1].PrevHash)
	assert.Equal(t, "sha256:abc", *entries[1].PrevHash)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCountRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WithArgs("org-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := NewSQLStore(db).CountRange(context.Background(), "org-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreRecordLeavesHashesToWriterPipeline(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sqlmock.AnyArg(), "org-1", "retention.purge_executed",
			"admin-1", nil, nil, `{"deleted":{"tasks":8}}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewSQLStore(db).Record(context.Background(), Event{
		OrgID:       "org-1",
		EventType:   EventPurgeExecuted,
		ActorUserID: "admin-1",
		Details:     map[string]any{"deleted": map[string]any{"tasks": 8}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
