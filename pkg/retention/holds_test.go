package retention

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arclight-Systems/casetrail/pkg/fault"
)

func TestHoldCreateValidation(t *testing.T) {
	reg := NewHoldRegistry(newTestDB(t))
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateHoldRequest{Reason: "x", CreatedByUserID: "u1"})
	assert.ErrorIs(t, err, fault.ErrValidation)

	_, err = reg.Create(ctx, CreateHoldRequest{OrgID: "org-1", CreatedByUserID: "u1"})
	assert.ErrorIs(t, err, fault.ErrValidation)

	bad := EntityType("invoices")
	_, err = reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", EntityType: &bad, Reason: "x", CreatedByUserID: "u1",
	})
	assert.ErrorIs(t, err, fault.ErrUnknownEntity)

	id := "row-1"
	_, err = reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", EntityID: &id, Reason: "x", CreatedByUserID: "u1",
	})
	assert.ErrorIs(t, err, fault.ErrValidation)
}

func TestHoldLifecycle(t *testing.T) {
	reg := NewHoldRegistry(newTestDB(t))
	ctx := context.Background()

	hold, err := reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", Reason: "litigation", CreatedByUserID: "u1",
	})
	require.NoError(t, err)
	assert.True(t, hold.Active())

	holds, err := reg.List(ctx, "org-1", false)
	require.NoError(t, err)
	require.Len(t, holds, 1)

	require.NoError(t, reg.Release(ctx, hold.ID))

	holds, err = reg.List(ctx, "org-1", false)
	require.NoError(t, err)
	assert.Empty(t, holds)

	holds, err = reg.List(ctx, "org-1", true)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.False(t, holds[0].Active())

	// Releasing again is a not-found condition.
	err = reg.Release(ctx, hold.ID)
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestHoldReleaseUnknown(t *testing.T) {
	reg := NewHoldRegistry(newTestDB(t))
	err := reg.Release(context.Background(), "nope")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestActiveHoldsClassification(t *testing.T) {
	reg := NewHoldRegistry(newTestDB(t))
	ctx := context.Background()

	tasks := EntityTasks
	cases := EntityCases
	caseID := "case-7"
	taskID := "task-9"

	_, err := reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", EntityType: &tasks, Reason: "type-wide", CreatedByUserID: "u1",
	})
	require.NoError(t, err)
	_, err = reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", EntityType: &cases, EntityID: &caseID, Reason: "case", CreatedByUserID: "u1",
	})
	require.NoError(t, err)
	_, err = reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", EntityType: &tasks, EntityID: &taskID, Reason: "row", CreatedByUserID: "u1",
	})
	require.NoError(t, err)

	// A released org-wide hold must not count.
	released, err := reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-1", Reason: "over", CreatedByUserID: "u1",
	})
	require.NoError(t, err)
	require.NoError(t, reg.Release(ctx, released.ID))

	active, err := reg.Active(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, active.OrgWide)
	assert.True(t, active.TypeWide[EntityTasks])
	assert.Equal(t, []string{"case-7"}, active.CaseIDs)
	assert.Equal(t, []string{"task-9"}, active.OtherIDs[EntityTasks])
}

func TestActiveHoldsOtherOrgInvisible(t *testing.T) {
	reg := NewHoldRegistry(newTestDB(t))
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateHoldRequest{
		OrgID: "org-2", Reason: "theirs", CreatedByUserID: "u1",
	})
	require.NoError(t, err)

	active, err := reg.Active(ctx, "org-1")
	require.NoError(t, err)
	assert.False(t, active.OrgWide)
	assert.Empty(t, active.CaseIDs)
}
