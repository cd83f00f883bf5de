package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGoalArchivesPrevious(t *testing.T) {
	store := testStore(t)
	goals := NewGoalStore(store)
	ctx := context.Background()

	first, err := goals.SetGoal(ctx, "user-1", 100, "monthly")
	require.NoError(t, err)
	assert.Positive(t, first.ID)
	assert.False(t, first.EndedAtEpoch.Valid)

	second, err := goals.SetGoal(ctx, "user-1", 80, "weekly")
	require.NoError(t, err)

	active, err := goals.ActiveGoal(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.InDelta(t, 80.0, active.TargetCO2e, 0.001)
	assert.Equal(t, "weekly", active.Period)

	all, err := goals.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Exactly one active goal after replacement
	var activeCount int
	for _, g := range all {
		if !g.EndedAtEpoch.Valid {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestActiveGoalAbsent(t *testing.T) {
	store := testStore(t)
	goals := NewGoalStore(store)

	goal, err := goals.ActiveGoal(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, goal)
}

func TestGoalDefaultPeriod(t *testing.T) {
	store := testStore(t)
	goals := NewGoalStore(store)

	goal, err := goals.SetGoal(context.Background(), "user-1", 50, "")
	require.NoError(t, err)
	assert.Equal(t, "monthly", goal.Period)
}

func TestGoalDeleteByUser(t *testing.T) {
	store := testStore(t)
	goals := NewGoalStore(store)
	ctx := context.Background()

	_, err := goals.SetGoal(ctx, "user-1", 100, "monthly")
	require.NoError(t, err)

	require.NoError(t, goals.DeleteByUser(ctx, "user-1"))

	goal, err := goals.ActiveGoal(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, goal)
}
