package engine

import (
	"context"
	"testing"

	"milk_run/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCycle_RejectsSecondActiveSameMode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cycle, err := StartCycle(ctx, db, model.ModeNormal)
	require.NoError(t, err)
	assert.NotZero(t, cycle.ID)
	assert.Nil(t, cycle.EndedAt)

	_, err = StartCycle(ctx, db, model.ModeNormal)
	assert.ErrorIs(t, err, ErrCycleActive)

	// 另一模式的周期互不影响
	_, err = StartCycle(ctx, db, model.ModeCustom)
	assert.NoError(t, err)
}

func TestStopCycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := StopCycle(ctx, db)
	assert.ErrorIs(t, err, ErrNotFound)

	started, err := StartCycle(ctx, db, model.ModeNormal)
	require.NoError(t, err)

	stopped, err := StopCycle(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, started.ID, stopped.ID)
	assert.NotNil(t, stopped.EndedAt)

	_, err = StopCycle(ctx, db)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCycles_FiltersByMode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := StartCycle(ctx, db, model.ModeNormal)
	require.NoError(t, err)
	_, err = StartCycle(ctx, db, model.ModeCustom)
	require.NoError(t, err)

	cycles, err := ListCycles(ctx, db, model.ModeNormal)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, model.ModeNormal, cycles[0].Mode)
}

func TestCycleLogs_RendersOrderActivity(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	cycle, err := StartCycle(ctx, db, model.ModeNormal)
	require.NoError(t, err)

	delivered, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	_, err = lc.Advance(ctx, delivered.ID)
	require.NoError(t, err)
	_, err = lc.Advance(ctx, delivered.ID)
	require.NoError(t, err)

	cancelled, err := lc.CreateOrder(ctx, "VIS-01", 1, model.ModeNormal)
	require.NoError(t, err)
	_, err = lc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	logs, err := CycleLogs(ctx, db, cycle.ID, model.ModeNormal)
	require.NoError(t, err)

	joined := ""
	for _, l := range logs {
		joined += l + "\n"
	}
	assert.Contains(t, joined, "Demande : Vis (par Poste A)")
	assert.Contains(t, joined, "Retrait : Vis (au Magasin)")
	assert.Contains(t, joined, "Livré : Vis (au Poste A)")
	assert.Contains(t, joined, "Annulé : Vis")
}

func TestCycleLogs_CustomSuffix(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	lc := NewLifecycle(db, nil)
	ctx := context.Background()

	cycle, err := StartCycle(ctx, db, model.ModeCustom)
	require.NoError(t, err)
	_, err = lc.CreateCustomOrder(ctx, 1, 2)
	require.NoError(t, err)

	logs, err := CycleLogs(ctx, db, cycle.ID, model.ModeCustom)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "(Personnalisé)")
}

func TestCycleLogs_EmptyCycle(t *testing.T) {
	db := newTestDB(t)
	seedFloor(t, db)
	ctx := context.Background()

	cycle, err := StartCycle(ctx, db, model.ModeNormal)
	require.NoError(t, err)

	logs, err := CycleLogs(ctx, db, cycle.ID, model.ModeNormal)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Aucune activité dans ce cycle Normal.", logs[0])
}

func TestCycleLogs_UnknownCycle(t *testing.T) {
	db := newTestDB(t)
	_, err := CycleLogs(context.Background(), db, 42, model.ModeNormal)
	assert.ErrorIs(t, err, ErrNotFound)
}
