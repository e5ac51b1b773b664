package parking

import (
	"context"
	"testing"
	"time"

	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/parkpool-dev/parkpool/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOccupy_NotifiesCoOwners(t *testing.T) {
	t.Parallel()

	state := newFakeState()
	clock := newTestClock(_tuesdayMorning)
	engine, notifier := newTestEngine(state, clock)

	alice := state.addDriver(model.Driver{Enabled: true})
	bob := state.addDriver(model.Driver{Enabled: true})
	state.addSpot(model.ParkingSpot{ID: 12}, alice.ID, bob.ID)

	require.NoError(t, engine.Occupy(context.Background(), alice.ID, 12, false))

	spot := state.spots[12]
	require.NotNil(t, spot.CurrentDriverID)
	assert.Equal(t, alice.ID, *spot.CurrentDriverID)
	assert.True(t, spot.Occupied())

	assert.Equal(t, []model.ID{bob.ID}, notifier.recipients(notify.EventSpotOccupied),
		"the actor does not get notified about their own move")
}

func TestOccupy_TakenSpotConflicts(t *testing.T) {
	t.Parallel()

	state := newFakeState()
	clock := newTestClock(_tuesdayMorning)
	engine, _ := newTestEngine(state, clock)

	alice := state.addDriver(model.Driver{Enabled: true})
	bob := state.addDriver(model.Driver{Enabled: true})
	state.addSpot(model.ParkingSpot{ID: 12})

	require.NoError(t, engine.Occupy(context.Background(), alice.ID, 12, false))

	err := engine.Occupy(context.Background(), bob.ID, 12, false)
	assert.ErrorIs(t, err, model.ErrConflict)

	// Re-occupying your own spot is a no-op, not a conflict.
	assert.NoError(t, engine.Occupy(context.Background(), alice.ID, 12, true))
}

func TestRelease_CooldownDependsOnTimeOfDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	state := newFakeState()
	clock := newTestClock(_tuesdayMorning)
	engine, _ := newTestEngine(state, clock)

	alice := state.addDriver(model.Driver{Enabled: true})
	state.addSpot(model.ParkingSpot{ID: 12}, alice.ID)

	cfg := DefaultConfig()

	require.NoError(t, engine.Occupy(ctx, alice.ID, 12, false))

	released, err := engine.Release(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, released, 1)

	spot := state.spots[12]
	require.NotNil(t, spot.QueueEligibleAfter)
	assert.Equal(t, clock.Now().Add(cfg.CooldownDay), *spot.QueueEligibleAfter)

	// After the evening hour the long cooldown kicks in.
	evening := time.Date(2024, time.June, 4, 18, 0, 0, 0, time.UTC)
	clock.Set(evening)

	require.NoError(t, engine.Occupy(ctx, alice.ID, 12, false))
	released, err = engine.Release(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, released, 1)

	spot = state.spots[12]
	require.NotNil(t, spot.QueueEligibleAfter)
	assert.Equal(t, evening.Add(cfg.CooldownEvening), *spot.QueueEligibleAfter)
}

func TestFreeToday_OwnersOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	state := newFakeState()
	clock := newTestClock(_tuesdayMorning)
	engine, notifier := newTestEngine(state, clock)

	alice := state.addDriver(model.Driver{Enabled: true})
	bob := state.addDriver(model.Driver{Enabled: true})
	stranger := state.addDriver(model.Driver{Enabled: true})
	state.addSpot(model.ParkingSpot{ID: 12}, alice.ID, bob.ID)

	err := engine.FreeToday(ctx, stranger.ID, 12)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, engine.FreeToday(ctx, alice.ID, 12))

	spot := state.spots[12]
	require.NotNil(t, spot.Status)
	assert.Equal(t, model.SpotFree, *spot.Status)

	assert.Equal(t, []model.ID{bob.ID}, notifier.recipients(notify.EventSpotFreeToday))
}
