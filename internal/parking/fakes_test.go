package parking

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/parkpool-dev/parkpool/internal/notify"
)

// fakeState is an in-memory rendition of the persistence layer. One struct
// backs all five store interfaces so the transaction runner can snapshot
// and restore it wholesale.
type fakeState struct {
	mu sync.Mutex

	params       map[string]string
	drivers      map[model.ID]model.Driver
	spots        map[model.ID]model.ParkingSpot
	owners       map[model.ID][]model.ID
	queue        []model.QueueEntry
	reservations []model.Reservation

	nextID model.ID

	// failOn maps an operation name to an error the next call returns.
	failOn map[string]error
}

func newFakeState() *fakeState {
	return &fakeState{
		params:  make(map[string]string),
		drivers: make(map[model.ID]model.Driver),
		spots:   make(map[model.ID]model.ParkingSpot),
		owners:  make(map[model.ID][]model.ID),
		failOn:  make(map[string]error),
		nextID:  1,
	}
}

func (f *fakeState) stores() Stores {
	return Stores{
		Params:       f,
		Drivers:      driverStoreAdapter{f},
		Spots:        spotStoreAdapter{f},
		Queue:        f,
		Reservations: f,
	}
}

// inTx snapshots the state, runs fn, and restores the snapshot if fn
// fails, mimicking a rolled-back transaction.
func (f *fakeState) inTx(_ context.Context, fn func(s Stores) error) error {
	snapshot := f.snapshot()

	if err := fn(f.stores()); err != nil {
		f.restore(snapshot)
		return err
	}

	return nil
}

func (f *fakeState) snapshot() *fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := newFakeState()
	clone.params = maps.Clone(f.params)
	clone.drivers = maps.Clone(f.drivers)
	clone.spots = maps.Clone(f.spots)
	for spotID, ids := range f.owners {
		clone.owners[spotID] = slices.Clone(ids)
	}
	clone.queue = slices.Clone(f.queue)
	clone.reservations = slices.Clone(f.reservations)
	clone.nextID = f.nextID

	return clone
}

func (f *fakeState) restore(snapshot *fakeState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.params = snapshot.params
	f.drivers = snapshot.drivers
	f.spots = snapshot.spots
	f.owners = snapshot.owners
	f.queue = snapshot.queue
	f.reservations = snapshot.reservations
	f.nextID = snapshot.nextID
}

func (f *fakeState) fail(op string) (err error, failed bool) {
	if err, ok := f.failOn[op]; ok {
		delete(f.failOn, op)
		return err, true
	}
	return nil, false
}

func (f *fakeState) allocID() model.ID {
	id := f.nextID
	f.nextID++
	return id
}

// ParamStore

func (f *fakeState) Get(_ context.Context, key, def string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("params.get"); failed {
		return "", err
	}

	if value, ok := f.params[key]; ok {
		return value, nil
	}
	return def, nil
}

func (f *fakeState) Set(_ context.Context, key, value, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("params.set"); failed {
		return err
	}

	f.params[key] = value
	return nil
}

// DriverStore

func (f *fakeState) addDriver(driver model.Driver) model.Driver {
	f.mu.Lock()
	defer f.mu.Unlock()

	if driver.ID == 0 {
		driver.ID = f.allocID()
	}
	f.drivers[driver.ID] = driver
	return driver
}

func (f *fakeState) GetDriver(_ context.Context, id model.ID) (model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	driver, ok := f.drivers[id]
	if !ok {
		return model.Driver{}, model.NewError("driver", model.ErrNotFound)
	}
	return driver, nil
}

func (f *fakeState) Enabled(_ context.Context) ([]model.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("drivers.enabled"); failed {
		return nil, err
	}

	drivers := make([]model.Driver, 0, len(f.drivers))
	for _, driver := range f.drivers {
		if driver.Enabled {
			drivers = append(drivers, driver)
		}
	}
	slices.SortFunc(drivers, func(a, b model.Driver) int { return int(a.ID) - int(b.ID) })
	return drivers, nil
}

const _fakeAllowance = 42

func (f *fakeState) ResetDrawAllowances(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("drivers.resetDrawAllowances"); failed {
		return err
	}

	for id, driver := range f.drivers {
		if driver.Enabled {
			driver.DrawAllowance = _fakeAllowance
			f.drivers[id] = driver
		}
	}
	return nil
}

func (f *fakeState) AddKarma(_ context.Context, id model.ID, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	driver, ok := f.drivers[id]
	if !ok {
		return 0, model.NewError("driver", model.ErrNotFound)
	}
	driver.Karma += delta
	f.drivers[id] = driver
	return driver.Karma, nil
}

func (f *fakeState) SetDrawAllowance(_ context.Context, id model.ID, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	driver, ok := f.drivers[id]
	if !ok {
		return model.NewError("driver", model.ErrNotFound)
	}
	driver.DrawAllowance = value
	f.drivers[id] = driver
	return nil
}

// SpotStore

func (f *fakeState) addSpot(spot model.ParkingSpot, ownerIDs ...model.ID) model.ParkingSpot {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.spots[spot.ID] = spot
	f.owners[spot.ID] = slices.Clone(ownerIDs)
	return spot
}

func (f *fakeState) GetSpot(_ context.Context, id model.ID) (model.ParkingSpot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	spot, ok := f.spots[id]
	if !ok {
		return model.ParkingSpot{}, model.NewError("spot", model.ErrNotFound)
	}
	return spot, nil
}

func (f *fakeState) ClearStatuses(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("spots.clearStatuses"); failed {
		return err
	}

	for id, spot := range f.spots {
		if spot.Hidden() {
			continue
		}
		spot.Status = nil
		spot.CurrentDriverID = nil
		spot.QueueEligibleAfter = nil
		f.spots[id] = spot
	}
	return nil
}

func (f *fakeState) Occupy(_ context.Context, driverID, spotID model.ID, withoutClaim bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	spot, ok := f.spots[spotID]
	if !ok {
		return model.NewError("spot", model.ErrNotFound)
	}
	if spot.Hidden() || (spot.CurrentDriverID != nil && *spot.CurrentDriverID != driverID) {
		return model.NewError("spot", model.ErrConflict)
	}

	status := model.SpotOccupied
	if withoutClaim {
		status = model.SpotOccupiedWithoutClaim
	}
	spot.Status = &status
	spot.CurrentDriverID = &driverID
	f.spots[spotID] = spot
	return nil
}

func (f *fakeState) Release(_ context.Context, driverID model.ID, eligibleAfter time.Time) ([]model.ParkingSpot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	released := make([]model.ParkingSpot, 0)
	for id, spot := range f.spots {
		if spot.CurrentDriverID == nil || *spot.CurrentDriverID != driverID {
			continue
		}
		status := model.SpotFree
		spot.Status = &status
		spot.CurrentDriverID = nil
		after := eligibleAfter
		spot.QueueEligibleAfter = &after
		f.spots[id] = spot
		released = append(released, spot)
	}
	slices.SortFunc(released, func(a, b model.ParkingSpot) int { return int(a.ID) - int(b.ID) })
	return released, nil
}

func (f *fakeState) MarkFree(_ context.Context, spotID model.ID, eligibleAfter time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	spot, ok := f.spots[spotID]
	if !ok {
		return model.NewError("spot", model.ErrNotFound)
	}
	if spot.Hidden() || spot.CurrentDriverID != nil {
		return model.NewError("spot", model.ErrConflict)
	}

	status := model.SpotFree
	spot.Status = &status
	spot.QueueEligibleAfter = &eligibleAfter
	f.spots[spotID] = spot
	return nil
}

func (f *fakeState) OccupiedBy(_ context.Context, driverID model.ID) ([]model.ParkingSpot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	spots := make([]model.ParkingSpot, 0)
	for _, spot := range f.spots {
		if spot.CurrentDriverID != nil && *spot.CurrentDriverID == driverID {
			spots = append(spots, spot)
		}
	}
	return spots, nil
}

func (f *fakeState) Free(_ context.Context, dayOfWeek int, day, now time.Time) ([]model.ParkingSpot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	free := make([]model.ParkingSpot, 0)
	for _, spot := range f.spots {
		if spot.Status != nil && *spot.Status != model.SpotFree {
			continue
		}
		if spot.QueueEligibleAfter != nil && spot.QueueEligibleAfter.After(now) {
			continue
		}
		if f.reservedLocked(spot.ID, dayOfWeek, day) {
			continue
		}
		free = append(free, spot)
	}
	slices.SortFunc(free, func(a, b model.ParkingSpot) int { return int(a.ID) - int(b.ID) })
	return free, nil
}

func (f *fakeState) reservedLocked(spotID model.ID, dayOfWeek int, day time.Time) bool {
	for _, res := range f.reservations {
		if res.SpotID != spotID || res.DayOfWeek != dayOfWeek {
			continue
		}
		driver, ok := f.drivers[res.DriverID]
		if ok && driver.Enabled && driver.Present(day) {
			return true
		}
	}
	return false
}

func (f *fakeState) OwnerIDs(_ context.Context, spotID model.ID) ([]model.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("spots.ownerIDs"); failed {
		return nil, err
	}

	return slices.Clone(f.owners[spotID]), nil
}

// QueueStore

func (f *fakeState) All(_ context.Context) ([]model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("queue.all"); failed {
		return nil, err
	}

	entries := slices.Clone(f.queue)
	slices.SortFunc(entries, func(a, b model.QueueEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID) - int(b.ID)
	})
	return entries, nil
}

func (f *fakeState) ByDriver(_ context.Context, driverID model.ID) (model.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.queue {
		if entry.DriverID == driverID {
			return entry, nil
		}
	}
	return model.QueueEntry{}, model.NewError("queue entry", model.ErrNotFound)
}

func (f *fakeState) Join(_ context.Context, driverID model.ID) (model.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.queue {
		if entry.DriverID == driverID {
			return 0, model.NewError("queue entry", model.ErrExists)
		}
	}

	entry := model.QueueEntry{
		ID:        f.allocID(),
		CreatedAt: time.Now(),
		DriverID:  driverID,
	}
	f.queue = append(f.queue, entry)
	return entry.ID, nil
}

func (f *fakeState) joinAt(driverID model.ID, createdAt time.Time) model.QueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry := model.QueueEntry{
		ID:        f.allocID(),
		CreatedAt: createdAt,
		DriverID:  driverID,
	}
	f.queue = append(f.queue, entry)
	return entry
}

func (f *fakeState) Delete(_ context.Context, driverID model.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before := len(f.queue)
	f.queue = slices.DeleteFunc(f.queue, func(e model.QueueEntry) bool {
		return e.DriverID == driverID
	})
	if len(f.queue) == before {
		return model.NewError("queue entry", model.ErrNotFound)
	}
	return nil
}

func (f *fakeState) DeleteAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("queue.deleteAll"); failed {
		return err
	}

	f.queue = nil
	return nil
}

func (f *fakeState) SetOffer(_ context.Context, entryID, spotID model.ID, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, entry := range f.queue {
		if entry.ID == entryID {
			f.queue[i].SpotID = &spotID
			f.queue[i].ChooseBefore = &deadline
			return nil
		}
	}
	return model.NewError("queue entry", model.ErrNotFound)
}

func (f *fakeState) ClearOffer(_ context.Context, entryID model.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("queue.clearOffer"); failed {
		return err
	}

	for i, entry := range f.queue {
		if entry.ID == entryID {
			f.queue[i].SpotID = nil
			f.queue[i].ChooseBefore = nil
			return nil
		}
	}
	return model.NewError("queue entry", model.ErrNotFound)
}

func (f *fakeState) Requeue(_ context.Context, entryID model.ID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, entry := range f.queue {
		if entry.ID == entryID {
			f.queue[i].SpotID = nil
			f.queue[i].ChooseBefore = nil
			f.queue[i].CreatedAt = now
			return nil
		}
	}
	return model.NewError("queue entry", model.ErrNotFound)
}

// ReservationStore

func (f *fakeState) addReservation(res model.Reservation) model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()

	if res.ID == 0 {
		res.ID = f.allocID()
	}
	f.reservations = append(f.reservations, res)
	return res
}

// DeleteDuplicates keeps, per (spot, weekday), the lowest-id reservation
// among present enabled drivers; reservations of absent or disabled
// drivers survive untouched.
func (f *fakeState) DeleteDuplicates(_ context.Context, day time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, failed := f.fail("reservations.deleteDuplicates"); failed {
		return 0, err
	}

	type slot struct {
		spotID    model.ID
		dayOfWeek int
	}

	keep := make(map[slot]model.ID)
	for _, res := range f.reservations {
		if !f.presentLocked(res.DriverID, day) {
			continue
		}
		key := slot{res.SpotID, res.DayOfWeek}
		if winner, ok := keep[key]; !ok || res.ID < winner {
			keep[key] = res.ID
		}
	}

	var deleted int64
	f.reservations = slices.DeleteFunc(f.reservations, func(res model.Reservation) bool {
		if !f.presentLocked(res.DriverID, day) {
			return false
		}
		if keep[slot{res.SpotID, res.DayOfWeek}] == res.ID {
			return false
		}
		deleted++
		return true
	})

	return deleted, nil
}

func (f *fakeState) presentLocked(driverID model.ID, day time.Time) bool {
	driver, ok := f.drivers[driverID]
	return ok && driver.Enabled && driver.Present(day)
}

// The store interfaces use Get for both params and entities; the fake
// resolves the clash with thin adapters.

type driverStoreAdapter struct{ *fakeState }

func (a driverStoreAdapter) Get(ctx context.Context, id model.ID) (model.Driver, error) {
	return a.GetDriver(ctx, id)
}

type spotStoreAdapter struct{ *fakeState }

func (a spotStoreAdapter) Get(ctx context.Context, id model.ID) (model.ParkingSpot, error) {
	return a.GetSpot(ctx, id)
}

// recordingNotifier captures every event and can simulate delivery
// failures per event type.
type recordingNotifier struct {
	mu      sync.Mutex
	events  []recordedEvent
	failFor map[notify.Event]bool
}

type recordedEvent struct {
	event notify.Event
	from  model.ID
	to    model.ID
	args  notify.Args
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failFor: make(map[notify.Event]bool)}
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event, from, to model.Driver, args notify.Args) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failFor[event] {
		return false
	}

	n.events = append(n.events, recordedEvent{event: event, from: from.ID, to: to.ID, args: args})
	return true
}

func (n *recordingNotifier) count(event notify.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, e := range n.events {
		if e.event == event {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) recipients(event notify.Event) []model.ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]model.ID, 0)
	for _, e := range n.events {
		if e.event == event {
			ids = append(ids, e.to)
		}
	}
	return ids
}

// fixedClassifier stands in for the production-calendar client.
type fixedClassifier struct {
	isWorkingDay bool
	label        string
}

func (c fixedClassifier) ClassifyDay(context.Context, time.Time) (bool, string) {
	return c.isWorkingDay, c.label
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestEngine(state *fakeState, clock *testClock, opts ...Option) (*Engine, *recordingNotifier) {
	return newTestEngineWithConfig(state, clock, DefaultConfig(), opts...)
}

func newTestEngineWithConfig(state *fakeState, clock *testClock, cfg Config, opts ...Option) (*Engine, *recordingNotifier) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := newRecordingNotifier()

	opts = append([]Option{
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	}, opts...)

	engine := New(
		logger,
		state.stores(),
		state.inTx,
		notifier,
		fixedClassifier{isWorkingDay: true, label: "Working day"},
		cfg,
		opts...,
	)

	return engine, notifier
}
