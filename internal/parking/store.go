package parking

import (
	"context"
	"time"

	"github.com/parkpool-dev/parkpool/internal/model"
)

// The engine talks to persistence through these interfaces. The database
// DAOs satisfy them; tests substitute in-memory fakes.

type ParamStore interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value, description string) error
}

type DriverStore interface {
	Get(ctx context.Context, id model.ID) (model.Driver, error)
	Enabled(ctx context.Context) ([]model.Driver, error)
	ResetDrawAllowances(ctx context.Context) error
	AddKarma(ctx context.Context, id model.ID, delta int) (int, error)
	SetDrawAllowance(ctx context.Context, id model.ID, value int) error
}

type SpotStore interface {
	Get(ctx context.Context, id model.ID) (model.ParkingSpot, error)
	ClearStatuses(ctx context.Context) error
	Occupy(ctx context.Context, driverID, spotID model.ID, withoutClaim bool) error
	Release(ctx context.Context, driverID model.ID, eligibleAfter time.Time) ([]model.ParkingSpot, error)
	MarkFree(ctx context.Context, spotID model.ID, eligibleAfter time.Time) error
	OccupiedBy(ctx context.Context, driverID model.ID) ([]model.ParkingSpot, error)
	Free(ctx context.Context, dayOfWeek int, day, now time.Time) ([]model.ParkingSpot, error)
	OwnerIDs(ctx context.Context, spotID model.ID) ([]model.ID, error)
}

type QueueStore interface {
	All(ctx context.Context) ([]model.QueueEntry, error)
	ByDriver(ctx context.Context, driverID model.ID) (model.QueueEntry, error)
	Join(ctx context.Context, driverID model.ID) (model.ID, error)
	Delete(ctx context.Context, driverID model.ID) error
	DeleteAll(ctx context.Context) error
	SetOffer(ctx context.Context, entryID, spotID model.ID, deadline time.Time) error
	ClearOffer(ctx context.Context, entryID model.ID) error
	Requeue(ctx context.Context, entryID model.ID, now time.Time) error
}

type ReservationStore interface {
	DeleteDuplicates(ctx context.Context, day time.Time) (int64, error)
}

type Stores struct {
	Params       ParamStore
	Drivers      DriverStore
	Spots        SpotStore
	Queue        QueueStore
	Reservations ReservationStore
}

// TxRunner executes fn against stores bound to one database transaction.
// The rollover sequence relies on it being all-or-nothing.
type TxRunner func(ctx context.Context, fn func(s Stores) error) error
