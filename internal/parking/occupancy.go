package parking

import (
	"context"
	"slices"
	"time"

	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/parkpool-dev/parkpool/internal/notify"
)

// Occupy puts the driver on the spot. A spot held by a different driver
// yields model.ErrConflict; the caller is expected to re-queue the
// requester. Registered co-owners of the spot are notified.
func (e *Engine) Occupy(ctx context.Context, driverID, spotID model.ID, withoutClaim bool) error {
	driver, err := e.stores.Drivers.Get(ctx, driverID)
	if err != nil {
		return err
	}

	if err := e.stores.Spots.Occupy(ctx, driverID, spotID, withoutClaim); err != nil {
		return err
	}

	e.notifyOwners(ctx, spotID, driver, notify.EventSpotOccupied)

	return nil
}

// Release frees every spot the driver currently holds and starts the
// queue-eligibility cooldown on each.
func (e *Engine) Release(ctx context.Context, driverID model.ID) ([]model.ParkingSpot, error) {
	driver, err := e.stores.Drivers.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	spots, err := e.stores.Spots.Release(ctx, driverID, now.Add(e.cooldown(now)))
	if err != nil {
		return nil, err
	}

	for _, spot := range spots {
		e.notifyOwners(ctx, spot.ID, driver, notify.EventSpotReleased)
	}

	return spots, nil
}

// FreeToday lets an owner announce that their spot is free for the rest of
// the day without having occupied it first. Co-owners get a heads-up.
func (e *Engine) FreeToday(ctx context.Context, driverID, spotID model.ID) error {
	driver, err := e.stores.Drivers.Get(ctx, driverID)
	if err != nil {
		return err
	}

	ownerIDs, err := e.stores.Spots.OwnerIDs(ctx, spotID)
	if err != nil {
		return err
	}
	if !slices.Contains(ownerIDs, driverID) {
		return model.NewError("spot ownership", model.ErrNotFound)
	}

	now := e.now()
	if err := e.stores.Spots.MarkFree(ctx, spotID, now.Add(e.cooldown(now))); err != nil {
		return err
	}

	e.notifyOwners(ctx, spotID, driver, notify.EventSpotFreeToday)

	return nil
}

// cooldown picks the queue-eligibility delay for a release happening now:
// short during the day, long once the evening handover approaches.
func (e *Engine) cooldown(now time.Time) time.Duration {
	if now.Hour() >= e.cfg.EveningFromHour {
		return e.cfg.CooldownEvening
	}

	return e.cfg.CooldownDay
}

func (e *Engine) notifyOwners(ctx context.Context, spotID model.ID, actor model.Driver, event notify.Event) {
	ownerIDs, err := e.stores.Spots.OwnerIDs(ctx, spotID)
	if err != nil {
		e.logger.Warn("failed to load spot owners", "spotId", spotID, "error", err)
		return
	}

	args := notify.Args{"spotId": spotID}

	for _, ownerID := range ownerIDs {
		if ownerID == actor.ID {
			continue
		}

		owner, err := e.stores.Drivers.Get(ctx, ownerID)
		if err != nil {
			e.logger.Warn("failed to load spot owner", "driverId", ownerID, "error", err)
			continue
		}

		e.notifier.Notify(ctx, event, actor, owner, args)
	}
}
