package parking

import (
	"context"
	"slices"
	"time"

	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/parkpool-dev/parkpool/internal/notify"
)

// Run drives the lottery on the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("scheduler started", "interval", e.cfg.TickInterval)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one lottery round: expire stale offers, collect offerable
// spots, then raffle them out in two passes. Spot owners waiting in the
// queue win their own spot before anyone else gets a shot at it.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()
	if e.inQuietWindow(now) {
		return nil
	}

	day, err := e.CheckCurrentDay(ctx)
	if err != nil {
		return err
	}

	lock := e.locks.get("scheduler")
	lock.Lock()
	defer lock.Unlock()

	_ticksTotal.Inc()

	entries, err := e.stores.Queue.All(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	drivers, err := e.stores.Drivers.Enabled(ctx)
	if err != nil {
		return err
	}
	driversByID := make(map[model.ID]model.Driver, len(drivers))
	for _, driver := range drivers {
		driversByID[driver.ID] = driver
	}

	// offeredSpots holds spots locked by a live offer; they are off the
	// table for this round.
	offeredSpots := make(map[model.ID]bool)
	waiting := make([]candidate, 0, len(entries))

	for _, entry := range entries {
		// A live offer locks its spot even when the holder has since gone
		// absent or been disabled: the offer can still be accepted until
		// its deadline, so the spot must not be raffled again.
		if entry.HasLiveOffer(now) {
			offeredSpots[*entry.SpotID] = true
			continue
		}

		driver, ok := driversByID[entry.DriverID]
		if !ok || !driver.Present(day) {
			continue
		}

		if entry.SpotID != nil {
			if err := e.expireOffer(ctx, entry, driver); err != nil {
				e.logger.Error("failed to expire offer", "entryId", entry.ID, "error", err)
				continue
			}
		}
		waiting = append(waiting, candidate{entry: entry, driver: driver})
	}
	if len(waiting) == 0 {
		return nil
	}

	free, err := e.stores.Spots.Free(ctx, int(day.Weekday()), day, now)
	if err != nil {
		return err
	}

	spots := make([]model.ParkingSpot, 0, len(free))
	for _, spot := range free {
		if !offeredSpots[spot.ID] {
			spots = append(spots, spot)
		}
	}
	if len(spots) == 0 {
		return nil
	}

	base := e.baseWeight(ctx)

	// Owner pass: a spot whose co-owner is waiting goes into a raffle
	// among those co-owners only.
	remaining := spots[:0]
	for _, spot := range spots {
		if len(waiting) == 0 {
			break
		}

		ownerIDs, err := e.stores.Spots.OwnerIDs(ctx, spot.ID)
		if err != nil {
			e.logger.Error("failed to load spot owners", "spotId", spot.ID, "error", err)
			continue
		}

		owners := make([]int, 0, len(ownerIDs))
		for i, c := range waiting {
			if slices.Contains(ownerIDs, c.driver.ID) {
				owners = append(owners, i)
			}
		}
		if len(owners) == 0 {
			remaining = append(remaining, spot)
			continue
		}

		pool := make([]candidate, 0, len(owners))
		for _, i := range owners {
			pool = append(pool, waiting[i])
		}

		winner := pool[e.pickWeighted(base, pool)]
		e.offer(ctx, now, winner, spot.ID)
		waiting = removeCandidate(waiting, winner.entry.ID)
	}

	// General pass over whatever is left.
	for _, spot := range remaining {
		if len(waiting) == 0 {
			break
		}

		winner := waiting[e.pickWeighted(base, waiting)]
		e.offer(ctx, now, winner, spot.ID)
		waiting = removeCandidate(waiting, winner.entry.ID)
	}

	return nil
}

// expireOffer drops a lapsed offer, leaving the entry queued for the next
// raffle in this same tick.
func (e *Engine) expireOffer(ctx context.Context, entry model.QueueEntry, driver model.Driver) error {
	if err := e.stores.Queue.ClearOffer(ctx, entry.ID); err != nil {
		return err
	}

	_offersExpiredTotal.Inc()
	e.logger.Info("offer expired", "driverId", driver.ID, "spotId", *entry.SpotID)

	e.notifier.Notify(ctx, notify.EventOfferMissed, driver, driver, notify.Args{
		"spotId": *entry.SpotID,
	})

	return nil
}

// offer hands the spot to the winner: record the offer, then notify. An
// undeliverable notification rolls the offer back so the spot stays in
// play, but the winner sits this round out either way.
func (e *Engine) offer(ctx context.Context, now time.Time, winner candidate, spotID model.ID) {
	deadline := e.offerDeadline(now)

	if err := e.stores.Queue.SetOffer(ctx, winner.entry.ID, spotID, deadline); err != nil {
		e.logger.Error("failed to record offer", "entryId", winner.entry.ID, "spotId", spotID, "error", err)
		return
	}

	delivered := e.notifier.Notify(ctx, notify.EventOffer, winner.driver, winner.driver, notify.Args{
		"spotId":       spotID,
		"chooseBefore": deadline,
	})
	if !delivered {
		_offerDeliveryFailuresTotal.Inc()
		if err := e.stores.Queue.ClearOffer(ctx, winner.entry.ID); err != nil {
			e.logger.Error("failed to roll back undelivered offer", "entryId", winner.entry.ID, "error", err)
		}
		return
	}

	_offersTotal.Inc()
	e.logger.Info("offer made", "driverId", winner.driver.ID, "spotId", spotID, "chooseBefore", deadline)
}

// offerDeadline pushes the acceptance deadline out of any quiet window it
// would land in, so nobody's offer silently expires while the scheduler
// is paused.
func (e *Engine) offerDeadline(now time.Time) time.Time {
	deadline := now.Add(e.cfg.OfferDuration)

	for range e.cfg.QuietWindows {
		moved := false
		for _, window := range e.cfg.QuietWindows {
			if window.Contains(deadline) {
				deadline = window.End(deadline)
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	return deadline
}

func (e *Engine) inQuietWindow(now time.Time) bool {
	for _, window := range e.cfg.QuietWindows {
		if window.Contains(now) {
			return true
		}
	}

	return false
}

func removeCandidate(candidates []candidate, entryID model.ID) []candidate {
	return slices.DeleteFunc(candidates, func(c candidate) bool {
		return c.entry.ID == entryID
	})
}
