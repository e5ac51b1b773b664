package parking

import (
	"context"
	"errors"

	"github.com/parkpool-dev/parkpool/internal/model"
	"github.com/parkpool-dev/parkpool/internal/notify"
)

// JoinQueue puts the driver at the back of the lottery queue. Drivers
// already holding a spot have nothing to wait for, so the call refuses
// them with model.ErrConflict.
func (e *Engine) JoinQueue(ctx context.Context, driverID model.ID) (model.ID, error) {
	occupied, err := e.stores.Spots.OccupiedBy(ctx, driverID)
	if err != nil {
		return 0, err
	}
	if len(occupied) > 0 {
		return 0, model.NewError("queue entry", model.ErrConflict)
	}

	return e.stores.Queue.Join(ctx, driverID)
}

func (e *Engine) LeaveQueue(ctx context.Context, driverID model.ID) error {
	return e.stores.Queue.Delete(ctx, driverID)
}

// AcceptOffer takes the spot currently offered to the driver. If the spot
// got taken in the meantime the offer is dropped and the entry stays queued,
// so the next tick can pick the driver again.
func (e *Engine) AcceptOffer(ctx context.Context, driverID model.ID) (model.ID, error) {
	entry, err := e.stores.Queue.ByDriver(ctx, driverID)
	if err != nil {
		return 0, err
	}
	if !entry.HasLiveOffer(e.now()) {
		return 0, model.NewError("offer", model.ErrNotFound)
	}

	spotID := *entry.SpotID
	if err := e.Occupy(ctx, driverID, spotID, false); err != nil {
		if errors.Is(err, model.ErrConflict) {
			if clearErr := e.stores.Queue.ClearOffer(ctx, entry.ID); clearErr != nil {
				e.logger.Warn("failed to clear lost offer", "entryId", entry.ID, "error", clearErr)
			}
		}

		return 0, err
	}

	if err := e.stores.Queue.Delete(ctx, driverID); err != nil {
		e.logger.Warn("failed to remove accepted queue entry", "driverId", driverID, "error", err)
	}

	return spotID, nil
}

// DeclineOffer turns the offer down and sends the driver to the back of
// the queue.
func (e *Engine) DeclineOffer(ctx context.Context, driverID model.ID) error {
	entry, err := e.stores.Queue.ByDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if entry.SpotID == nil {
		return model.NewError("offer", model.ErrNotFound)
	}

	return e.stores.Queue.Requeue(ctx, entry.ID, e.now())
}

// DrawKarma cashes in the driver's daily karma draw: one to six points,
// once per business day. The allowance primed at rollover gates repeats.
func (e *Engine) DrawKarma(ctx context.Context, driverID model.ID) (value, karma int, err error) {
	driver, err := e.stores.Drivers.Get(ctx, driverID)
	if err != nil {
		return 0, 0, err
	}
	if driver.DrawAllowance <= 0 {
		return 0, 0, model.NewError("karma draw", model.ErrConflict)
	}

	value = e.intN(6) + 1

	karma, err = e.stores.Drivers.AddKarma(ctx, driverID, value)
	if err != nil {
		return 0, 0, err
	}

	if err := e.stores.Drivers.SetDrawAllowance(ctx, driverID, -1); err != nil {
		return 0, 0, err
	}

	e.notifier.Notify(ctx, notify.EventKarmaDrawn, driver, driver, notify.Args{
		"value": value,
		"karma": karma,
	})

	return value, karma, nil
}
