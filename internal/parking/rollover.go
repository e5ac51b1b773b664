package parking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/parkpool-dev/parkpool/internal/notify"
)

// CheckCurrentDay compares the business day against the persisted
// current_day marker and, on a day change, runs the rollover sequence
// exactly once: clear the queue, reset spot statuses, deduplicate
// reservations, prime draw allowances and persist the new day markers.
// The sequence is one transaction; a failure leaves the old marker in
// place so the next trigger retries the whole thing.
//
// Every inbound operation and every scheduler tick calls this, so the
// named lock plus the in-transaction marker re-read keep concurrent
// triggers down to a single rollover per day transition.
func (e *Engine) CheckCurrentDay(ctx context.Context) (time.Time, error) {
	day, err := e.BusinessDay(ctx)
	if err != nil {
		return time.Time{}, err
	}
	dayValue := day.Format(_dayLayout)

	oldValue, err := e.stores.Params.Get(ctx, ParamCurrentDay, "")
	if err != nil {
		return time.Time{}, err
	}
	if oldValue == dayValue {
		return day, nil
	}

	lock := e.locks.get("new_day")
	lock.Lock()
	defer lock.Unlock()

	// Another trigger may have finished the rollover while we waited.
	oldValue, err = e.stores.Params.Get(ctx, ParamCurrentDay, "")
	if err != nil {
		return time.Time{}, err
	}
	if oldValue == dayValue {
		return day, nil
	}

	e.logger.Info("business day changed", "day", dayValue, "previous", oldValue)

	isWorkingDay, label := e.calendar.ClassifyDay(ctx, day)

	rolled := false
	err = e.inTx(ctx, func(s Stores) error {
		// The persisted marker is the idempotence guard: if a concurrent
		// rollover got here first, there is nothing left to do.
		current, err := s.Params.Get(ctx, ParamCurrentDay, "")
		if err != nil {
			return err
		}
		if current == dayValue {
			return nil
		}

		if err := s.Queue.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}

		if err := s.Spots.ClearStatuses(ctx); err != nil {
			return fmt.Errorf("reset spot statuses: %w", err)
		}

		if _, err := s.Reservations.DeleteDuplicates(ctx, day); err != nil {
			return fmt.Errorf("deduplicate reservations: %w", err)
		}

		if err := s.Drivers.ResetDrawAllowances(ctx); err != nil {
			return fmt.Errorf("reset draw allowances: %w", err)
		}

		if err := s.Params.Set(ctx, ParamCurrentDay, dayValue, "current business day"); err != nil {
			return err
		}
		if err := s.Params.Set(ctx, ParamCurrentDayIsWorkingDay, strconv.FormatBool(isWorkingDay), "current day classification"); err != nil {
			return err
		}
		if err := s.Params.Set(ctx, ParamCurrentDayHoliday, label, "current day label"); err != nil {
			return err
		}

		rolled = true
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("day rollover: %w", err)
	}

	if rolled {
		_rolloversTotal.Inc()
		e.logger.Info("day rollover complete", "day", dayValue, "isWorkingDay", isWorkingDay, "label", label)
		e.autoKarmaForAbsent(ctx, day)
		e.notifyNewDay(ctx, day, isWorkingDay, label)
	}

	return day, nil
}

// autoKarmaForAbsent takes the daily karma draw on behalf of drivers who
// are away, so an absence never costs them the bonus.
func (e *Engine) autoKarmaForAbsent(ctx context.Context, day time.Time) {
	drivers, err := e.stores.Drivers.Enabled(ctx)
	if err != nil {
		e.logger.Warn("failed to load drivers for absent karma draw", "error", err)
		return
	}

	for _, driver := range drivers {
		if driver.Present(day) || driver.DrawAllowance <= 0 {
			continue
		}

		value := e.intN(6) + 1
		karma, err := e.stores.Drivers.AddKarma(ctx, driver.ID, value)
		if err != nil {
			e.logger.Warn("failed to add karma for absent driver", "driverId", driver.ID, "error", err)
			continue
		}
		if err := e.stores.Drivers.SetDrawAllowance(ctx, driver.ID, -1); err != nil {
			e.logger.Warn("failed to consume draw allowance", "driverId", driver.ID, "error", err)
			continue
		}

		e.notifier.Notify(ctx, notify.EventKarmaDrawn, driver, driver, notify.Args{
			"value": value,
			"karma": karma,
			"auto":  true,
		})
	}
}

// notifyNewDay tells every enabled driver about the new day. Best-effort:
// failures are logged by the notifier and never retried.
func (e *Engine) notifyNewDay(ctx context.Context, day time.Time, isWorkingDay bool, label string) {
	drivers, err := e.stores.Drivers.Enabled(ctx)
	if err != nil {
		e.logger.Warn("failed to load drivers for new day notification", "error", err)
		return
	}

	event := notify.EventNewDay
	if !isWorkingDay {
		event = notify.EventNewHoliday
	}

	args := notify.Args{
		"date":         day.Format(_dayLayout),
		"isWorkingDay": isWorkingDay,
		"label":        label,
	}

	for _, driver := range drivers {
		e.notifier.Notify(ctx, event, driver, driver, args)
	}
}
