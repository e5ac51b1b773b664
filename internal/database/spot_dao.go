package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/parkpool-dev/parkpool/internal/model"
)

type SpotDAO struct {
	Logger *slog.Logger
	db     *DB
	ext    Ext
}

func NewSpotDAO(logger *slog.Logger, db *DB) *SpotDAO {
	return &SpotDAO{
		Logger: logger.With("dao", "spot"),
		db:     db,
		ext:    db.DB,
	}
}

func (dao *SpotDAO) WithTx(tx Ext) *SpotDAO {
	clone := *dao
	clone.ext = tx
	return &clone
}

func (dao *SpotDAO) Insert(ctx context.Context, id model.ID) error {
	logger := dao.Logger.With("query", "insert")

	query, args, err := dao.db.Builder.
		Insert("parking_spots").
		Columns("id").
		Values(id).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	if _, err := dao.ext.ExecContext(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return model.NewError("spot", model.ErrExists)
		}

		return err
	}

	return nil
}

func (dao *SpotDAO) Get(ctx context.Context, id model.ID) (model.ParkingSpot, error) {
	logger := dao.Logger.With("query", "get")

	query, args, err := dao.db.Builder.
		Select("*").
		From("parking_spots").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.ParkingSpot{}, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var spot model.ParkingSpot
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.StructScan(&spot); err != nil {
		if IsNoRows(err) {
			return model.ParkingSpot{}, model.NewError("spot", model.ErrNotFound)
		}

		return model.ParkingSpot{}, err
	}

	return spot, nil
}

// All returns every spot in rotation, hidden ones excluded.
func (dao *SpotDAO) All(ctx context.Context) ([]model.ParkingSpot, error) {
	logger := dao.Logger.With("query", "all")

	query, args, err := dao.db.Builder.
		Select("*").
		From("parking_spots").
		Where(squirrel.Or{
			squirrel.Eq{"status": nil},
			squirrel.NotEq{"status": model.SpotHidden},
		}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	spots := make([]model.ParkingSpot, 0)
	if err := dao.ext.SelectContext(ctx, &spots, query, args...); err != nil {
		return nil, err
	}

	return spots, nil
}

func (dao *SpotDAO) AddOwner(ctx context.Context, spotID, driverID model.ID) error {
	logger := dao.Logger.With("query", "addOwner")

	query, args, err := dao.db.Builder.
		Insert("parking_spot_drivers").
		Columns("spot_id", "driver_id").
		Values(spotID, driverID).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	if _, err := dao.ext.ExecContext(ctx, query, args...); err != nil {
		switch {
		case IsUniqueViolation(err):
			return model.NewError("owner", model.ErrExists)
		case IsForeignKeyViolation(err):
			return model.NewError("spot or driver", model.ErrNotFound)
		}

		return err
	}

	return nil
}

func (dao *SpotDAO) RemoveOwner(ctx context.Context, spotID, driverID model.ID) error {
	logger := dao.Logger.With("query", "removeOwner")

	query, args, err := dao.db.Builder.
		Delete("parking_spot_drivers").
		Where(squirrel.Eq{"spot_id": spotID, "driver_id": driverID}).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	res, err := dao.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NewError("owner", model.ErrNotFound)
	}

	return nil
}

func (dao *SpotDAO) OwnerIDs(ctx context.Context, spotID model.ID) ([]model.ID, error) {
	logger := dao.Logger.With("query", "ownerIDs")

	query, args, err := dao.db.Builder.
		Select("driver_id").
		From("parking_spot_drivers").
		Where(squirrel.Eq{"spot_id": spotID}).
		OrderBy("driver_id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	ids := make([]model.ID, 0)
	if err := dao.ext.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}

	return ids, nil
}

// ClearStatuses resets the daily state of every non-hidden spot back to
// unset. Runs once per day rollover.
func (dao *SpotDAO) ClearStatuses(ctx context.Context) error {
	logger := dao.Logger.With("query", "clearStatuses")

	query, args, err := dao.db.Builder.
		Update("parking_spots").
		SetMap(map[string]any{
			"status":               nil,
			"current_driver_id":    nil,
			"queue_eligible_after": nil,
		}).
		Where(squirrel.Or{
			squirrel.Eq{"status": nil},
			squirrel.NotEq{"status": model.SpotHidden},
		}).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	_, err = dao.ext.ExecContext(ctx, query, args...)
	return err
}

// Occupy marks the spot taken by the driver. The update carries its own
// occupancy guard: a spot held by a different driver is left untouched and
// the call reports model.ErrConflict, so the caller can re-queue the loser.
func (dao *SpotDAO) Occupy(ctx context.Context, driverID, spotID model.ID, withoutClaim bool) error {
	logger := dao.Logger.With("query", "occupy")

	status := model.SpotOccupied
	if withoutClaim {
		status = model.SpotOccupiedWithoutClaim
	}

	query, args, err := dao.db.Builder.
		Update("parking_spots").
		SetMap(map[string]any{
			"status":            status,
			"current_driver_id": driverID,
		}).
		Where(squirrel.Eq{"id": spotID}).
		Where(squirrel.Or{
			squirrel.Eq{"status": nil},
			squirrel.NotEq{"status": model.SpotHidden},
		}).
		Where(squirrel.Or{
			squirrel.Eq{"current_driver_id": nil},
			squirrel.Eq{"current_driver_id": driverID},
		}).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	res, err := dao.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := dao.Get(ctx, spotID); getErr != nil {
			return getErr
		}

		return model.NewError("spot", model.ErrConflict)
	}

	return nil
}

// Release frees every spot currently held by the driver and starts the
// queue-eligibility cooldown on each of them.
func (dao *SpotDAO) Release(ctx context.Context, driverID model.ID, eligibleAfter time.Time) ([]model.ParkingSpot, error) {
	logger := dao.Logger.With("query", "release")

	query, args, err := dao.db.Builder.
		Update("parking_spots").
		SetMap(map[string]any{
			"status":               model.SpotFree,
			"current_driver_id":    nil,
			"queue_eligible_after": eligibleAfter,
		}).
		Where(squirrel.Eq{"current_driver_id": driverID}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	spots := make([]model.ParkingSpot, 0)
	if err := dao.ext.SelectContext(ctx, &spots, query, args...); err != nil {
		return nil, err
	}

	return spots, nil
}

// MarkFree lets an owner announce their spot as free for the day without
// having occupied it. A spot someone currently holds stays untouched and
// the call reports model.ErrConflict.
func (dao *SpotDAO) MarkFree(ctx context.Context, spotID model.ID, eligibleAfter time.Time) error {
	logger := dao.Logger.With("query", "markFree")

	query, args, err := dao.db.Builder.
		Update("parking_spots").
		SetMap(map[string]any{
			"status":               model.SpotFree,
			"queue_eligible_after": eligibleAfter,
		}).
		Where(squirrel.Eq{"id": spotID, "current_driver_id": nil}).
		Where(squirrel.Or{
			squirrel.Eq{"status": nil},
			squirrel.NotEq{"status": model.SpotHidden},
		}).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	res, err := dao.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := dao.Get(ctx, spotID); getErr != nil {
			return getErr
		}

		return model.NewError("spot", model.ErrConflict)
	}

	return nil
}

func (dao *SpotDAO) OccupiedBy(ctx context.Context, driverID model.ID) ([]model.ParkingSpot, error) {
	logger := dao.Logger.With("query", "occupiedBy")

	query, args, err := dao.db.Builder.
		Select("*").
		From("parking_spots").
		Where(squirrel.Eq{"current_driver_id": driverID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	spots := make([]model.ParkingSpot, 0)
	if err := dao.ext.SelectContext(ctx, &spots, query, args...); err != nil {
		return nil, err
	}

	return spots, nil
}

// Free returns the spots the lottery may hand out for the given weekday:
// unset or explicitly free, past their cooldown, and not claimed for that
// weekday by a standing reservation of a present, enabled driver.
func (dao *SpotDAO) Free(ctx context.Context, dayOfWeek int, day, now time.Time) ([]model.ParkingSpot, error) {
	logger := dao.Logger.With("query", "free")

	const query = `
		SELECT s.*
		FROM parking_spots s
		WHERE (s.status IS NULL OR s.status = 'free')
		  AND (s.queue_eligible_after IS NULL OR s.queue_eligible_after <= $1)
		  AND NOT EXISTS (
			SELECT 1
			FROM reservations r
			JOIN drivers d ON d.id = r.driver_id
			WHERE r.spot_id = s.id
			  AND r.day_of_week = $2
			  AND d.enabled
			  AND (d.absent_until IS NULL OR d.absent_until <= $3)
		  )
		ORDER BY s.id ASC`

	args := []any{now, dayOfWeek, day}

	logger.Debug("build query", "sql", query, "args", args)

	spots := make([]model.ParkingSpot, 0)
	if err := dao.ext.SelectContext(ctx, &spots, query, args...); err != nil {
		return nil, err
	}

	return spots, nil
}
