package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/parkpool-dev/parkpool/internal/model"
)

type ReservationDAO struct {
	Logger *slog.Logger
	db     *DB
	ext    Ext
}

func NewReservationDAO(logger *slog.Logger, db *DB) *ReservationDAO {
	return &ReservationDAO{
		Logger: logger.With("dao", "reservation"),
		db:     db,
		ext:    db.DB,
	}
}

func (dao *ReservationDAO) WithTx(tx Ext) *ReservationDAO {
	clone := *dao
	clone.ext = tx
	return &clone
}

type InsertReservationDTO struct {
	DriverID  model.ID
	SpotID    model.ID
	DayOfWeek int
}

func (dao *ReservationDAO) Insert(ctx context.Context, dto InsertReservationDTO) (model.ID, error) {
	logger := dao.Logger.With("query", "insert")

	query, args, err := dao.db.Builder.
		Insert("reservations").
		Columns("driver_id", "spot_id", "day_of_week").
		Values(dto.DriverID, dto.SpotID, dto.DayOfWeek).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var id model.ID
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&id); err != nil {
		switch {
		case IsUniqueViolation(err):
			return 0, model.NewError("reservation", model.ErrExists)
		case IsForeignKeyViolation(err):
			return 0, model.NewError("spot or driver", model.ErrNotFound)
		}

		return 0, err
	}

	return id, nil
}

type FindReservationFilter struct {
	DriverID  *model.ID
	SpotID    *model.ID
	DayOfWeek *int
}

func (dao *ReservationDAO) Find(ctx context.Context, filter FindReservationFilter) ([]model.Reservation, error) {
	logger := dao.Logger.With("query", "find")

	equals := squirrel.Eq{}
	if filter.DriverID != nil {
		equals["driver_id"] = *filter.DriverID
	}
	if filter.SpotID != nil {
		equals["spot_id"] = *filter.SpotID
	}
	if filter.DayOfWeek != nil {
		equals["day_of_week"] = *filter.DayOfWeek
	}

	query, args, err := dao.db.Builder.
		Select("*").
		From("reservations").
		Where(equals).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	reservations := make([]model.Reservation, 0)
	if err := dao.ext.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, err
	}

	return reservations, nil
}

func (dao *ReservationDAO) Delete(ctx context.Context, driverID, spotID model.ID, dayOfWeek int) error {
	logger := dao.Logger.With("query", "delete")

	query, args, err := dao.db.Builder.
		Delete("reservations").
		Where(squirrel.Eq{
			"driver_id":   driverID,
			"spot_id":     spotID,
			"day_of_week": dayOfWeek,
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
		return model.NewError("reservation", model.ErrNotFound)
	}

	return nil
}

// ByDay returns the effective reservations for a calendar day: claims for
// that weekday whose driver is enabled and present.
func (dao *ReservationDAO) ByDay(ctx context.Context, day time.Time) ([]model.Reservation, error) {
	logger := dao.Logger.With("query", "byDay")

	const query = `
		SELECT r.*
		FROM reservations r
		JOIN drivers d ON d.id = r.driver_id
		WHERE r.day_of_week = $1
		  AND d.enabled
		  AND (d.absent_until IS NULL OR d.absent_until <= $2)
		ORDER BY r.id ASC`

	args := []any{int(day.Weekday()), day}

	logger.Debug("build query", "sql", query, "args", args)

	reservations := make([]model.Reservation, 0)
	if err := dao.ext.SelectContext(ctx, &reservations, query, args...); err != nil {
		return nil, err
	}

	return reservations, nil
}

// DeleteDuplicates resolves competing claims on the same (spot, weekday)
// down to one winner: the lowest reservation id among enabled drivers
// present on the given day. Claims of absent or disabled drivers are
// preserved so they reactivate when the driver returns, and never count
// as winners. The statement is idempotent; a group without a single
// present enabled driver is left untouched.
func (dao *ReservationDAO) DeleteDuplicates(ctx context.Context, day time.Time) (int64, error) {
	logger := dao.Logger.With("query", "deleteDuplicates")

	const query = `
		DELETE FROM reservations r
		USING drivers d
		WHERE d.id = r.driver_id
		  AND d.enabled
		  AND (d.absent_until IS NULL OR d.absent_until <= $1)
		  AND r.id > (
			SELECT MIN(r2.id)
			FROM reservations r2
			JOIN drivers d2 ON d2.id = r2.driver_id
			WHERE r2.spot_id = r.spot_id
			  AND r2.day_of_week = r.day_of_week
			  AND d2.enabled
			  AND (d2.absent_until IS NULL OR d2.absent_until <= $1)
		  )`

	logger.Debug("build query", "sql", query, "args", []any{day})

	res, err := dao.ext.ExecContext(ctx, query, day)
	if err != nil {
		return 0, err
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logger.Info("removed duplicate reservations", "count", deleted)
	}

	return deleted, nil
}
