package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/parkpool-dev/parkpool/internal/model"
)

type DriverDAO struct {
	Logger *slog.Logger
	db     *DB
	ext    Ext
}

func NewDriverDAO(logger *slog.Logger, db *DB) *DriverDAO {
	return &DriverDAO{
		Logger: logger.With("dao", "driver"),
		db:     db,
		ext:    db.DB,
	}
}

func (dao *DriverDAO) WithTx(tx Ext) *DriverDAO {
	clone := *dao
	clone.ext = tx
	return &clone
}

type InsertDriverDTO struct {
	Username string
	FullName string
}

func (dao *DriverDAO) Insert(ctx context.Context, dto InsertDriverDTO) (model.ID, error) {
	logger := dao.Logger.With("query", "insert")

	query, args, err := dao.db.Builder.
		Insert("drivers").
		Columns("username", "full_name").
		Values(dto.Username, dto.FullName).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var id model.ID
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&id); err != nil {
		if IsUniqueViolation(err) {
			return 0, model.NewError("driver", model.ErrExists)
		}

		return 0, err
	}

	return id, nil
}

func (dao *DriverDAO) Get(ctx context.Context, id model.ID) (model.Driver, error) {
	logger := dao.Logger.With("query", "get")

	query, args, err := dao.db.Builder.
		Select("*").
		From("drivers").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Driver{}, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var driver model.Driver
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.StructScan(&driver); err != nil {
		if IsNoRows(err) {
			return model.Driver{}, model.NewError("driver", model.ErrNotFound)
		}

		return model.Driver{}, err
	}

	return driver, nil
}

func (dao *DriverDAO) All(ctx context.Context) ([]model.Driver, error) {
	return dao.selectDrivers(ctx, squirrel.Eq{})
}

func (dao *DriverDAO) Enabled(ctx context.Context) ([]model.Driver, error) {
	return dao.selectDrivers(ctx, squirrel.Eq{"enabled": true})
}

func (dao *DriverDAO) selectDrivers(ctx context.Context, where squirrel.Eq) ([]model.Driver, error) {
	logger := dao.Logger.With("query", "select")

	query, args, err := dao.db.Builder.
		Select("*").
		From("drivers").
		Where(where).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	drivers := make([]model.Driver, 0)
	if err := dao.ext.SelectContext(ctx, &drivers, query, args...); err != nil {
		return nil, err
	}

	return drivers, nil
}

func (dao *DriverDAO) SetAbsentUntil(ctx context.Context, id model.ID, absentUntil *time.Time) error {
	return dao.update(ctx, id, map[string]any{"absent_until": absentUntil})
}

func (dao *DriverDAO) SetEnabled(ctx context.Context, id model.ID, enabled bool) error {
	return dao.update(ctx, id, map[string]any{"enabled": enabled})
}

func (dao *DriverDAO) SetDrawAllowance(ctx context.Context, id model.ID, value int) error {
	return dao.update(ctx, id, map[string]any{"draw_allowance": value})
}

func (dao *DriverDAO) AddKarma(ctx context.Context, id model.ID, delta int) (int, error) {
	logger := dao.Logger.With("query", "addKarma")

	query, args, err := dao.db.Builder.
		Update("drivers").
		Set("karma", squirrel.Expr("karma + ?", delta)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING karma").
		ToSql()
	if err != nil {
		return 0, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var karma int
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&karma); err != nil {
		if IsNoRows(err) {
			return 0, model.NewError("driver", model.ErrNotFound)
		}

		return 0, err
	}

	return karma, nil
}

// ResetDrawAllowances primes every enabled driver with a fresh random daily
// draw allowance. Runs once per day rollover.
func (dao *DriverDAO) ResetDrawAllowances(ctx context.Context) error {
	logger := dao.Logger.With("query", "resetDrawAllowances")

	query, args, err := dao.db.Builder.
		Update("drivers").
		Set("draw_allowance", squirrel.Expr("(floor(random()*100)+1)::int")).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"enabled": true}).
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	_, err = dao.ext.ExecContext(ctx, query, args...)
	return err
}

func (dao *DriverDAO) update(ctx context.Context, id model.ID, set map[string]any) error {
	logger := dao.Logger.With("query", "update")

	set["updated_at"] = squirrel.Expr("now()")

	query, args, err := dao.db.Builder.
		Update("drivers").
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
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
		return model.NewError("driver", model.ErrNotFound)
	}

	return nil
}
