package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/parkpool-dev/parkpool/internal/model"
)

type QueueDAO struct {
	Logger *slog.Logger
	db     *DB
	ext    Ext
}

func NewQueueDAO(logger *slog.Logger, db *DB) *QueueDAO {
	return &QueueDAO{
		Logger: logger.With("dao", "queue"),
		db:     db,
		ext:    db.DB,
	}
}

func (dao *QueueDAO) WithTx(tx Ext) *QueueDAO {
	clone := *dao
	clone.ext = tx
	return &clone
}

func (dao *QueueDAO) All(ctx context.Context) ([]model.QueueEntry, error) {
	logger := dao.Logger.With("query", "all")

	query, args, err := dao.db.Builder.
		Select("*").
		From("queue").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	entries := make([]model.QueueEntry, 0)
	if err := dao.ext.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}

	return entries, nil
}

func (dao *QueueDAO) ByDriver(ctx context.Context, driverID model.ID) (model.QueueEntry, error) {
	logger := dao.Logger.With("query", "byDriver")

	query, args, err := dao.db.Builder.
		Select("*").
		From("queue").
		Where(squirrel.Eq{"driver_id": driverID}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.QueueEntry{}, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var entry model.QueueEntry
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.StructScan(&entry); err != nil {
		if IsNoRows(err) {
			return model.QueueEntry{}, model.NewError("queue entry", model.ErrNotFound)
		}

		return model.QueueEntry{}, err
	}

	return entry, nil
}

func (dao *QueueDAO) Join(ctx context.Context, driverID model.ID) (model.ID, error) {
	logger := dao.Logger.With("query", "join")

	query, args, err := dao.db.Builder.
		Insert("queue").
		Columns("driver_id").
		Values(driverID).
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
			return 0, model.NewError("queue entry", model.ErrExists)
		case IsForeignKeyViolation(err):
			return 0, model.NewError("driver", model.ErrNotFound)
		}

		return 0, err
	}

	return id, nil
}

func (dao *QueueDAO) Delete(ctx context.Context, driverID model.ID) error {
	logger := dao.Logger.With("query", "delete")

	query, args, err := dao.db.Builder.
		Delete("queue").
		Where(squirrel.Eq{"driver_id": driverID}).
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
		return model.NewError("queue entry", model.ErrNotFound)
	}

	return nil
}

func (dao *QueueDAO) DeleteAll(ctx context.Context) error {
	logger := dao.Logger.With("query", "deleteAll")

	query, args, err := dao.db.Builder.Delete("queue").ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	_, err = dao.ext.ExecContext(ctx, query, args...)
	return err
}

func (dao *QueueDAO) SetOffer(ctx context.Context, entryID, spotID model.ID, deadline time.Time) error {
	return dao.updateOffer(ctx, entryID, map[string]any{
		"spot_id":       spotID,
		"choose_before": deadline,
	})
}

// ClearOffer drops a pending offer but keeps the entry in the queue.
func (dao *QueueDAO) ClearOffer(ctx context.Context, entryID model.ID) error {
	return dao.updateOffer(ctx, entryID, map[string]any{
		"spot_id":       nil,
		"choose_before": nil,
	})
}

// Requeue clears any offer and moves the entry to the back of the queue.
func (dao *QueueDAO) Requeue(ctx context.Context, entryID model.ID, now time.Time) error {
	return dao.updateOffer(ctx, entryID, map[string]any{
		"spot_id":       nil,
		"choose_before": nil,
		"created_at":    now,
	})
}

func (dao *QueueDAO) updateOffer(ctx context.Context, entryID model.ID, set map[string]any) error {
	logger := dao.Logger.With("query", "updateOffer")

	query, args, err := dao.db.Builder.
		Update("queue").
		SetMap(set).
		Where(squirrel.Eq{"id": entryID}).
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
		return model.NewError("queue entry", model.ErrNotFound)
	}

	return nil
}
