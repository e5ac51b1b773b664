package database

import (
	"context"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/parkpool-dev/parkpool/internal/model"
)

type ParamDAO struct {
	Logger *slog.Logger
	db     *DB
	ext    Ext
}

func NewParamDAO(logger *slog.Logger, db *DB) *ParamDAO {
	return &ParamDAO{
		Logger: logger.With("dao", "param"),
		db:     db,
		ext:    db.DB,
	}
}

func (dao *ParamDAO) WithTx(tx Ext) *ParamDAO {
	clone := *dao
	clone.ext = tx
	return &clone
}

// Get returns the stored value for key, or def if the key is absent.
func (dao *ParamDAO) Get(ctx context.Context, key, def string) (string, error) {
	logger := dao.Logger.With("query", "get")

	query, args, err := dao.db.Builder.
		Select("value").
		From("app_params").
		Where(squirrel.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}

	logger.Debug("build query", "sql", query, "args", args)

	var value string
	row := dao.ext.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&value); err != nil {
		if IsNoRows(err) {
			return def, nil
		}

		return "", err
	}

	return value, nil
}

func (dao *ParamDAO) Set(ctx context.Context, key, value, description string) error {
	logger := dao.Logger.With("query", "set")

	query, args, err := dao.db.Builder.
		Insert("app_params").
		Columns("key", "value", "description").
		Values(key, value, description).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, description = EXCLUDED.description").
		ToSql()
	if err != nil {
		return err
	}

	logger.Debug("build query", "sql", query, "args", args)

	_, err = dao.ext.ExecContext(ctx, query, args...)
	return err
}

func (dao *ParamDAO) Delete(ctx context.Context, key string) error {
	logger := dao.Logger.With("query", "delete")

	query, args, err := dao.db.Builder.
		Delete("app_params").
		Where(squirrel.Eq{"key": key}).
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
		return model.NewError("param", model.ErrNotFound)
	}

	return nil
}

func (dao *ParamDAO) All(ctx context.Context) ([]model.AppParam, error) {
	logger := dao.Logger.With("query", "all")

	query, args, err := dao.db.Builder.
		Select("*").
		From("app_params").
		OrderBy("key ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	logger.Debug("build query", "sql", query, "args", args)

	params := make([]model.AppParam, 0)
	if err := dao.ext.SelectContext(ctx, &params, query, args...); err != nil {
		return nil, err
	}

	return params, nil
}
