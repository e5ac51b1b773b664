package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationDAO_DeleteDuplicates(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	dao := NewReservationDAO(testLogger(), db)

	day := time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM reservations r\s+USING drivers d\s+WHERE d\.id = r\.driver_id\s+AND d\.enabled`).
		WithArgs(day).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := dao.DeleteDuplicates(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationDAO_DeleteDuplicatesIdempotent(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	dao := NewReservationDAO(testLogger(), db)

	day := time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM reservations r`).
		WithArgs(day).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := dao.DeleteDuplicates(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationDAO_ByDay(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	dao := NewReservationDAO(testLogger(), db)

	// A Tuesday; the weekday lands in the first bind parameter.
	day := time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "day_of_week", "spot_id", "driver_id"}).
		AddRow(1, 2, 12, 7).
		AddRow(4, 2, 18, 9)

	mock.ExpectQuery(`SELECT r\.\*\s+FROM reservations r\s+JOIN drivers d`).
		WithArgs(2, day).
		WillReturnRows(rows)

	reservations, err := dao.ByDay(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, 2, reservations[0].DayOfWeek)

	require.NoError(t, mock.ExpectationsWereMet())
}
