package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/secure-agent/pkg/hr"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestStoreDaysOff(t *testing.T) {
	selectQuery := regexp.QuoteMeta("SELECT days_off FROM days_off_balances WHERE person_name = $1")

	t.Run("known person", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectQuery).
			WithArgs("jettro").
			WillReturnRows(sqlmock.NewRows([]string{"days_off"}).AddRow(10))

		days, err := store.DaysOff(context.Background(), "jettro")
		require.NoError(t, err)
		assert.Equal(t, 10, days)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown person", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectQuery).
			WithArgs("stranger").
			WillReturnError(sql.ErrNoRows)

		_, err := store.DaysOff(context.Background(), "stranger")
		assert.ErrorIs(t, err, hr.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(selectQuery).
			WithArgs("jettro").
			WillReturnError(errors.New("connection reset"))

		_, err := store.DaysOff(context.Background(), "jettro")
		require.Error(t, err)
		assert.NotErrorIs(t, err, hr.ErrNotFound)
	})
}

func TestStoreSetDaysOff(t *testing.T) {
	upsert := regexp.QuoteMeta(
		"INSERT INTO days_off_balances (person_name,days_off) VALUES ($1,$2) " +
			"ON CONFLICT (person_name) DO UPDATE SET days_off = EXCLUDED.days_off")

	t.Run("upsert succeeds", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(upsert).
			WithArgs("jettro", 12).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SetDaysOff(context.Background(), "jettro", 12))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec failure", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(upsert).
			WithArgs("jettro", 12).
			WillReturnError(errors.New("connection reset"))

		assert.Error(t, store.SetDaysOff(context.Background(), "jettro", 12))
	})
}
