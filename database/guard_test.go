package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestGetHaltFlag_Clear(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT reason, set_at FROM halt_flag").
		WillReturnRows(sqlmock.NewRows([]string{"reason", "set_at"}))

	flag, err := ds.GetHaltFlag(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, flag)
}

func TestGetHaltFlag_Set(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	setAt := time.Now()
	mock.ExpectQuery("SELECT reason, set_at FROM halt_flag").
		WillReturnRows(sqlmock.NewRows([]string{"reason", "set_at"}).
			AddRow("channel open failed for order order-abc", setAt))

	flag, err := ds.GetHaltFlag(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, flag)
	assert.Equal(t, "channel open failed for order order-abc", flag.Reason)
	assert.Equal(t, setAt, flag.SetAt)
}

func TestSetHaltFlag_KeepsFirstReason(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO halt_flag").
		WithArgs("first failure").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// second trip hits the conflict and touches nothing
	mock.ExpectExec("INSERT INTO halt_flag").
		WithArgs("second failure").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, ds.SetHaltFlag(context.Background(), "first failure"))
	assert.NoError(t, ds.SetHaltFlag(context.Background(), "second failure"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearHaltFlag(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM halt_flag").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.ClearHaltFlag(context.Background()))
}
