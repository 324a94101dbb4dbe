package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsCoverCoreTables(t *testing.T) {
	stmts := Statements()
	require.NotEmpty(t, stmts)
	joined := ""
	for _, s := range stmts {
		joined += s + "\n"
	}
	for _, table := range []string{"seat_holds", "ticket_holds", "bookings", "booking_items", "payment_transactions", "booking_sequences", "discount_redemptions"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, joined, "UNIQUE KEY uq_seat_holds_show_seat (show_id, seat_key)")
	assert.Contains(t, joined, "UNIQUE KEY uq_payment_transactions_order (gateway_order_id)")
}

func TestMigrateStopsOnFirstError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stmts := Statements()
	mock.ExpectExec(regexp.QuoteMeta(stmts[0])).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(stmts[1])).WillReturnError(errors.New("access denied"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate statement 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
