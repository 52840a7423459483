package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/onramp/pkg/apperr"
)

func TestPostgresEventStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresEventStore(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM billing_events WHERE event_id = \$1\)`).
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO billing_events (.+) ON CONFLICT \\(event_id\\) DO NOTHING").
		WithArgs("evt_1", EventSubscriptionCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := store.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Record(ctx, "evt_1", EventSubscriptionCreated))

	seen, err = store.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventStore_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO billing_events").WillReturnError(errors.New("connection refused"))

	err = NewPostgresEventStore(db).Record(context.Background(), "evt_1", "invoice.paid")
	assert.True(t, apperr.IsDependency(err))
}
