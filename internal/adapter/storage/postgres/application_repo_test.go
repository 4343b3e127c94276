package postgres

import (
	"context"
	"testing"
	"time"

	"permit-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApplicationRepo(mock)
	id := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM applications").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "status", "updated_at"}).
			AddRow(id, userID, domain.AppStatusPendingPayment, now))

	app, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, userID, app.UserID)
	assert.True(t, app.IsPayable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApplicationRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM applications").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "status", "updated_at"}))

	app, err := repo.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, app)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepo_SetPaymentStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApplicationRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE applications").
		WithArgs(domain.AppStatusPaid, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.SetPaymentStatus(context.Background(), id, domain.AppStatusPaid)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepo_SetPaymentStatus_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewApplicationRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE applications").
		WithArgs(domain.AppStatusPaymentFailed, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetPaymentStatus(context.Background(), id, domain.AppStatusPaymentFailed)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
