package erpdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/erp"
)

// newMockCorrector creates a Corrector backed by a mocked SQL connection
func newMockCorrector(t *testing.T) (*Corrector, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewCorrector(gormDB, testWorkflowConfig(), zap.NewNop()), mock, mockDB
}

func TestCorrector_ForceAuthorizeSO(t *testing.T) {
	t.Run("sets the fulfillment order to authorized", func(t *testing.T) {
		corrector, mock, mockDB := newMockCorrector(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE PUB\."PV_SOrder"`).
			WithArgs(0, 2, "2", 8001).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := corrector.ForceAuthorizeSO(context.Background(), 8001)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when no row matches", func(t *testing.T) {
		corrector, mock, mockDB := newMockCorrector(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE PUB\."PV_SOrder"`).
			WithArgs(0, 2, "2", 9999).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := corrector.ForceAuthorizeSO(context.Background(), 9999)

		assert.ErrorIs(t, err, erp.ErrNotFound)
	})
}

func TestCorrector_ConfirmPO(t *testing.T) {
	t.Run("marks the purchase order confirmed", func(t *testing.T) {
		corrector, mock, mockDB := newMockCorrector(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE PUB\."PV_POrder"`).
			WithArgs(2, 2, 7001).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := corrector.ConfirmPO(context.Background(), 7001)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound when no row matches", func(t *testing.T) {
		corrector, mock, mockDB := newMockCorrector(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE PUB\."PV_POrder"`).
			WithArgs(2, 2, 9999).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := corrector.ConfirmPO(context.Background(), 9999)

		assert.ErrorIs(t, err, erp.ErrNotFound)
	})
}
