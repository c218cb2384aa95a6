package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_PingStatsClose(t *testing.T) {
	db, mock, _ := newMockDatabase(t)
	ctx := context.Background()

	mock.ExpectPing()
	assert.NoError(t, db.Ping(ctx))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, db.Ping(ctx))

	stats := db.Stats()
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)

	sqlDB, err := db.SQL()
	require.NoError(t, err)
	assert.NotNil(t, sqlDB)

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSessionRepository_WriteFailures(t *testing.T) {
	s := newTestSession(t, uuid.New(), uuid.New(), time.Now())

	t.Run("update error is surfaced and nothing is announced", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		pub := &recordingPublisher{}
		repo := NewGormSessionRepository(db.DB, WithChangePublisher(pub))

		mock.ExpectExec(`UPDATE "sessions" SET`).
			WillReturnError(errors.New("connection reset by peer"))

		version := s.Version
		err := repo.Update(context.Background(), s, []session.Field{session.FieldDiscount})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset by peer")
		assert.Equal(t, version, s.Version)
		assert.Empty(t, pub.notifications)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update of a vanished row is not found", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormSessionRepository(db.DB)

		mock.ExpectExec(`UPDATE "sessions" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), s, []session.Field{session.FieldNotes})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("insert error is surfaced", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		pub := &recordingPublisher{}
		repo := NewGormSessionRepository(db.DB, WithChangePublisher(pub))

		mock.ExpectExec(`INSERT INTO "sessions"`).
			WillReturnError(errors.New("duplicate key value violates unique constraint"))

		err := repo.Insert(context.Background(), s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert session")
		assert.Empty(t, pub.notifications)
	})

	t.Run("delete rolls back when purging fails", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormSessionRepository(db.DB)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "transactions"`).
			WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		err := repo.Delete(context.Background(), s.ID, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "purge transactions")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
