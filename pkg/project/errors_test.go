package project

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencomply/comply-server/pkg/tenancy"
)

// setupMockStore opens a Store over a sqlmock connection for driver-level
// error injection.
func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	// The driver may probe the server version on open; answer it if asked.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery("SELECT version").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.0"))

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStore(db), mock
}

func TestListPropagatesDriverError(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "projects"`).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := store.List(context.Background(), tenancy.DefaultTenant, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list projects")
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestGetPropagatesDriverError(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "projects"`).
		WillReturnError(errors.New("server closed the connection"))

	_, err := store.Get(context.Background(), tenancy.DefaultTenant, "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get project")
}
