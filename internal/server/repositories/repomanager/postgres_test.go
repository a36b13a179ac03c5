package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func stubMigrations(t *testing.T, fn func(ctx context.Context, db *sql.DB, dialect string) error) {
	t.Helper()
	orig := applyMigrations
	applyMigrations = fn
	t.Cleanup(func() { applyMigrations = orig })
}

func stubOpen(t *testing.T, db *sql.DB, wantDriver string) {
	t.Helper()
	orig := sqlOpen
	sqlOpen = func(driver, source string) (*sql.DB, error) {
		if driver != wantDriver {
			return nil, errors.New("unexpected driver " + driver)
		}
		return db, nil
	}
	t.Cleanup(func() { sqlOpen = orig })
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	var m RepositoryManager = NewPostgresRepositoryManager()
	_, ok := m.Users(db).(*users.PostgresRepository)
	assert.True(t, ok)

	m = NewSQLiteRepositoryManager()
	_, ok = m.Users(db).(*users.SQLiteRepository)
	assert.True(t, ok)
}

func TestRunMigrations_PassesDialect(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	var got []string
	stubMigrations(t, func(ctx context.Context, db *sql.DB, dialect string) error {
		got = append(got, dialect)
		return nil
	})

	require.NoError(t, NewPostgresRepositoryManager().RunMigrations(context.Background(), db))
	require.NoError(t, NewSQLiteRepositoryManager().RunMigrations(context.Background(), db))
	assert.Equal(t, []string{migrations.DialectPostgres, migrations.DialectSQLite}, got)
}

func TestOpen_Memory(t *testing.T) {
	for _, dsn := range []string{"", "memory"} {
		s, err := Open(context.Background(), dsn, true)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, s.Backend)
		_, ok := s.Users.(*users.MemoryRepository)
		assert.True(t, ok)
		require.NoError(t, s.Close())
	}
}

func TestOpen_UnsupportedDSN(t *testing.T) {
	_, err := Open(context.Background(), "mysql://root@localhost/db", false)
	require.Error(t, err)

	_, err = Open(context.Background(), "sqlite:", false)
	require.Error(t, err)
}

func TestOpen_PostgresMigratesAfterPing(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing()
	mock.ExpectClose()
	stubOpen(t, db, "pgx")

	called := false
	stubMigrations(t, func(ctx context.Context, _ *sql.DB, dialect string) error {
		called = true
		assert.Equal(t, migrations.DialectPostgres, dialect)
		return nil
	})

	s, err := Open(context.Background(), "postgres://u:p@localhost:5432/auth", true)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, BackendPostgres, s.Backend)
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_PingFailureClosesDB(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()
	stubOpen(t, db, "pgx")

	_, err := Open(context.Background(), "postgresql://localhost/auth", true)
	require.ErrorContains(t, err, "ping postgres: refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_MigrationFailureClosesDB(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing()
	mock.ExpectClose()
	stubOpen(t, db, "pgx")
	stubMigrations(t, func(context.Context, *sql.DB, string) error { return errors.New("boom") })

	_, err := Open(context.Background(), "postgres://localhost/auth", true)
	require.ErrorContains(t, err, "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SQLiteFile(t *testing.T) {
	dsn := "sqlite:" + filepath.Join(t.TempDir(), "nested", "dir", "auth.db")

	s, err := Open(context.Background(), dsn, true)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, BackendSQLite, s.Backend)
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	u, err := s.Users.Create(context.Background(), "alice", "a@x.com", "hash", now)
	require.NoError(t, err)

	got, err := s.Users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}
