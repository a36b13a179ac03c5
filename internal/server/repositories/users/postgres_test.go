package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "5b1f9a36-2f7e-4c0c-9a51-0c1f2d3e4a5b"

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userColumns = []string{"id", "name", "email", "password_hash", "reset_token", "reset_token_expiry", "created_at", "updated_at"}

func TestPostgresCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*name,\s*email,\s*password_hash,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$5\)\s*$`

	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "alice", "a@x.com", "hash", baseTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), "alice", "a@x.com", "hash", baseTime)
	require.NoError(t, err)
	assert.Len(t, got.ID, 36)
	assert.Equal(t, "alice", got.Name)
	assert.True(t, baseTime.Equal(got.CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate_TruncatesToMicroseconds(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := baseTime.Add(123456789 * time.Nanosecond)
	stored := now.Truncate(time.Microsecond)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WithArgs(sqlmock.AnyArg(), "alice", "a@x.com", "hash", stored).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := repo.Create(context.Background(), "alice", "a@x.com", "hash", now)
	require.NoError(t, err)
	assert.True(t, stored.Equal(got.CreatedAt))
	assert.True(t, stored.Equal(got.UpdatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})

	_, err := repo.Create(context.Background(), "alice", "a@x.com", "hash", baseTime)
	require.ErrorIs(t, err, common.ErrDuplicate)
	assert.Contains(t, err.Error(), "users_email_key")
}

func TestPostgresCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), "alice", "a@x.com", "hash", baseTime)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	require.NotErrorIs(t, err, common.ErrDuplicate)
}

func TestPostgresFindByEmail_FoundWithPendingReset(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expiry := baseTime.Add(15 * time.Minute)
	rows := sqlmock.NewRows(userColumns).
		AddRow(testUUID, "alice", "a@x.com", "hash", "tok", expiry, baseTime, baseTime)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	got, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, testUUID, got.ID)
	assert.Equal(t, "tok", got.ResetToken)
	assert.True(t, expiry.Equal(got.ResetTokenExpiry))
}

func TestPostgresFindByEmail_NullResetFields(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(userColumns).
		AddRow(testUUID, "alice", "a@x.com", "hash", nil, nil, baseTime, baseTime)
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email`).WithArgs("a@x.com").WillReturnRows(rows)

	got, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Empty(t, got.ResetToken)
	assert.True(t, got.ResetTokenExpiry.IsZero())
}

func TestPostgresFindByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email`).WithArgs("ghost@x.com").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPostgresFindByID_InvalidUUIDSkipsQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByResetToken_FiltersOnExpiry(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := baseTime.Add(time.Minute)
	mock.ExpectQuery(`(?s)WHERE\s+email\s*=\s*\$1\s+AND\s+reset_token\s*=\s*\$2\s+AND\s+reset_token_expiry\s*>\s*\$3`).
		WithArgs("a@x.com", "tok", now).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByResetToken(context.Background(), "a@x.com", "tok", now)
	require.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetResetToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expiry := baseTime.Add(15 * time.Minute)
	q := `(?s)^UPDATE\s+users\s+SET\s+reset_token\s*=\s*\$2,\s*reset_token_expiry\s*=\s*\$3,\s*updated_at\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1\s*$`

	mock.ExpectExec(q).WithArgs(testUUID, "tok", expiry, baseTime).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetResetToken(context.Background(), testUUID, "tok", expiry, baseTime))

	mock.ExpectExec(q).WithArgs(testUUID, "tok", expiry, baseTime).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.SetResetToken(context.Background(), testUUID, "tok", expiry, baseTime), common.ErrorNotFound)
}

func TestPostgresConsumeResetToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$3,\s*reset_token\s*=\s*NULL,\s*reset_token_expiry\s*=\s*NULL,\s*updated_at\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1\s+AND\s+reset_token\s*=\s*\$2\s+AND\s+reset_token_expiry\s*>\s*\$4\s*$`

	mock.ExpectExec(q).WithArgs(testUUID, "tok", "new-hash", baseTime).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.ConsumeResetToken(context.Background(), testUUID, "tok", "new-hash", baseTime))

	// lost race: the row no longer carries the token
	mock.ExpectExec(q).WithArgs(testUUID, "tok", "new-hash", baseTime).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.ConsumeResetToken(context.Background(), testUUID, "tok", "new-hash", baseTime), common.ErrorNotFound)

	mock.ExpectExec(q).WillReturnError(errors.New("conn reset"))
	err := repo.ConsumeResetToken(context.Background(), testUUID, "tok", "new-hash", baseTime)
	require.ErrorContains(t, err, "db error: conn reset")
}

func TestPostgresClearSession(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(testUUID, baseTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ClearSession(context.Background(), testUUID, baseTime))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	require.NoError(t, repo.Ping(context.Background()))

	mock.ExpectQuery(`SELECT 1`).WillReturnError(errors.New("refused"))
	require.ErrorContains(t, repo.Ping(context.Background()), "refused")
}
