package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteUserColumns = `id, name, email, password_hash, reset_token, reset_token_expiry, created_at, updated_at`

// SQLiteRepository implements Repository on SQLite (modernc driver).
// Timestamps are stored as Unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, name, email, passwordHash string, now time.Time) (*models.User, error) {
	query := `INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
			values (?, ?, ?, ?, ?, ?)`

	now = now.Truncate(time.Millisecond)
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := r.db.ExecContext(ctx, query, user.ID, name, email, passwordHash, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, fmt.Errorf("%w: %v", common.ErrDuplicate, err)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `select ` + sqliteUserColumns + ` from users where email = ?`
	return scanSQLiteUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `select ` + sqliteUserColumns + ` from users where id = ?`
	return scanSQLiteUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) SetResetToken(ctx context.Context, id, token string, expiry, now time.Time) error {
	query := `update users set reset_token = ?, reset_token_expiry = ?, updated_at = ? where id = ?`
	res, err := r.db.ExecContext(ctx, query, token, expiry.UnixMilli(), now.UnixMilli(), id)
	return affectedOne(res, err)
}

func (r *SQLiteRepository) FindByResetToken(ctx context.Context, email, token string, now time.Time) (*models.User, error) {
	query := `select ` + sqliteUserColumns + ` from users
		where email = ? and reset_token = ? and reset_token_expiry > ?`
	return scanSQLiteUser(r.db.QueryRowContext(ctx, query, email, token, now.UnixMilli()))
}

func (r *SQLiteRepository) ConsumeResetToken(ctx context.Context, id, token, newPasswordHash string, now time.Time) error {
	query := `update users set password_hash = ?, reset_token = null, reset_token_expiry = null, updated_at = ?
		where id = ? and reset_token = ? and reset_token_expiry > ?`
	res, err := r.db.ExecContext(ctx, query, newPasswordHash, now.UnixMilli(), id, token, now.UnixMilli())
	return affectedOne(res, err)
}

func (r *SQLiteRepository) ClearSession(ctx context.Context, id string, now time.Time) error {
	query := `update users set updated_at = ? where id = ?`
	res, err := r.db.ExecContext(ctx, query, now.UnixMilli(), id)
	return affectedOne(res, err)
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `select 1`).Scan(&one); err != nil {
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return nil
}

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	var (
		user                 models.User
		resetToken           sql.NullString
		resetExpiry          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&resetToken, &resetExpiry, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if resetToken.Valid && resetExpiry.Valid {
		user.ResetToken = resetToken.String
		user.ResetTokenExpiry = time.UnixMilli(resetExpiry.Int64).UTC()
	}
	return &user, nil
}
