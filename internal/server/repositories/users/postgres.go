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
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUserColumns = `id, name, email, password_hash, reset_token, reset_token_expiry, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx) opened with the pgx stdlib driver.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, name, email, passwordHash string, now time.Time) (*models.User, error) {
	query :=
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 `

	// timestamptz keeps microseconds
	now = now.Truncate(time.Microsecond)

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := r.db.ExecContext(ctx, query, user.ID, name, email, passwordHash, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", common.ErrDuplicate, pgErr.ConstraintName)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + pgUserColumns + ` FROM users
		 WHERE email = $1
		 `
	return scanPostgresUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	query := `SELECT ` + pgUserColumns + ` FROM users
		 WHERE id = $1
		 `
	return scanPostgresUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id, token string, expiry, now time.Time) error {
	query :=
		`UPDATE users SET reset_token = $2, reset_token_expiry = $3, updated_at = $4
		 WHERE id = $1
		 `
	res, err := r.db.ExecContext(ctx, query, id, token, expiry, now)
	return affectedOne(res, err)
}

func (r *PostgresRepository) FindByResetToken(ctx context.Context, email, token string, now time.Time) (*models.User, error) {
	query := `SELECT ` + pgUserColumns + ` FROM users
		 WHERE email = $1 AND reset_token = $2 AND reset_token_expiry > $3
		 `
	return scanPostgresUser(r.db.QueryRowContext(ctx, query, email, token, now))
}

func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, id, token, newPasswordHash string, now time.Time) error {
	query :=
		`UPDATE users SET password_hash = $3, reset_token = NULL, reset_token_expiry = NULL, updated_at = $4
		 WHERE id = $1 AND reset_token = $2 AND reset_token_expiry > $4
		 `
	res, err := r.db.ExecContext(ctx, query, id, token, newPasswordHash, now)
	return affectedOne(res, err)
}

func (r *PostgresRepository) ClearSession(ctx context.Context, id string, now time.Time) error {
	query :=
		`UPDATE users SET updated_at = $2
		 WHERE id = $1
		 `
	res, err := r.db.ExecContext(ctx, query, id, now)
	return affectedOne(res, err)
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanPostgresUser(row rowScanner) (*models.User, error) {
	var (
		user        models.User
		resetToken  sql.NullString
		resetExpiry sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&resetToken, &resetExpiry, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if resetToken.Valid && resetExpiry.Valid {
		user.ResetToken = resetToken.String
		user.ResetTokenExpiry = resetExpiry.Time
	}
	return &user, nil
}

// affectedOne maps a conditional UPDATE that touched no row to ErrorNotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
