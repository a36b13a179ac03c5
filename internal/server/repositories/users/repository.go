// Package users implements the credential store: the durable mapping of a
// user to a password hash and pending password-reset state.
//
// Every method is a single atomic step. Uniqueness of name and email is
// enforced by the write itself (never check-then-insert), and reset-token
// consumption is a compare-and-clear that only one caller can win.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the credential store contract. Lookups that match nothing
// return common.ErrorNotFound; uniqueness violations return
// common.ErrDuplicate. Any other error means the store is unreachable or
// broken.
type Repository interface {
	// Create inserts a user with a fresh id.
	Create(ctx context.Context, name, email, passwordHash string, now time.Time) (*models.User, error)

	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)

	// SetResetToken stores token and expiry, replacing any pending token.
	SetResetToken(ctx context.Context, id, token string, expiry, now time.Time) error

	// FindByResetToken returns the user with this email whose stored token
	// equals token and whose expiry is strictly after now.
	FindByResetToken(ctx context.Context, email, token string, now time.Time) (*models.User, error)

	// ConsumeResetToken sets the new hash and clears both reset fields,
	// provided token is still the pending, unexpired token of user id.
	// Otherwise nothing changes and common.ErrorNotFound is returned.
	ConsumeResetToken(ctx context.Context, id, token, newPasswordHash string, now time.Time) error

	// ClearSession records a logout. Session tokens are stateless, so only
	// updated_at moves.
	ClearSession(ctx context.Context, id string, now time.Time) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

type rowScanner interface {
	Scan(dest ...any) error
}
