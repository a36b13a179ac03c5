package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// ResetTokenManager drives the per-user reset token lifecycle:
// none -> pending(token, expiry) -> none (consumed or expired).
type ResetTokenManager struct {
	users    users.Repository
	ttl      time.Duration
	now      timex.Clock
	newToken func() (string, error)
}

func NewResetTokenManager(repo users.Repository, ttl time.Duration) *ResetTokenManager {
	return &ResetTokenManager{
		users: repo,
		ttl:   ttl,
		now:   timex.UTCNow,
		newToken: func() (string, error) {
			return common.MakeRandHexString(common.ResetTokenSize)
		},
	}
}

// WithClock replaces the time source; used by tests.
func (m *ResetTokenManager) WithClock(now timex.Clock) *ResetTokenManager {
	m.now = now
	return m
}

func (m *ResetTokenManager) TTL() time.Duration {
	return m.ttl
}

// Generate issues a fresh token for user, replacing any pending one.
// Entropy failures wrap common.ErrorInternal; store failures are returned
// as they are.
func (m *ResetTokenManager) Generate(ctx context.Context, user *models.User) (string, time.Time, error) {
	token, err := m.newToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: reset token entropy: %w", common.ErrorInternal, err)
	}

	now := m.now()
	expiry := now.Add(m.ttl)
	if err := m.users.SetResetToken(ctx, user.ID, token, expiry, now); err != nil {
		return "", time.Time{}, err
	}
	return token, expiry, nil
}

// Validate returns the user holding token while it is unexpired.
// Unknown email, wrong token and expiry all yield ErrInvalidOrExpiredToken.
func (m *ResetTokenManager) Validate(ctx context.Context, email, token string) (*models.User, error) {
	if email == "" || token == "" {
		return nil, common.ErrInvalidOrExpiredToken
	}
	user, err := m.users.FindByResetToken(ctx, email, token, m.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	return user, nil
}

// Consume re-validates token and swaps in newPasswordHash, clearing the
// token in the same conditional write. Only one of several concurrent
// callers can succeed.
func (m *ResetTokenManager) Consume(ctx context.Context, email, token, newPasswordHash string) error {
	user, err := m.Validate(ctx, email, token)
	if err != nil {
		return err
	}
	err = m.users.ConsumeResetToken(ctx, user.ID, token, newPasswordHash, m.now())
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrInvalidOrExpiredToken
	}
	return err
}
