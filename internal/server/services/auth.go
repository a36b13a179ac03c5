// Package services contains the server-side auth use cases: registration,
// login, password reset and logout, on top of a users.Repository.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// MaxNameLength bounds the display name, in characters.
const MaxNameLength = 20

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// SessionIssuer mints and verifies stateless session tokens.
type SessionIssuer interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Profile models.Profile
	Token   string
}

// AuthService implements the auth use cases. It holds no mutable state of
// its own besides the lazily built timing-equalisation hash.
type AuthService struct {
	users    users.Repository
	hasher   cryptox.PasswordHasher
	sessions SessionIssuer
	resets   *ResetTokenManager
	notifier notify.Notifier
	metrics  *metrics.AuthMetrics
	logger   logging.Logger
	now      timex.Clock

	frontendURL       string
	minPasswordLength int

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the use cases to their collaborators.
func NewAuthService(
	repo users.Repository,
	hasher cryptox.PasswordHasher,
	sessions SessionIssuer,
	resets *ResetTokenManager,
	notifier notify.Notifier,
	cfg *config.Config,
	logger logging.Logger,
) *AuthService {
	return &AuthService{
		users:             repo,
		hasher:            hasher,
		sessions:          sessions,
		resets:            resets,
		notifier:          notifier,
		logger:            logger.With("module", "auth"),
		now:               timex.UTCNow,
		frontendURL:       strings.TrimRight(cfg.FrontendURL, "/"),
		minPasswordLength: cfg.MinPasswordLength,
	}
}

// WithMetrics enables operation metrics.
func (s *AuthService) WithMetrics(m *metrics.AuthMetrics) *AuthService {
	s.metrics = m
	return s
}

// WithClock replaces the time source used for store timestamps.
func (s *AuthService) WithClock(now timex.Clock) *AuthService {
	s.now = now
	return s
}

// Register creates a user and returns its public profile.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (_ *models.Profile, err error) {
	defer s.observe("register", time.Now(), &err)

	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: all fields are required: name, email, and password", common.ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", common.ErrValidation, MaxNameLength)
	}
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: please provide a valid email address", common.ErrValidation)
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.hashFailure(ctx, err)
	}

	user, err := s.users.Create(ctx, name, email, hash, s.now())
	if err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			s.logger.Info(ctx, "registration rejected", "email", email, "reason", err)
			return nil, common.ErrDuplicate
		}
		return nil, s.unavailable(ctx, "register", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "email", email)
	p := user.Profile()
	return &p, nil
}

// Login checks the credentials and issues a session token. Unknown email and
// wrong password fail identically with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	defer s.observe("login", time.Now(), &err)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: both email and password are required", common.ErrValidation)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn a verification so a miss costs as much as a wrong password
			_, _ = s.hasher.Verify(password, s.timingHash())
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.unavailable(ctx, "login", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash unusable", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	token, err := s.sessions.Issue(user.ID)
	if err != nil {
		s.logger.Error(ctx, "session token signing failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{Profile: user.Profile(), Token: token}, nil
}

// ForgotPassword issues a reset token and hands the link to the notifier.
// An unknown email is acknowledged the same way as a known one.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer s.observe("forgot_password", time.Now(), &err)

	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email address is required", common.ErrValidation)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Info(ctx, "password reset requested for unknown email", "email", email)
			return nil
		}
		return s.unavailable(ctx, "forgot_password", err)
	}

	token, _, err := s.resets.Generate(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorInternal) {
			s.logger.Error(ctx, "reset token generation failed", "error", err)
			return common.ErrorInternal
		}
		return s.unavailable(ctx, "forgot_password", err)
	}

	msg := notify.ResetMessage{
		To:        user.Email,
		Name:      user.Name,
		Link:      s.resetLink(token, user.Email),
		ExpiresIn: s.resets.TTL(),
	}
	err = s.notifier.SendPasswordReset(ctx, msg)
	s.metrics.ObserveResetMail(err)
	if err != nil {
		s.logger.Error(ctx, "reset notification failed", "user_id", user.ID, "error", err)
		return fmt.Errorf("%w: %w", common.ErrServiceUnavailable, err)
	}

	s.logger.Info(ctx, "password reset link issued", "user_id", user.ID)
	return nil
}

// ValidateResetToken reports whether token is currently usable for email.
// It never reveals which part was wrong.
func (s *AuthService) ValidateResetToken(ctx context.Context, email, token string) (_ bool, err error) {
	defer s.observe("validate_reset_token", time.Now(), &err)

	email = normalizeEmail(email)
	if email == "" || token == "" {
		return false, fmt.Errorf("%w: token and email are required", common.ErrValidation)
	}

	_, err = s.resets.Validate(ctx, email, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrInvalidOrExpiredToken):
		return false, nil
	default:
		return false, s.unavailable(ctx, "validate_reset_token", err)
	}
}

// ResetPassword sets a new password using a pending reset token. Session
// tokens issued before the reset stay valid until they expire.
func (s *AuthService) ResetPassword(ctx context.Context, email, token, newPassword string) (err error) {
	defer s.observe("reset_password", time.Now(), &err)

	email = normalizeEmail(email)
	if email == "" || token == "" || newPassword == "" {
		return fmt.Errorf("%w: token, email, and new password are required", common.ErrValidation)
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}

	// cheap reject before paying for a hash
	if _, err := s.resets.Validate(ctx, email, token); err != nil {
		return s.resetFailure(ctx, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.hashFailure(ctx, err)
	}

	if err := s.resets.Consume(ctx, email, token, hash); err != nil {
		return s.resetFailure(ctx, err)
	}

	s.logger.Info(ctx, "password reset completed", "email", email)
	return nil
}

// Logout clears the server-side session marker. It is best effort: the
// client discarding its token is what ends the session.
func (s *AuthService) Logout(ctx context.Context, userID string) (err error) {
	defer s.observe("logout", time.Now(), &err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", common.ErrServiceUnavailable, ctxErr)
	}

	if err := s.users.ClearSession(ctx, userID, s.now()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "logout for unknown user", "user_id", userID)
		} else {
			s.logger.Warn(ctx, "logout bookkeeping failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// Profile returns the public profile of userID.
func (s *AuthService) Profile(ctx context.Context, userID string) (_ *models.Profile, err error) {
	defer s.observe("profile", time.Now(), &err)

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.unavailable(ctx, "profile", err)
	}
	p := user.Profile()
	return &p, nil
}

// Authenticate resolves a bearer session token to a user id.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	userID, err := s.sessions.Verify(token)
	if err != nil {
		s.logger.Debug(ctx, "session token rejected", "reason", err)
		return "", fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}
	return userID, nil
}

// Health checks that the store is reachable.
func (s *AuthService) Health(ctx context.Context) error {
	if err := s.users.Ping(ctx); err != nil {
		return s.unavailable(ctx, "health", err)
	}
	return nil
}

func (s *AuthService) checkPassword(password string) error {
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, s.minPasswordLength)
	}
	if len(password) > cryptox.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", common.ErrValidation, cryptox.MaxPasswordBytes)
	}
	return nil
}

func (s *AuthService) resetLink(token, email string) string {
	return fmt.Sprintf("%s/reset-password?token=%s&email=%s", s.frontendURL, token, url.QueryEscape(email))
}

// timingHash returns a throwaway hash produced by the configured hasher.
func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		if h, err := s.hasher.Hash("authkeeper-timing-equaliser"); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *AuthService) resetFailure(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrInvalidOrExpiredToken) {
		return common.ErrInvalidOrExpiredToken
	}
	return s.unavailable(ctx, "reset_password", err)
}

func (s *AuthService) hashFailure(ctx context.Context, err error) error {
	if errors.Is(err, common.ErrValidation) {
		return err
	}
	s.logger.Error(ctx, "password hashing failed", "error", err)
	return common.ErrorInternal
}

func (s *AuthService) unavailable(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, "credential store failure", "operation", op, "error", err)
	return fmt.Errorf("%w: %w", common.ErrServiceUnavailable, err)
}

func (s *AuthService) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, *err, time.Since(start))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
