package users

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

// runRepositoryContract exercises the behaviour every Repository must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)

		u, err := repo.Create(ctx, "alice", "a@x.com", "hash-1", baseTime)
		require.NoError(t, err)
		require.NotEmpty(t, u.ID)
		assert.Equal(t, "alice", u.Name)
		assert.Equal(t, "hash-1", u.PasswordHash)
		assert.Empty(t, u.ResetToken)

		byEmail, err := repo.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, "hash-1", byEmail.PasswordHash)
		assert.True(t, baseTime.Equal(byEmail.CreatedAt))

		byID, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", byID.Email)
	})

	t.Run("missing user", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.FindByEmail(ctx, "ghost@x.com")
		require.ErrorIs(t, err, common.ErrorNotFound)
		_, err = repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, common.ErrorNotFound)
		require.ErrorIs(t, repo.SetResetToken(ctx, "00000000-0000-0000-0000-000000000000", "t", baseTime, baseTime), common.ErrorNotFound)
		require.ErrorIs(t, repo.ClearSession(ctx, "00000000-0000-0000-0000-000000000000", baseTime), common.ErrorNotFound)
	})

	t.Run("duplicates fail without partial writes", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Create(ctx, "alice", "a@x.com", "h", baseTime)
		require.NoError(t, err)

		_, err = repo.Create(ctx, "alice2", "a@x.com", "h", baseTime)
		require.ErrorIs(t, err, common.ErrDuplicate)

		_, err = repo.Create(ctx, "alice", "other@x.com", "h", baseTime)
		require.ErrorIs(t, err, common.ErrDuplicate)

		_, err = repo.FindByEmail(ctx, "other@x.com")
		require.ErrorIs(t, err, common.ErrorNotFound, "failed create must not leave a row behind")
	})

	t.Run("reset token lifecycle", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.Create(ctx, "bob", "b@x.com", "old-hash", baseTime)
		require.NoError(t, err)

		expiry := baseTime.Add(15 * time.Minute)
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "tok-1", expiry, baseTime))

		got, err := repo.FindByResetToken(ctx, "b@x.com", "tok-1", baseTime.Add(14*time.Minute+59*time.Second))
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "tok-1", got.ResetToken)
		assert.True(t, expiry.Equal(got.ResetTokenExpiry))

		_, err = repo.FindByResetToken(ctx, "b@x.com", "tok-1", expiry)
		require.ErrorIs(t, err, common.ErrorNotFound, "expiry must be strictly in the future")
		_, err = repo.FindByResetToken(ctx, "b@x.com", "wrong", baseTime)
		require.ErrorIs(t, err, common.ErrorNotFound)
		_, err = repo.FindByResetToken(ctx, "c@x.com", "tok-1", baseTime)
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("new reset token replaces the old one", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.Create(ctx, "bob", "b@x.com", "h", baseTime)
		require.NoError(t, err)

		require.NoError(t, repo.SetResetToken(ctx, u.ID, "tok-1", baseTime.Add(15*time.Minute), baseTime))
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "tok-2", baseTime.Add(16*time.Minute), baseTime.Add(time.Minute)))

		_, err = repo.FindByResetToken(ctx, "b@x.com", "tok-1", baseTime.Add(2*time.Minute))
		require.ErrorIs(t, err, common.ErrorNotFound)
		_, err = repo.FindByResetToken(ctx, "b@x.com", "tok-2", baseTime.Add(2*time.Minute))
		require.NoError(t, err)
	})

	t.Run("consume is single use", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.Create(ctx, "carol", "c@x.com", "old-hash", baseTime)
		require.NoError(t, err)
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "tok", baseTime.Add(15*time.Minute), baseTime))

		now := baseTime.Add(5 * time.Minute)
		require.NoError(t, repo.ConsumeResetToken(ctx, u.ID, "tok", "new-hash", now))

		got, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", got.PasswordHash)
		assert.Empty(t, got.ResetToken)
		assert.True(t, got.ResetTokenExpiry.IsZero())
		assert.True(t, now.Equal(got.UpdatedAt))

		err = repo.ConsumeResetToken(ctx, u.ID, "tok", "newer-hash", now)
		require.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("consume after expiry changes nothing", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.Create(ctx, "dave", "d@x.com", "old-hash", baseTime)
		require.NoError(t, err)
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "tok", baseTime.Add(15*time.Minute), baseTime))

		err = repo.ConsumeResetToken(ctx, u.ID, "tok", "new-hash", baseTime.Add(15*time.Minute+time.Second))
		require.ErrorIs(t, err, common.ErrorNotFound)

		got, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "old-hash", got.PasswordHash)
	})

	t.Run("clear session touches updated_at", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.Create(ctx, "erin", "e@x.com", "h", baseTime)
		require.NoError(t, err)

		later := baseTime.Add(time.Hour)
		require.NoError(t, repo.ClearSession(ctx, u.ID, later))

		got, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, later.Equal(got.UpdatedAt))
	})

	t.Run("concurrent creates with the same email", func(t *testing.T) {
		repo := newRepo(t)

		const n = 8
		var ok, dup atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Create(ctx, "racer"+string(rune('a'+i)), "race@x.com", "h", baseTime)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, common.ErrDuplicate):
					dup.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), ok.Load())
		assert.Equal(t, int32(n-1), dup.Load())
	})

	t.Run("concurrent consumes of one token", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.Create(ctx, "frank", "f@x.com", "h", baseTime)
		require.NoError(t, err)
		require.NoError(t, repo.SetResetToken(ctx, u.ID, "tok", baseTime.Add(15*time.Minute), baseTime))

		const n = 8
		var ok, lost atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.ConsumeResetToken(ctx, u.ID, "tok", "new", baseTime.Add(time.Minute))
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, common.ErrorNotFound):
					lost.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), ok.Load())
		assert.Equal(t, int32(n-1), lost.Load())
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newRepo(t).Ping(ctx))
	})
}
