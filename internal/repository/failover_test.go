package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"leecher/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lease, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Lease), args.Error(1)
}

type noopLease struct{}

func (noopLease) Extend(context.Context, time.Duration) error { return nil }
func (noopLease) Release(context.Context) error               { return nil }

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	locker := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Acquire", ctx, "a", time.Minute).Return(noopLease{}, nil).Once()

		lease, err := locker.Acquire(ctx, "a", time.Minute)
		assert.NoError(t, err)
		assert.NotNil(t, lease)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryHeldIsNotAFailure", func(t *testing.T) {
		primary.On("Acquire", ctx, "b", time.Minute).Return(nil, domain.ErrLockHeld).Once()

		_, err := locker.Acquire(ctx, "b", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		assert.False(t, locker.isDown.Load())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Acquire", ctx, "c", time.Minute).Return(nil, errors.New("connection refused")).Once()
		fallback.On("Acquire", ctx, "c", time.Minute).Return(noopLease{}, nil).Once()

		_, err := locker.Acquire(ctx, "c", time.Minute)
		assert.NoError(t, err)
		assert.True(t, locker.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("Acquire", ctx, "d", time.Minute).Return(noopLease{}, nil).Once()

		_, err := locker.Acquire(ctx, "d", time.Minute)
		assert.NoError(t, err)
		primary.AssertNotCalled(t, "Acquire", ctx, "d", time.Minute)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		locker.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("Acquire", ctx, "e", time.Minute).Return(noopLease{}, nil).Once()

		_, err := locker.Acquire(ctx, "e", time.Minute)
		assert.NoError(t, err)
		assert.False(t, locker.isDown.Load())
	})
}
