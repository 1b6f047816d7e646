package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"leecher/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLocker uses the primary locker and switches to the fallback when
// the primary errors. It retries the primary after a minute. A lease stays
// with the locker that granted it.
type FailoverLocker struct {
	primary   domain.DrainLocker
	fallback  domain.DrainLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLocker(primary, fallback domain.DrainLocker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lease, error) {
	if !l.isDown.Load() || l.recoveryDue() {
		lease, err := l.primary.Acquire(ctx, key, ttl)
		if err == nil || errors.Is(err, domain.ErrLockHeld) {
			if l.isDown.Swap(false) {
				l.logger.Info().Msg("Primary drain locker recovered")
			}
			return lease, err
		}
		if !l.isDown.Swap(true) {
			l.logger.Error().Err(err).Msg("Primary drain locker failed, switching to fallback")
		}
		l.markChecked()
	}

	return l.fallback.Acquire(ctx, key, ttl)
}

func (l *FailoverLocker) recoveryDue() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.lastCheck) > time.Minute
}

func (l *FailoverLocker) markChecked() {
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
}
