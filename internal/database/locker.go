package database

import (
	"context"
	"fmt"
	"time"

	"leecher/internal/domain"

	"github.com/google/uuid"
)

// Locker keeps drain locks in the schedule database, so every process
// opening the same file sees the same owner.
type Locker struct {
	db  *DB
	now func() time.Time
}

func NewLocker(db *DB) *Locker {
	return &Locker{db: db, now: time.Now}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lease, error) {
	now := l.now()
	token := uuid.NewString()

	// Чужой лок перезаписывается только после истечения
	res, err := l.db.ExecContext(ctx, `
        INSERT INTO schedule_locks (lock_key, token, expires_at) VALUES (?, ?, ?)
        ON CONFLICT(lock_key) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
        WHERE schedule_locks.expires_at <= ?`,
		key, token, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if n == 0 {
		return nil, domain.ErrLockHeld
	}
	return &sqliteLease{locker: l, key: key, token: token}, nil
}

type sqliteLease struct {
	locker *Locker
	key    string
	token  string
}

func (l *sqliteLease) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := l.locker.db.ExecContext(ctx,
		`UPDATE schedule_locks SET expires_at = ? WHERE lock_key = ? AND token = ?`,
		l.locker.now().Add(ttl).UnixNano(), l.key, l.token)
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return domain.ErrLockLost
	}
	return nil
}

func (l *sqliteLease) Release(ctx context.Context) error {
	if _, err := l.locker.db.ExecContext(ctx,
		`DELETE FROM schedule_locks WHERE lock_key = ? AND token = ?`, l.key, l.token); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
