package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// SessionStore is the sessions table of a Store. Elapsed values are stored
// in milliseconds of monotonic time.
type SessionStore struct {
	s *Store
}

// Sessions returns the session store.
func (s *Store) Sessions() *SessionStore {
	return &SessionStore{s: s}
}

// Put writes the session for its app, replacing any previous one.
func (ss *SessionStore) Put(ctx context.Context, sess domain.Session) error {
	_, err := ss.s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(app_id, start_elapsed_ms, duration_minutes, expiry_elapsed_ms, reason, created_at, boot_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.AppID,
		sess.StartElapsed.Milliseconds(),
		sess.DurationMinutes,
		sess.ExpiryElapsed.Milliseconds(),
		sess.Reason,
		unixOrZero(sess.CreatedAt),
		sess.BootID,
	)
	return domain.NewStorageError("put session", err)
}

// Get returns the session for appID, or domain.ErrNotFound.
func (ss *SessionStore) Get(ctx context.Context, appID string) (*domain.Session, error) {
	row := ss.s.db.QueryRowContext(ctx, `
		SELECT app_id, start_elapsed_ms, duration_minutes, expiry_elapsed_ms, reason, created_at, boot_id
		FROM sessions WHERE app_id = ?`, appID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", appID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get session", err)
	}
	return sess, nil
}

// Delete removes the session for appID. Missing sessions are not an error.
func (ss *SessionStore) Delete(ctx context.Context, appID string) error {
	_, err := ss.s.db.ExecContext(ctx, `DELETE FROM sessions WHERE app_id = ?`, appID)
	return domain.NewStorageError("delete session", err)
}

// DeleteExpired removes sessions whose expiry is before now.
func (ss *SessionStore) DeleteExpired(ctx context.Context, now time.Duration) (int, error) {
	res, err := ss.s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expiry_elapsed_ms < ?`, now.Milliseconds())
	if err != nil {
		return 0, domain.NewStorageError("delete expired sessions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteAll removes every session.
func (ss *SessionStore) DeleteAll(ctx context.Context) error {
	_, err := ss.s.db.ExecContext(ctx, `DELETE FROM sessions`)
	return domain.NewStorageError("delete all sessions", err)
}

// List returns all sessions ordered by expiry.
func (ss *SessionStore) List(ctx context.Context) ([]domain.Session, error) {
	rows, err := ss.s.db.QueryContext(ctx, `
		SELECT app_id, start_elapsed_ms, duration_minutes, expiry_elapsed_ms, reason, created_at, boot_id
		FROM sessions ORDER BY expiry_elapsed_ms`)
	if err != nil {
		return nil, domain.NewStorageError("list sessions", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, domain.NewStorageError("list sessions", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, domain.NewStorageError("list sessions", rows.Err())
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess           domain.Session
		startMs, expMs int64
		createdAt      int64
	)
	if err := row.Scan(&sess.AppID, &startMs, &sess.DurationMinutes, &expMs, &sess.Reason, &createdAt, &sess.BootID); err != nil {
		return nil, err
	}
	sess.StartElapsed = time.Duration(startMs) * time.Millisecond
	sess.ExpiryElapsed = time.Duration(expMs) * time.Millisecond
	sess.CreatedAt = timeOrZero(createdAt)
	return &sess, nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
