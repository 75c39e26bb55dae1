package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// HistoryStore is the append-only grant log of a Store.
type HistoryStore struct {
	s *Store
}

// History returns the grant history store.
func (s *Store) History() *HistoryStore {
	return &HistoryStore{s: s}
}

// Append writes one grant record, assigning an ID when empty.
func (h *HistoryStore) Append(ctx context.Context, rec domain.GrantRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := h.s.db.ExecContext(ctx, `
		INSERT INTO grant_history (id, app_id, duration_minutes, reason, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AppID, rec.DurationMinutes, rec.Reason, string(rec.Kind), rec.CreatedAt.Unix())
	return domain.NewStorageError("append history", err)
}

// Recent returns up to limit records, newest first. A limit <= 0 returns
// the whole history.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]domain.GrantRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.s.db.QueryContext(ctx, `
		SELECT id, app_id, duration_minutes, reason, kind, created_at
		FROM grant_history ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, domain.NewStorageError("recent history", err)
	}
	defer rows.Close()

	var records []domain.GrantRecord
	for rows.Next() {
		var (
			rec       domain.GrantRecord
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.AppID, &rec.DurationMinutes, &rec.Reason, &kind, &createdAt); err != nil {
			return nil, domain.NewStorageError("recent history", err)
		}
		rec.Kind = domain.GrantKind(kind)
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	return records, domain.NewStorageError("recent history", rows.Err())
}

// CountSince counts grants created at or after since.
func (h *HistoryStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := h.s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grant_history WHERE created_at >= ?`, since.Unix()).Scan(&n)
	if err != nil {
		return 0, domain.NewStorageError("count history", err)
	}
	return n, nil
}

// GetSetting returns a stored preference, or domain.ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", domain.NewStorageError("get setting", err)
	}
	return value, nil
}

// SetSetting stores a preference.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return domain.NewStorageError("set setting", err)
}

var (
	_ domain.HistoryStore  = (*HistoryStore)(nil)
	_ domain.SettingsStore = (*Store)(nil)
)
