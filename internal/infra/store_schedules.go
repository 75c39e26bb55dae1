package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// ScheduleStore is the focus profile table of a Store.
type ScheduleStore struct {
	s *Store
}

// Schedules returns the schedule store.
func (s *Store) Schedules() *ScheduleStore {
	return &ScheduleStore{s: s}
}

// Save inserts a new schedule (ID 0) or updates an existing one and
// returns its ID.
func (ss *ScheduleStore) Save(ctx context.Context, sch domain.Schedule) (int64, error) {
	days := domain.EncodeDays(sch.Days)

	if sch.ID == 0 {
		res, err := ss.s.db.ExecContext(ctx, `
			INSERT INTO schedules (name, start_hour, start_minute, end_hour, end_minute, enabled, days)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sch.Name, sch.StartHour, sch.StartMinute, sch.EndHour, sch.EndMinute, boolInt(sch.Enabled), days)
		if err != nil {
			return 0, domain.NewStorageError("insert schedule", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, domain.NewStorageError("insert schedule", err)
		}
		ss.s.hub.publish(topicSchedules)
		return id, nil
	}

	res, err := ss.s.db.ExecContext(ctx, `
		UPDATE schedules SET name = ?, start_hour = ?, start_minute = ?, end_hour = ?,
			end_minute = ?, enabled = ?, days = ?
		WHERE id = ?`,
		sch.Name, sch.StartHour, sch.StartMinute, sch.EndHour, sch.EndMinute, boolInt(sch.Enabled), days, sch.ID)
	if err != nil {
		return 0, domain.NewStorageError("update schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("schedule %d: %w", sch.ID, domain.ErrNotFound)
	}
	ss.s.hub.publish(topicSchedules)
	return sch.ID, nil
}

// Get returns one schedule, or domain.ErrNotFound.
func (ss *ScheduleStore) Get(ctx context.Context, id int64) (*domain.Schedule, error) {
	row := ss.s.db.QueryRowContext(ctx, `
		SELECT id, name, start_hour, start_minute, end_hour, end_minute, enabled, days
		FROM schedules WHERE id = ?`, id)

	sch, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get schedule", err)
	}
	return sch, nil
}

// Delete removes a schedule.
func (ss *ScheduleStore) Delete(ctx context.Context, id int64) error {
	res, err := ss.s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return domain.NewStorageError("delete schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, domain.ErrNotFound)
	}
	ss.s.hub.publish(topicSchedules)
	return nil
}

// List returns all schedules ordered by ID.
func (ss *ScheduleStore) List(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := ss.s.db.QueryContext(ctx, `
		SELECT id, name, start_hour, start_minute, end_hour, end_minute, enabled, days
		FROM schedules ORDER BY id`)
	if err != nil {
		return nil, domain.NewStorageError("list schedules", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, domain.NewStorageError("list schedules", err)
		}
		schedules = append(schedules, *sch)
	}
	return schedules, domain.NewStorageError("list schedules", rows.Err())
}

// Subscribe emits all schedules now and after every change.
func (ss *ScheduleStore) Subscribe(ctx context.Context) (<-chan []domain.Schedule, error) {
	out := make(chan []domain.Schedule, 1)
	go watch(ctx, ss.s, topicSchedules, ss.List, out)
	return out, nil
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var (
		sch     domain.Schedule
		enabled int
		days    string
	)
	err := row.Scan(&sch.ID, &sch.Name, &sch.StartHour, &sch.StartMinute,
		&sch.EndHour, &sch.EndMinute, &enabled, &days)
	if err != nil {
		return nil, err
	}
	sch.Enabled = enabled != 0
	sch.Days = domain.ParseDays(days)
	return &sch, nil
}

var _ domain.ScheduleStore = (*ScheduleStore)(nil)
