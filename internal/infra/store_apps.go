package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// CategoryStore is the classifications table of a Store.
type CategoryStore struct {
	s *Store
}

// Categories returns the classification store.
func (s *Store) Categories() *CategoryStore {
	return &CategoryStore{s: s}
}

// Upsert writes label, class and flags. Usage counters survive.
func (c *CategoryStore) Upsert(ctx context.Context, app domain.AppClassification) error {
	_, err := c.s.db.ExecContext(ctx, `
		INSERT INTO apps (id, label, class, is_system, hidden)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			class = excluded.class,
			is_system = excluded.is_system,
			hidden = excluded.hidden`,
		app.ID, app.Label, app.Class.String(), boolInt(app.System), boolInt(app.Hidden),
	)
	if err != nil {
		return domain.NewStorageError("upsert app", err)
	}
	c.s.hub.publish(topicApps)
	return nil
}

// Get returns one app, or domain.ErrNotFound.
func (c *CategoryStore) Get(ctx context.Context, id string) (*domain.AppClassification, error) {
	row := c.s.db.QueryRowContext(ctx, `
		SELECT id, label, class, is_system, usage_count, last_used, hidden
		FROM apps WHERE id = ?`, id)

	app, err := scanApp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get app", err)
	}
	return app, nil
}

// SetClass changes one app's classification, creating the row if needed.
func (c *CategoryStore) SetClass(ctx context.Context, id string, class domain.Classification) error {
	_, err := c.s.db.ExecContext(ctx, `
		INSERT INTO apps (id, label, class) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET class = excluded.class`,
		id, id, class.String(),
	)
	if err != nil {
		return domain.NewStorageError("set class", err)
	}
	c.s.hub.publish(topicApps)
	return nil
}

// RecordUsage bumps the usage counter. Unknown apps are ignored.
// Usage does not affect decisions, so subscribers are not notified.
func (c *CategoryStore) RecordUsage(ctx context.Context, id string, at time.Time) error {
	_, err := c.s.db.ExecContext(ctx,
		`UPDATE apps SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		at.Unix(), id)
	return domain.NewStorageError("record usage", err)
}

// List returns every app ordered by id.
func (c *CategoryStore) List(ctx context.Context) ([]domain.AppClassification, error) {
	rows, err := c.s.db.QueryContext(ctx, `
		SELECT id, label, class, is_system, usage_count, last_used, hidden
		FROM apps ORDER BY id`)
	if err != nil {
		return nil, domain.NewStorageError("list apps", err)
	}
	defer rows.Close()

	var apps []domain.AppClassification
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, domain.NewStorageError("list apps", err)
		}
		apps = append(apps, *app)
	}
	return apps, domain.NewStorageError("list apps", rows.Err())
}

// Subscribe emits the full app list now and after every change.
func (c *CategoryStore) Subscribe(ctx context.Context) (<-chan []domain.AppClassification, error) {
	out := make(chan []domain.AppClassification, 1)
	go watch(ctx, c.s, topicApps, c.List, out)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(row rowScanner) (*domain.AppClassification, error) {
	var (
		app            domain.AppClassification
		class          string
		system, hidden int
		lastUsed       int64
	)
	if err := row.Scan(&app.ID, &app.Label, &class, &system, &app.UsageCount, &lastUsed, &hidden); err != nil {
		return nil, err
	}
	app.Class = domain.ParseClassification(class)
	app.System = system != 0
	app.Hidden = hidden != 0
	app.LastUsed = timeOrZero(lastUsed)
	return &app, nil
}

var _ domain.CategoryStore = (*CategoryStore)(nil)
