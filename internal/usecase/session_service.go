package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

const (
	// HistoryLimit caps the grant history shown to the user.
	HistoryLimit = 100

	// TopReasonCount is how many reasons the analytics report.
	TopReasonCount = 5
)

// SessionService owns grant lifecycle: creation, extension, expiry and the
// history and analytics derived from it. All expiry math uses the monotonic
// clock; wall time is only recorded for analytics.
type SessionService struct {
	sessions domain.SessionStore
	history  domain.HistoryStore
	clock    domain.Clock
	logger   *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(sessions domain.SessionStore, history domain.HistoryStore, clock domain.Clock, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		history:  history,
		clock:    clock,
		logger:   logger,
	}
}

// HasActive reports whether appID holds an unexpired grant. A session
// recorded under another boot is treated as absent, since its monotonic
// timestamps mean nothing after a reboot.
func (s *SessionService) HasActive(ctx context.Context, appID string) (bool, error) {
	sess, err := s.sessions.Get(ctx, appID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sess.BootID != 0 && sess.BootID != s.clock.BootID() {
		return false, nil
	}
	return sess.IsActive(s.clock.Elapsed()), nil
}

// Grant creates the session for appID, replacing any previous one, and
// appends it to history. A history failure does not undo the grant.
func (s *SessionService) Grant(ctx context.Context, appID string, minutes int, reason string, kind domain.GrantKind) (domain.Session, error) {
	if minutes <= 0 {
		return domain.Session{}, fmt.Errorf("grant %d minutes: %w", minutes, domain.ErrInvalidDuration)
	}

	now := s.clock.Elapsed()
	created := s.clock.Now()
	sess := domain.Session{
		AppID:           appID,
		StartElapsed:    now,
		DurationMinutes: minutes,
		ExpiryElapsed:   now + time.Duration(minutes)*time.Minute,
		Reason:          reason,
		CreatedAt:       created,
		BootID:          s.clock.BootID(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to save grant for %s: %w", appID, err)
	}

	rec := domain.GrantRecord{
		AppID:           appID,
		DurationMinutes: minutes,
		Reason:          reason,
		Kind:            kind,
		CreatedAt:       created,
	}
	if err := s.history.Append(ctx, rec); err != nil {
		s.logger.Warn("failed to record grant history", zap.String("app", appID), zap.Error(err))
	}

	s.logger.Info("session granted",
		zap.String("app", appID),
		zap.Int("minutes", minutes),
		zap.String("kind", string(kind)))
	return sess, nil
}

// Extend adds minutes to an existing session. Both duration and expiry grow
// by exactly that amount; nothing is recomputed from the current time.
func (s *SessionService) Extend(ctx context.Context, appID string, minutes int) (domain.Session, error) {
	if minutes <= 0 {
		return domain.Session{}, fmt.Errorf("extend by %d minutes: %w", minutes, domain.ErrInvalidDuration)
	}

	sess, err := s.sessions.Get(ctx, appID)
	if err != nil {
		return domain.Session{}, err
	}

	sess.DurationMinutes += minutes
	sess.ExpiryElapsed += time.Duration(minutes) * time.Minute
	if err := s.sessions.Put(ctx, *sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to extend session for %s: %w", appID, err)
	}

	s.logger.Info("session extended", zap.String("app", appID), zap.Int("minutes", minutes))
	return *sess, nil
}

// Revoke ends appID's session early.
func (s *SessionService) Revoke(ctx context.Context, appID string) error {
	return s.sessions.Delete(ctx, appID)
}

// CleanupExpired deletes sessions whose expiry has passed.
func (s *SessionService) CleanupExpired(ctx context.Context) (int, error) {
	return s.sessions.DeleteExpired(ctx, s.clock.Elapsed())
}

// ClearAll deletes every session.
func (s *SessionService) ClearAll(ctx context.Context) error {
	return s.sessions.DeleteAll(ctx)
}

// Active lists sessions still valid now.
func (s *SessionService) Active(ctx context.Context) ([]domain.Session, error) {
	all, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Elapsed()
	boot := s.clock.BootID()

	active := make([]domain.Session, 0, len(all))
	for _, sess := range all {
		if sess.BootID != 0 && sess.BootID != boot {
			continue
		}
		if sess.IsActive(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Remaining returns how long sess has left right now, zero once expired.
func (s *SessionService) Remaining(sess domain.Session) time.Duration {
	return sess.Remaining(s.clock.Elapsed())
}

// TodayCount counts grants created since local midnight. It uses wall
// clock history, so it survives reboots.
func (s *SessionService) TodayCount(ctx context.Context) (int, error) {
	now := s.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.history.CountSince(ctx, midnight)
}

// History returns the most recent grants, newest first.
func (s *SessionService) History(ctx context.Context) ([]domain.GrantRecord, error) {
	return s.history.Recent(ctx, HistoryLimit)
}

// Analytics summarizes all grant history: the most common reasons and the
// total minutes granted.
func (s *SessionService) Analytics(ctx context.Context) (domain.Analytics, error) {
	records, err := s.history.Recent(ctx, 0)
	if err != nil {
		return domain.Analytics{}, err
	}

	var total int
	counts := make(map[string]int)
	for _, rec := range records {
		total += rec.DurationMinutes
		reason := strings.TrimSpace(rec.Reason)
		if reason == "" {
			continue
		}
		counts[reason]++
	}

	top := make([]domain.ReasonCount, 0, len(counts))
	for reason, n := range counts {
		top = append(top, domain.ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Reason < top[j].Reason
	})
	if len(top) > TopReasonCount {
		top = top[:TopReasonCount]
	}

	return domain.Analytics{TopReasons: top, TotalMindfulMinutes: total}, nil
}
