// Package usecase contains zenguard's decision logic: the intervention
// engine, the flows it hands to the presentation layer and the session
// service behind grants.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
	"github.com/eliteGoblin/focusd/zenguard/internal/policy"
)

// SoftGrantReason tags grants produced by the soft flow.
const SoftGrantReason = "Yellow App Unlock"

// EngineConfig tunes the decision engine.
type EngineConfig struct {
	Debounce         time.Duration        // same-app events closer than this are dropped
	SoftHold         time.Duration        // hold target of the soft flow
	SoftGrantMinutes int                  // grant length of the soft flow
	DefaultLevel     domain.FrictionLevel // used until a level is stored
	Warmup           time.Duration        // Start gives up waiting for first snapshots after this
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Debounce:         200 * time.Millisecond,
		SoftHold:         3 * time.Second,
		SoftGrantMinutes: 15,
		DefaultLevel:     domain.DefaultFrictionLevel,
		Warmup:           2 * time.Second,
	}
}

// IgnoreList decides which identifiers are never intercepted.
type IgnoreList interface {
	IsIgnored(appID string) bool
}

// ChallengePicker chooses the friction for a full flow.
type ChallengePicker interface {
	Pick(level domain.FrictionLevel) domain.ChallengeSpec
}

// EngineDeps are the collaborators of an Engine.
type EngineDeps struct {
	Categories domain.CategoryStore
	Schedules  domain.ScheduleStore
	Settings   domain.SettingsStore
	Sessions   *SessionService
	Ignore     IgnoreList
	Guard      *policy.SettingsGuard
	Friction   ChallengePicker
	Presenter  domain.Presenter
	Overlay    domain.OverlayChecker
	Notifier   domain.Notifier
	Clock      domain.Clock
}

type debounceMark struct {
	appID string
	at    time.Duration
}

// lockToken is one acquisition of the intervention lock. Releasing with a
// stale token is a no-op, so a flow that outlives a forced clear cannot
// free a lock some later flow now holds.
type lockToken struct {
	target string
	at     time.Duration
}

// Engine is the intervention decision engine. It is safe for concurrent use:
// the debounce mark and the lock are single atomic words and the caches are
// swapped whole, so evaluations never block each other.
type Engine struct {
	cfg    EngineConfig
	deps   EngineDeps
	logger *zap.Logger

	last      atomic.Pointer[debounceMark]
	lock      atomic.Pointer[lockToken]
	classes   atomic.Pointer[map[string]domain.Classification]
	schedules atomic.Pointer[[]domain.Schedule]

	// flowCtx is handed to presenters; it ends when Start's ctx does.
	flowCtx atomic.Pointer[context.Context]
	wg      sync.WaitGroup
}

// NewEngine creates an engine. Call Start before feeding it events so the
// caches are warm.
func NewEngine(cfg EngineConfig, deps EngineDeps, logger *zap.Logger) *Engine {
	if deps.Guard == nil {
		deps.Guard = policy.NewSettingsGuard("", nil)
	}
	if cfg.Warmup <= 0 {
		cfg.Warmup = DefaultEngineConfig().Warmup
	}
	e := &Engine{cfg: cfg, deps: deps, logger: logger}

	empty := map[string]domain.Classification{}
	e.classes.Store(&empty)
	var none []domain.Schedule
	e.schedules.Store(&none)
	bg := context.Background()
	e.flowCtx.Store(&bg)
	return e
}

// Start registers the cache subscriptions and waits for the first snapshot
// of each, at most cfg.Warmup. A store that cannot load in time leaves the
// cache empty (everything ALLOW) until its snapshot arrives. The caches keep
// updating until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.flowCtx.Store(&ctx)

	apps, err := e.deps.Categories.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to classifications: %w", err)
	}
	schedules, err := e.deps.Schedules.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to schedules: %w", err)
	}

	appsReady := make(chan struct{})
	schedulesReady := make(chan struct{})

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		var once sync.Once
		for snap := range apps {
			e.setClasses(snap)
			once.Do(func() { close(appsReady) })
		}
	}()
	go func() {
		defer e.wg.Done()
		var once sync.Once
		for snap := range schedules {
			e.setSchedules(snap)
			once.Do(func() { close(schedulesReady) })
		}
	}()

	warmup := time.NewTimer(e.cfg.Warmup)
	defer warmup.Stop()
	for _, ready := range []struct {
		name string
		ch   chan struct{}
	}{{"classifications", appsReady}, {"schedules", schedulesReady}} {
		select {
		case <-ready.ch:
		case <-warmup.C:
			e.logger.Warn("starting with cold cache", zap.String("cache", ready.name))
			// Timer fired; later caches get no extra wait.
			warmup.Reset(0)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.logger.Info("engine started",
		zap.Int("classified_apps", len(*e.classes.Load())),
		zap.Int("schedules", len(*e.schedules.Load())))
	return nil
}

// Wait blocks until background work (cache updates, presenters, usage
// writes) has finished. Cancel Start's ctx first.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) setClasses(apps []domain.AppClassification) {
	m := make(map[string]domain.Classification, len(apps))
	for _, a := range apps {
		m[a.ID] = a.Class
	}
	e.classes.Store(&m)
}

func (e *Engine) setSchedules(s []domain.Schedule) {
	e.schedules.Store(&s)
}

// Evaluate decides what to do with one foreground-change event. It never
// panics and never blocks on the user; flows run on their own goroutine.
func (e *Engine) Evaluate(ctx context.Context, appID, windowClass string) (outcome domain.Outcome) {
	var tok *lockToken
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panicked",
				zap.String("app", appID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			e.release(tok)
			outcome = domain.OutcomeFailed
		}
	}()

	if e.debounced(appID) {
		return domain.OutcomeDebounced
	}
	if e.deps.Ignore.IsIgnored(appID) {
		return domain.OutcomeIgnored
	}
	if !e.ProtectionEnabled(ctx) {
		return domain.OutcomeAllowed
	}

	if e.deps.Guard.IsSensitive(appID, windowClass) {
		var ok bool
		if tok, ok = e.tryLock(appID); !ok {
			return domain.OutcomeLockBusy
		}
		e.logger.Warn("protected settings screen opened", zap.String("window", windowClass))
		return e.dispatch(ctx, tok, domain.FlowHard, appID, domain.OutcomeSettingsGuarded)
	}

	if e.LockHeld() {
		return domain.OutcomeLockBusy
	}

	class, known := e.classOf(appID)
	class = policy.Escalate(class, policy.AnyActive(*e.schedules.Load(), e.deps.Clock.Now()))

	switch class {
	case domain.ClassSoft:
		var ok bool
		if tok, ok = e.tryLock(appID); !ok {
			return domain.OutcomeLockBusy
		}
		return e.dispatch(ctx, tok, domain.FlowSoft, appID, domain.OutcomeSoftDispatched)

	case domain.ClassHard:
		granted, err := e.deps.Sessions.HasActive(ctx, appID)
		if err != nil {
			e.logger.Error("session lookup failed, allowing", zap.String("app", appID), zap.Error(err))
			return domain.OutcomeFailed
		}
		if granted {
			e.recordUsage(appID)
			return domain.OutcomeAllowedByGrant
		}
		var ok bool
		if tok, ok = e.tryLock(appID); !ok {
			return domain.OutcomeLockBusy
		}
		return e.dispatch(ctx, tok, domain.FlowHard, appID, domain.OutcomeHardDispatched)

	default:
		if known {
			e.recordUsage(appID)
		}
		return domain.OutcomeAllowed
	}
}

// debounced reports whether appID repeats the previous event too quickly.
// Dropped events do not move the mark.
func (e *Engine) debounced(appID string) bool {
	now := e.deps.Clock.Elapsed()
	next := &debounceMark{appID: appID, at: now}
	for {
		prev := e.last.Load()
		if prev != nil && prev.appID == appID && now-prev.at < e.cfg.Debounce {
			return true
		}
		if e.last.CompareAndSwap(prev, next) {
			return false
		}
	}
}

func (e *Engine) classOf(appID string) (domain.Classification, bool) {
	class, ok := (*e.classes.Load())[appID]
	if !ok {
		return domain.ClassAllow, false
	}
	return class, true
}

// dispatch hands a flow to the presenter, or falls back to a notification
// when nothing can be drawn. Either way the event is never silently allowed.
func (e *Engine) dispatch(ctx context.Context, tok *lockToken, flowType domain.FlowType, target string, outcome domain.Outcome) domain.Outcome {
	if !e.deps.Overlay.CanDrawOverlays() {
		e.release(tok)
		e.logger.Warn("cannot draw intervention, posting notification", zap.String("app", target))
		postCtx := context.WithoutCancel(ctx)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.deps.Notifier.PostRestricted(postCtx, target); err != nil {
				e.logger.Error("failed to post restricted notification", zap.Error(err))
			}
		}()
		return domain.OutcomeFallback
	}

	flow := newInterventionFlow(e, tok, domain.DispatchRequest{Flow: flowType, Target: target})
	e.logger.Info("intervention dispatched",
		zap.String("app", target),
		zap.String("flow", string(flowType)))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer flow.Cancel() // no-op once the flow completed
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("presenter panicked", zap.String("app", target), zap.Any("panic", r))
			}
		}()
		e.deps.Presenter.Present(*e.flowCtx.Load(), flow)
	}()
	return outcome
}

func (e *Engine) recordUsage(appID string) {
	at := e.deps.Clock.Now()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.deps.Categories.RecordUsage(context.Background(), appID, at); err != nil {
			e.logger.Debug("failed to record usage", zap.String("app", appID), zap.Error(err))
		}
	}()
}

func (e *Engine) tryLock(target string) (*lockToken, bool) {
	tok := &lockToken{target: target, at: e.deps.Clock.Elapsed()}
	if e.lock.CompareAndSwap(nil, tok) {
		return tok, true
	}
	return nil, false
}

// release frees the lock if tok still holds it. Safe to call repeatedly
// and with a nil token.
func (e *Engine) release(tok *lockToken) {
	if tok == nil {
		return
	}
	e.lock.CompareAndSwap(tok, nil)
}

// LockHeld reports whether an intervention is in progress.
func (e *Engine) LockHeld() bool {
	return e.lock.Load() != nil
}

// ReleaseStaleLock clears the lock if it has been held longer than
// threshold, and reports whether it did. Only the lock that was observed
// stale is cleared; a fresh acquisition in between survives.
func (e *Engine) ReleaseStaleLock(threshold time.Duration) bool {
	tok := e.lock.Load()
	if tok == nil || e.deps.Clock.Elapsed()-tok.at <= threshold {
		return false
	}
	if !e.lock.CompareAndSwap(tok, nil) {
		return false
	}
	e.logger.Warn("cleared stale intervention lock",
		zap.String("app", tok.target),
		zap.Duration("held", e.deps.Clock.Elapsed()-tok.at))
	return true
}

// ForceRelease clears the lock unconditionally (boot cleanup).
func (e *Engine) ForceRelease() {
	e.lock.Store(nil)
}

// ProtectionEnabled reports the master switch. Missing or unreadable
// values count as enabled.
func (e *Engine) ProtectionEnabled(ctx context.Context) bool {
	v, err := e.deps.Settings.GetSetting(ctx, domain.SettingProtectionEnabled)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("failed to read protection setting", zap.Error(err))
		}
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

// SetProtection turns interception on or off.
func (e *Engine) SetProtection(ctx context.Context, enabled bool) error {
	return e.deps.Settings.SetSetting(ctx, domain.SettingProtectionEnabled, strconv.FormatBool(enabled))
}

// FrictionLevel returns the stored level, falling back to the configured default.
func (e *Engine) FrictionLevel(ctx context.Context) domain.FrictionLevel {
	v, err := e.deps.Settings.GetSetting(ctx, domain.SettingFrictionLevel)
	if err != nil {
		return e.cfg.DefaultLevel
	}
	return domain.ParseFrictionLevel(v)
}

// SetFrictionLevel stores the level used by future flows.
func (e *Engine) SetFrictionLevel(ctx context.Context, level domain.FrictionLevel) error {
	return e.deps.Settings.SetSetting(ctx, domain.SettingFrictionLevel, string(level))
}
