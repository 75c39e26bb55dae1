// Package daemon implements the supervisor's watchdog, the guardian that
// keeps the supervisor alive and the boot-time cleanup hook.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// WatchdogConfig holds watchdog configuration.
type WatchdogConfig struct {
	Interval          time.Duration // How often to run the checks
	StaleLock         time.Duration // Intervention lock older than this is cleared
	HeartbeatInterval time.Duration // How often to update heartbeat
	RestartEvery      time.Duration // Sustained guardian restart rate
	RestartBurst      int           // Guardian restarts allowed back to back
}

// DefaultWatchdogConfig returns default watchdog configuration.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Interval:          30 * time.Second,
		StaleLock:         60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		RestartEvery:      10 * time.Second,
		RestartBurst:      3,
	}
}

// SessionCleaner deletes expired grants.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// LockReleaser clears an intervention lock that has been held too long.
type LockReleaser interface {
	ReleaseStaleLock(threshold time.Duration) bool
}

// WatchdogDeps are the collaborators of a Watchdog. Only Sessions and
// Notifier are required; a foreground supervisor runs without Registry,
// BootAgent and Spawner.
type WatchdogDeps struct {
	Sessions  SessionCleaner
	Lock      LockReleaser
	Events    domain.EventSourceMonitor
	Notifier  domain.Notifier
	Registry  domain.DaemonRegistry
	BootAgent domain.BootAgent
	ExecPath  string
	Spawner   Spawner
}

// Watchdog is the supervisor's periodic self-check.
// It expires grants and clears locks a crashed flow left behind.
// It warns when the event source stops delivering.
// It keeps the boot agent installed and the guardian daemon running.
type Watchdog struct {
	config WatchdogConfig
	deps   WatchdogDeps
	keeper *partnerKeeper
	logger *zap.Logger
	daemon domain.Daemon

	shieldDown bool
}

// NewWatchdog creates a new watchdog.
func NewWatchdog(config WatchdogConfig, deps WatchdogDeps, daemon domain.Daemon, logger *zap.Logger) *Watchdog {
	w := &Watchdog{
		config: config,
		deps:   deps,
		daemon: daemon,
		logger: logger,
	}
	if deps.Spawner != nil && deps.Registry != nil {
		limiter := rate.NewLimiter(rate.Every(config.RestartEvery), config.RestartBurst)
		w.keeper = newPartnerKeeper(domain.RoleSupervisor, deps.Registry, deps.Spawner, limiter, logger)
	}
	return w
}

// Run starts the watchdog loop.
// This blocks until context is canceled. A failed registration is retried
// on every heartbeat; the checks run either way.
func (w *Watchdog) Run(ctx context.Context) error {
	registry := w.deps.Registry
	registered := registry == nil || register(registry, w.daemon, w.logger)

	w.logger.Info("watchdog started",
		zap.Int("pid", w.daemon.PID),
		zap.Bool("registered", registered),
		zap.Duration("interval", w.config.Interval))

	w.tick(ctx)

	checkTicker := time.NewTicker(w.config.Interval)
	heartbeatTicker := time.NewTicker(w.config.HeartbeatInterval)
	defer func() {
		checkTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopping")
			return ctx.Err()

		case <-checkTicker.C:
			w.tick(ctx)

		case <-heartbeatTicker.C:
			if registry == nil {
				continue
			}
			if !registered {
				registered = register(registry, w.daemon, w.logger)
				continue
			}
			if err := registry.UpdateHeartbeat(domain.RoleSupervisor); err != nil {
				w.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// tick runs every check once. A failing check never stops the others.
func (w *Watchdog) tick(ctx context.Context) {
	guarded(w.logger, "expire sessions", func() { w.cleanupSessions(ctx) })
	guarded(w.logger, "event source", func() { w.checkEventSource(ctx) })
	guarded(w.logger, "stale lock", w.releaseStaleLock)
	guarded(w.logger, "boot agent", w.ensureBootAgent)
	if w.keeper != nil {
		guarded(w.logger, "guardian", func() { w.keeper.check() })
	}
}

func (w *Watchdog) cleanupSessions(ctx context.Context) {
	n, err := w.deps.Sessions.CleanupExpired(ctx)
	if err != nil {
		w.logger.Warn("failed to expire sessions", zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("expired sessions removed", zap.Int("count", n))
	}
}

// checkEventSource posts one alert per outage, when the source stops.
func (w *Watchdog) checkEventSource(ctx context.Context) {
	if w.deps.Events == nil {
		return
	}
	if w.deps.Events.Active() {
		if w.shieldDown {
			w.logger.Info("event source recovered")
		}
		w.shieldDown = false
		return
	}
	if w.shieldDown {
		return
	}

	w.logger.Warn("event source inactive, protection is down")
	if err := w.deps.Notifier.PostShieldDown(ctx); err != nil {
		w.logger.Error("failed to post shield-down notification", zap.Error(err))
		return
	}
	w.shieldDown = true
}

func (w *Watchdog) releaseStaleLock() {
	if w.deps.Lock == nil {
		return
	}
	w.deps.Lock.ReleaseStaleLock(w.config.StaleLock)
}

// ensureBootAgent restores the boot agent if it was deleted and rewrites
// it if its content no longer matches the installed binary.
func (w *Watchdog) ensureBootAgent() {
	agent := w.deps.BootAgent
	if agent == nil || w.deps.ExecPath == "" {
		return
	}

	if !agent.IsInstalled() {
		w.logger.Info("boot agent missing, restoring...")
		if err := agent.Install(w.deps.ExecPath); err != nil {
			w.logger.Error("failed to restore boot agent", zap.Error(err))
		} else {
			w.logger.Info("boot agent restored")
		}
	} else if agent.NeedsUpdate(w.deps.ExecPath) {
		w.logger.Info("boot agent outdated, updating...")
		if err := agent.Update(w.deps.ExecPath); err != nil {
			w.logger.Error("failed to update boot agent", zap.Error(err))
		} else {
			w.logger.Info("boot agent updated")
		}
	}
}
