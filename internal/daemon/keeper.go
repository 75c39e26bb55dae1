package daemon

import (
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
	"github.com/eliteGoblin/focusd/zenguard/internal/infra"
)

// partnerKeeper restarts the partner daemon when it dies. Restarts are rate
// limited so a partner that crashes on startup cannot fork-bomb the host.
type partnerKeeper struct {
	role     domain.DaemonRole
	registry domain.DaemonRegistry
	spawner  Spawner
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func newPartnerKeeper(role domain.DaemonRole, registry domain.DaemonRegistry, spawner Spawner, limiter *rate.Limiter, logger *zap.Logger) *partnerKeeper {
	return &partnerKeeper{
		role:     role,
		registry: registry,
		spawner:  spawner,
		limiter:  limiter,
		logger:   logger,
	}
}

// check restarts the partner if it is not running and reports whether a
// restart was attempted.
func (k *partnerKeeper) check() bool {
	partner := infra.PartnerRole(k.role)

	alive, err := k.registry.IsPartnerAlive(k.role)
	if err != nil {
		k.logger.Warn("failed to check partner", zap.String("partner", string(partner)), zap.Error(err))
		return false
	}
	if alive {
		return false
	}

	if !k.limiter.Allow() {
		k.logger.Warn("partner restart rate limited", zap.String("partner", string(partner)))
		return false
	}

	k.logger.Info("partner not running, restarting...", zap.String("partner", string(partner)))
	if err := k.spawner.Start(partner); err != nil {
		k.logger.Error("failed to restart partner", zap.String("partner", string(partner)), zap.Error(err))
	} else {
		k.logger.Info("partner restarted", zap.String("partner", string(partner)))
	}
	return true
}

// guarded runs fn, logging a panic instead of letting it end the daemon.
func guarded(logger *zap.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("daemon check panicked",
				zap.String("check", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

// register records d in the registry. A failure is logged and reported so
// the caller can try again on its next heartbeat.
func register(registry domain.DaemonRegistry, d domain.Daemon, logger *zap.Logger) bool {
	if err := registry.Register(d); err != nil {
		logger.Error("failed to register daemon", zap.String("role", string(d.Role)), zap.Error(err))
		return false
	}
	return true
}
