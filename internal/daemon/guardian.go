package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// GuardianConfig holds guardian daemon configuration.
type GuardianConfig struct {
	CheckInterval     time.Duration // How often to check the supervisor
	HeartbeatInterval time.Duration // How often to update heartbeat
	RestartEvery      time.Duration // Sustained restart rate
	RestartBurst      int           // Restarts allowed back to back
}

// DefaultGuardianConfig returns default guardian configuration.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		CheckInterval:     30 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		RestartEvery:      10 * time.Second,
		RestartBurst:      3,
	}
}

// Guardian monitors the supervisor daemon and restarts it if killed.
// This is the simpler of the two daemons - its only job is to keep the
// supervisor alive.
type Guardian struct {
	config   GuardianConfig
	registry domain.DaemonRegistry
	keeper   *partnerKeeper
	logger   *zap.Logger
	daemon   domain.Daemon
}

// NewGuardian creates a new guardian daemon.
func NewGuardian(
	config GuardianConfig,
	registry domain.DaemonRegistry,
	spawner Spawner,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Guardian {
	limiter := rate.NewLimiter(rate.Every(config.RestartEvery), config.RestartBurst)
	return &Guardian{
		config:   config,
		registry: registry,
		keeper:   newPartnerKeeper(domain.RoleGuardian, registry, spawner, limiter, logger),
		daemon:   daemon,
		logger:   logger,
	}
}

// Run starts the guardian daemon loop.
// This blocks until context is canceled. A failed registration is retried
// on every heartbeat.
func (g *Guardian) Run(ctx context.Context) error {
	registered := register(g.registry, g.daemon, g.logger)

	g.logger.Info("guardian daemon started",
		zap.Int("pid", g.daemon.PID),
		zap.Bool("registered", registered))

	g.checkSupervisor()

	checkTicker := time.NewTicker(g.config.CheckInterval)
	heartbeatTicker := time.NewTicker(g.config.HeartbeatInterval)
	defer func() {
		checkTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("guardian daemon stopping")
			return ctx.Err()

		case <-checkTicker.C:
			g.checkSupervisor()

		case <-heartbeatTicker.C:
			if !registered {
				registered = register(g.registry, g.daemon, g.logger)
				continue
			}
			if err := g.registry.UpdateHeartbeat(domain.RoleGuardian); err != nil {
				g.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

func (g *Guardian) checkSupervisor() {
	guarded(g.logger, "supervisor", func() { g.keeper.check() })
}
