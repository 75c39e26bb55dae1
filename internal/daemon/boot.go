package daemon

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// SessionResetter deletes every grant.
type SessionResetter interface {
	ClearAll(ctx context.Context) error
}

// LockForcer clears the intervention lock unconditionally.
type LockForcer interface {
	ForceRelease()
}

// BootHook runs once per host boot. Grants are measured on the since-boot
// clock, so after a reboot every stored session is meaningless and is
// wiped, along with any lock state.
type BootHook struct {
	settings domain.SettingsStore
	sessions SessionResetter
	lock     LockForcer
	bootID   func() int64
	logger   *zap.Logger
}

// NewBootHook creates a boot hook. lock may be nil when the hook runs
// outside the supervisor.
func NewBootHook(settings domain.SettingsStore, sessions SessionResetter, lock LockForcer, bootID func() int64, logger *zap.Logger) *BootHook {
	return &BootHook{
		settings: settings,
		sessions: sessions,
		lock:     lock,
		bootID:   bootID,
		logger:   logger,
	}
}

// Run performs the cleanup if this boot has not been seen yet and reports
// whether it did.
func (h *BootHook) Run(ctx context.Context) (bool, error) {
	current := strconv.FormatInt(h.bootID(), 10)

	last, err := h.settings.GetSetting(ctx, domain.SettingLastBootID)
	switch {
	case err == nil && last == current:
		return false, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		h.logger.Warn("failed to read last boot id, cleaning up anyway", zap.Error(err))
	}

	if err := h.sessions.ClearAll(ctx); err != nil {
		return false, fmt.Errorf("failed to clear sessions: %w", err)
	}
	if h.lock != nil {
		h.lock.ForceRelease()
	}
	if err := h.settings.SetSetting(ctx, domain.SettingLastBootID, current); err != nil {
		return true, fmt.Errorf("failed to record boot id: %w", err)
	}

	h.logger.Info("boot cleanup done",
		zap.String("boot_id", current),
		zap.String("previous", last))
	return true, nil
}
