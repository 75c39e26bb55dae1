// Package infra implements zenguard's infrastructure: the encrypted store,
// clocks, processes, notifications, event sources and the boot agent.
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents how zenguard was installed.
type ExecMode string

const (
	// ExecModeUser runs as the logged-in user with a LaunchAgent.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with a LaunchDaemon.
	ExecModeSystem ExecMode = "system"
)

// LaunchdLabel is the plist label of the boot agent.
const LaunchdLabel = "com.focusd.zenguard"

// ExecModeConfig holds the mode-dependent install locations.
type ExecModeConfig struct {
	Mode      ExecMode
	PlistDir  string
	PlistPath string
	IsRoot    bool
}

// DetectExecMode picks locations from the effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:      ExecModeSystem,
			PlistDir:  "/Library/LaunchDaemons",
			PlistPath: filepath.Join("/Library/LaunchDaemons", LaunchdLabel+".plist"),
			IsRoot:    true,
		}
	}

	dir := filepath.Join(RealUserHome(), "Library", "LaunchAgents")
	return &ExecModeConfig{
		Mode:      ExecModeUser,
		PlistDir:  dir,
		PlistPath: filepath.Join(dir, LaunchdLabel+".plist"),
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (LaunchDaemon, root)"
	case ExecModeUser:
		return "user (LaunchAgent, non-root)"
	default:
		return "unknown"
	}
}

// RealUserHome returns the invoking user's home, even under sudo.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
