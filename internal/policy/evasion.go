package policy

import "strings"

// Defaults for the platform settings surface.
const DefaultSettingsID = "com.android.settings"

// DefaultSensitiveWindows are settings sub-screens that can switch zenguard off.
var DefaultSensitiveWindows = []string{"Accessibility", "AppInfo"}

// SettingsGuard detects attempts to open the screens that would disable
// zenguard or revoke its permissions.
type SettingsGuard struct {
	settingsID string
	sensitive  []string
}

// NewSettingsGuard creates a guard. Empty arguments select the defaults.
func NewSettingsGuard(settingsID string, sensitive []string) *SettingsGuard {
	if settingsID == "" {
		settingsID = DefaultSettingsID
	}
	if len(sensitive) == 0 {
		sensitive = DefaultSensitiveWindows
	}
	lowered := make([]string, 0, len(sensitive))
	for _, s := range sensitive {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}
	return &SettingsGuard{settingsID: settingsID, sensitive: lowered}
}

// SettingsID returns the identifier of the settings surface.
func (g *SettingsGuard) SettingsID() string {
	return g.settingsID
}

// IsSensitive reports whether the event opens a protected settings screen.
// Window classes are matched case-insensitively by substring.
func (g *SettingsGuard) IsSensitive(appID, windowClass string) bool {
	if appID != g.settingsID {
		return false
	}
	class := strings.ToLower(windowClass)
	for _, s := range g.sensitive {
		if strings.Contains(class, s) {
			return true
		}
	}
	return false
}
