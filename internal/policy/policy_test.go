package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IsIgnored(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		appID   string
		ignored bool
	}{
		{"com.android.systemui", true},
		{"com.android.systemui.recents", true},
		{DefaultSelfID, true},
		{"com.android.launcher3", true},
		{"com.google.android.apps.nexuslauncher", true},
		{"com.miui.home", true},
		{"com.example.social", false},
		{"com.android.settings", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.appID, func(t *testing.T) {
			assert.Equal(t, tt.ignored, r.IsIgnored(tt.appID))
		})
	}
}

func policyIDs(r *Registry) []string {
	var ids []string
	for _, p := range r.GetAll() {
		ids = append(ids, p.ID())
	}
	return ids
}

func TestRegistry_GetAllSorted(t *testing.T) {
	r := NewRegistry()

	all := r.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, []string{"launchers", "systemui"}, policyIDs(r))
	assert.Equal(t, "System UI", all[1].Name())
}

func TestNewConfiguredRegistry(t *testing.T) {
	r := NewConfiguredRegistry("org.custom.self", []string{"com.vendor.kiosk"})

	assert.True(t, r.IsIgnored("org.custom.self"))
	assert.False(t, r.IsIgnored(DefaultSelfID))
	assert.True(t, r.IsIgnored("com.vendor.kiosk.main"))
	assert.Equal(t, []string{"config", "launchers", "systemui"}, policyIDs(r))
}

func TestNewConfiguredRegistry_NoExtras(t *testing.T) {
	r := NewConfiguredRegistry(DefaultSelfID, nil)

	assert.NotContains(t, policyIDs(r), "config")
}

func TestEmptyPrefixNeverMatches(t *testing.T) {
	r := NewRegistryWithPolicies(NewSystemUIPolicyWithSelf(""))

	assert.False(t, r.IsIgnored("com.example.social"))
	assert.True(t, r.IsIgnored("com.android.systemui"))
}

func TestSettingsGuard(t *testing.T) {
	g := NewSettingsGuard("", nil)

	assert.Equal(t, DefaultSettingsID, g.SettingsID())
	assert.True(t, g.IsSensitive("com.android.settings", "com.android.settings.AccessibilitySettings"))
	assert.True(t, g.IsSensitive("com.android.settings", "SubSettings$APPINFOActivity"))
	assert.False(t, g.IsSensitive("com.android.settings", "WifiSettings"))
	assert.False(t, g.IsSensitive("com.example.social", "AccessibilityHelper"))
}

func TestSettingsGuard_CustomKeywords(t *testing.T) {
	g := NewSettingsGuard("com.vendor.settings", []string{" DeviceAdmin ", ""})

	assert.True(t, g.IsSensitive("com.vendor.settings", "deviceadminsettings"))
	assert.False(t, g.IsSensitive("com.vendor.settings", "Accessibility"))
}
