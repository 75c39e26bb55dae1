package policy

// LauncherPolicy ignores home screens. Returning home is never a launch.
type LauncherPolicy struct{}

// NewLauncherPolicy creates the launcher policy.
func NewLauncherPolicy() *LauncherPolicy {
	return &LauncherPolicy{}
}

func (p *LauncherPolicy) ID() string {
	return "launchers"
}

func (p *LauncherPolicy) Name() string {
	return "Home screen launchers"
}

// Prefixes returns known stock and OEM launchers.
// "com.android.launcher" also covers launcher2 and launcher3.
func (p *LauncherPolicy) Prefixes() []string {
	return []string{
		"com.android.launcher",
		"com.google.android.apps.nexuslauncher",
		"com.sec.android.app.launcher",
		"com.miui.home",
		"com.oppo.launcher",
	}
}

// Ensure LauncherPolicy implements IgnorePolicy.
var _ IgnorePolicy = (*LauncherPolicy)(nil)
