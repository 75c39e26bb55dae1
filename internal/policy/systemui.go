package policy

// DefaultSelfID is zenguard's own identifier on the device.
const DefaultSelfID = "com.zendroid.launcher"

// SystemUIPolicy ignores the status bar, notification shade and zenguard
// itself. Intercepting our own windows would stack overlays on overlays.
type SystemUIPolicy struct {
	selfID string
}

// NewSystemUIPolicy creates the system UI policy with the default self id.
func NewSystemUIPolicy() *SystemUIPolicy {
	return &SystemUIPolicy{selfID: DefaultSelfID}
}

// NewSystemUIPolicyWithSelf creates the policy for a custom self id (for testing).
func NewSystemUIPolicyWithSelf(selfID string) *SystemUIPolicy {
	return &SystemUIPolicy{selfID: selfID}
}

func (p *SystemUIPolicy) ID() string {
	return "systemui"
}

func (p *SystemUIPolicy) Name() string {
	return "System UI"
}

// Prefixes returns system surfaces that fire window changes constantly.
func (p *SystemUIPolicy) Prefixes() []string {
	return []string{
		"com.android.systemui",
		p.selfID,
	}
}

// Ensure SystemUIPolicy implements IgnorePolicy.
var _ IgnorePolicy = (*SystemUIPolicy)(nil)
