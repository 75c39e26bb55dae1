package policy

import "sort"

// Registry holds all ignore policies. It is built once at startup and only
// read afterwards, so lookups need no locking.
type Registry struct {
	policies map[string]IgnorePolicy
}

// NewRegistry creates a registry with all default policies.
func NewRegistry() *Registry {
	r := &Registry{
		policies: make(map[string]IgnorePolicy),
	}

	r.Register(NewSystemUIPolicy())
	r.Register(NewLauncherPolicy())

	return r
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
func NewRegistryWithPolicies(policies ...IgnorePolicy) *Registry {
	r := &Registry{
		policies: make(map[string]IgnorePolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// NewConfiguredRegistry creates the default registry for selfID plus any
// extra identifiers from the config file.
func NewConfiguredRegistry(selfID string, extra []string) *Registry {
	r := NewRegistryWithPolicies(NewSystemUIPolicyWithSelf(selfID), NewLauncherPolicy())
	if len(extra) > 0 {
		r.Register(NewStaticPolicy("config", "Configured", extra...))
	}
	return r
}

// Register adds a policy to the registry. Must not be called after the
// registry is shared with the engine.
func (r *Registry) Register(p IgnorePolicy) {
	r.policies[p.ID()] = p
}

// GetAll returns all registered policies sorted by ID.
func (r *Registry) GetAll() []IgnorePolicy {
	result := make([]IgnorePolicy, 0, len(r.policies))
	for _, p := range r.policies {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// IsIgnored reports whether appID belongs to any registered policy.
func (r *Registry) IsIgnored(appID string) bool {
	for _, p := range r.policies {
		if matchesPrefix(appID, p.Prefixes()) {
			return true
		}
	}
	return false
}
