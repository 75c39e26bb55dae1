// Package policy holds the rules the decision engine consults that are not
// stored per app: which identifiers are never intercepted, when focus
// schedules are active, and which settings screens count as tampering.
package policy

import "strings"

// IgnorePolicy is a named group of identifiers the engine must never
// intercept (system UI, launchers, zenguard itself).
type IgnorePolicy interface {
	// ID returns a unique identifier (e.g., "systemui", "launchers").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// Prefixes returns identifier prefixes. An event whose app identifier
	// starts with any prefix is ignored.
	Prefixes() []string
}

// StaticPolicy is an IgnorePolicy over a fixed list.
type StaticPolicy struct {
	id       string
	name     string
	prefixes []string
}

// NewStaticPolicy creates a policy from an explicit prefix list (config extras, tests).
func NewStaticPolicy(id, name string, prefixes ...string) *StaticPolicy {
	return &StaticPolicy{id: id, name: name, prefixes: prefixes}
}

func (p *StaticPolicy) ID() string         { return p.id }
func (p *StaticPolicy) Name() string       { return p.name }
func (p *StaticPolicy) Prefixes() []string { return p.prefixes }

func matchesPrefix(id string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// Ensure StaticPolicy implements IgnorePolicy.
var _ IgnorePolicy = (*StaticPolicy)(nil)
