package domain

import (
	"strings"
	"time"
)

// FrictionLevel is the user's configured intensity.
type FrictionLevel string

const (
	LevelLow     FrictionLevel = "LOW"
	LevelMedium  FrictionLevel = "MEDIUM"
	LevelHigh    FrictionLevel = "HIGH"
	LevelExtreme FrictionLevel = "EXTREME"
)

// DefaultFrictionLevel is used when nothing (or garbage) is configured.
const DefaultFrictionLevel = LevelHigh

// ParseFrictionLevel decodes a level name; unknown values fall back to HIGH.
func ParseFrictionLevel(s string) FrictionLevel {
	switch l := FrictionLevel(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelLow, LevelMedium, LevelHigh, LevelExtreme:
		return l
	default:
		return DefaultFrictionLevel
	}
}

// Challenge is the friction variant the user must complete.
type Challenge string

const (
	ChallengeHold    Challenge = "HOLD"
	ChallengeBreathe Challenge = "BREATHE"
	ChallengeMath    Challenge = "MATH"
)

// Challenges lists every variant in selection order.
var Challenges = []Challenge{ChallengeHold, ChallengeBreathe, ChallengeMath}

// FlowType distinguishes the abbreviated soft flow from the full flow.
type FlowType string

const (
	FlowSoft FlowType = "SOFT"
	FlowHard FlowType = "HARD"
)

// DurationMenu is the fixed set of grant lengths offered by the full flow.
var DurationMenu = []int{5, 15, 30, 60}

// ValidDuration reports whether minutes is on the menu.
func ValidDuration(minutes int) bool {
	for _, m := range DurationMenu {
		if m == minutes {
			return true
		}
	}
	return false
}

// MathProblem is a generated arithmetic challenge.
type MathProblem struct {
	Display string
	Answer  int
}

// ChallengeSpec is what the presentation renders for the final stage.
type ChallengeSpec struct {
	Kind     Challenge
	Level    FrictionLevel
	Duration time.Duration // zero for MATH (user paced)
	Problem  *MathProblem  // set only for MATH
}

// DispatchRequest is sent to the presentation layer.
type DispatchRequest struct {
	Flow   FlowType
	Target string
}

// Outcome is the result of evaluating one foreground-change event.
type Outcome string

const (
	OutcomeDebounced       Outcome = "debounced"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeLockBusy        Outcome = "lock_busy"
	OutcomeAllowed         Outcome = "allowed"
	OutcomeAllowedByGrant  Outcome = "allowed_by_grant"
	OutcomeSoftDispatched  Outcome = "soft_dispatched"
	OutcomeHardDispatched  Outcome = "hard_dispatched"
	OutcomeSettingsGuarded Outcome = "settings_guarded"
	OutcomeFallback        Outcome = "fallback_notification"
	OutcomeFailed          Outcome = "failed"
)

// Dispatched reports whether the outcome started an intervention flow.
func (o Outcome) Dispatched() bool {
	switch o {
	case OutcomeSoftDispatched, OutcomeHardDispatched, OutcomeSettingsGuarded:
		return true
	}
	return false
}
