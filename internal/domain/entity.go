// Package domain contains core business entities and interfaces.
// This is the innermost layer - no dependencies on other zenguard packages.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Classification controls how hard zenguard pushes back on an app launch.
type Classification uint8

const (
	ClassAllow Classification = iota // GREEN: never intercepted
	ClassSoft                        // YELLOW: single hold gesture
	ClassHard                        // RED: reason, duration and challenge
)

// String returns the storage tag for the classification.
func (c Classification) String() string {
	switch c {
	case ClassSoft:
		return "YELLOW"
	case ClassHard:
		return "RED"
	default:
		return "GREEN"
	}
}

// ParseClassification decodes a stored tag. Unknown or corrupt values decode
// to ClassAllow so a damaged row never locks the user out.
func ParseClassification(s string) Classification {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RED", "HARD":
		return ClassHard
	case "YELLOW", "SOFT":
		return ClassSoft
	default:
		return ClassAllow
	}
}

// AppClassification is the per-app row in the category store.
// Rows are never deleted on uninstall so a reinstall cannot reset the class.
type AppClassification struct {
	ID         string
	Label      string
	Class      Classification
	System     bool
	UsageCount int
	LastUsed   time.Time
	Hidden     bool
}

// Session is a time-boxed grant for one app. Start and expiry are measured on
// the monotonic (since-boot) clock; CreatedAt is wall clock, analytics only.
type Session struct {
	AppID           string
	StartElapsed    time.Duration
	DurationMinutes int
	ExpiryElapsed   time.Duration
	Reason          string
	CreatedAt       time.Time
	BootID          int64 // host boot time (unix seconds) the elapsed values belong to
}

// IsActive reports whether the grant is still valid at the given monotonic time.
func (s Session) IsActive(now time.Duration) bool {
	return s.ExpiryElapsed > now
}

// Remaining returns how much of the grant is left, never negative.
func (s Session) Remaining(now time.Duration) time.Duration {
	if !s.IsActive(now) {
		return 0
	}
	return s.ExpiryElapsed - now
}

// Schedule is a recurring focus window during which SOFT apps escalate to HARD.
type Schedule struct {
	ID          int64
	Name        string
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	Enabled     bool
	Days        []int // 1=Sunday ... 7=Saturday
}

// StartMinutes returns the window start as minutes after midnight.
func (s Schedule) StartMinutes() int { return s.StartHour*60 + s.StartMinute }

// EndMinutes returns the window end as minutes after midnight.
func (s Schedule) EndMinutes() int { return s.EndHour*60 + s.EndMinute }

// WrapsMidnight reports whether the window spans two calendar days.
func (s Schedule) WrapsMidnight() bool { return s.StartMinutes() > s.EndMinutes() }

// EncodeDays renders Days in the stored "1,2,3" form.
func EncodeDays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// ParseDays decodes the stored day list. Entries that are not integers in
// 1..7 are dropped one by one; the rest of the list still applies.
func ParseDays(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var days []int
	for _, part := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || d < 1 || d > 7 {
			continue
		}
		days = append(days, d)
	}
	return days
}

// Weekday converts a time.Weekday to the 1=Sunday numbering used by schedules.
func Weekday(w time.Weekday) int {
	return int(w) + 1
}

// GrantKind records which flow produced a grant.
type GrantKind string

const (
	GrantSoft GrantKind = "soft"
	GrantHard GrantKind = "hard"
)

// GrantRecord is an append-only history row written for every grant.
type GrantRecord struct {
	ID              string
	AppID           string
	DurationMinutes int
	Reason          string
	Kind            GrantKind
	CreatedAt       time.Time
}

// ReasonCount is one row of the "top reasons" analytics.
type ReasonCount struct {
	Reason string
	Count  int
}

// Analytics summarizes grant history.
type Analytics struct {
	TopReasons          []ReasonCount
	TotalMindfulMinutes int
}

// DaemonRole identifies the type of daemon process.
type DaemonRole string

const (
	RoleSupervisor DaemonRole = "supervisor"
	RoleGuardian   DaemonRole = "guardian"
)

// Daemon represents a running daemon process.
type Daemon struct {
	PID        int
	Role       DaemonRole
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry stores the state of both daemons for mutual discovery.
type RegistryEntry struct {
	Version       int    `json:"version"`
	SupervisorPID int    `json:"supervisor_pid"`
	GuardianPID   int    `json:"guardian_pid"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
