package domain

import (
	"context"
	"time"
)

// Clock provides both time bases the engine needs.
type Clock interface {
	// Elapsed returns monotonic time since boot. It is unaffected by changes
	// to the wall clock and resets on reboot.
	Elapsed() time.Duration

	// Now returns the wall clock, used for schedules and analytics only.
	Now() time.Time

	// BootID identifies the current boot (host boot time, unix seconds).
	BootID() int64
}

// CategoryStore is the durable app -> classification mapping.
// There is deliberately no delete: rows survive uninstall.
type CategoryStore interface {
	Upsert(ctx context.Context, app AppClassification) error
	Get(ctx context.Context, id string) (*AppClassification, error)
	SetClass(ctx context.Context, id string, class Classification) error
	RecordUsage(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context) ([]AppClassification, error)

	// Subscribe emits the current snapshot immediately and a fresh one after
	// every committed change, until ctx is done.
	Subscribe(ctx context.Context) (<-chan []AppClassification, error)
}

// ScheduleStore is the durable set of focus profiles.
type ScheduleStore interface {
	Save(ctx context.Context, s Schedule) (int64, error)
	Get(ctx context.Context, id int64) (*Schedule, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Schedule, error)
	Subscribe(ctx context.Context) (<-chan []Schedule, error)
}

// SessionStore holds at most one live grant per app.
type SessionStore interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, appID string) (*Session, error)
	Delete(ctx context.Context, appID string) error
	DeleteExpired(ctx context.Context, now time.Duration) (int, error)
	DeleteAll(ctx context.Context) error
	List(ctx context.Context) ([]Session, error)
}

// HistoryStore is the append-only grant log.
type HistoryStore interface {
	Append(ctx context.Context, rec GrantRecord) error
	// Recent returns the newest records first; limit <= 0 means all.
	Recent(ctx context.Context, limit int) ([]GrantRecord, error)

	// CountSince counts grants created at or after the wall-clock instant.
	// History survives reboots, so this is safe for "today" counters.
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// SettingsStore is a small key/value table for user preferences.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Setting keys.
const (
	SettingProtectionEnabled = "protection_enabled"
	SettingFrictionLevel     = "friction_level"
	SettingLastBootID        = "last_boot_id"
)

// Flow is one in-progress intervention handed to the presentation layer.
type Flow interface {
	Request() DispatchRequest

	// SubmitReason records the free-text reason (full flow, stage 1).
	SubmitReason(reason string) error

	// SelectDuration picks a grant length from DurationMenu (full flow, stage 2).
	SelectDuration(minutes int) error

	// Challenge returns the friction the user must complete (final stage).
	Challenge() (ChallengeSpec, error)

	// CompleteChallenge submits the user's attempt; nil means the grant was
	// written and the presentation may proceed to the target app.
	CompleteChallenge(ctx context.Context, attempt ChallengeAttempt) error

	// Cancel abandons the flow without a grant. Safe to call more than once.
	Cancel()

	// Done is closed once the flow completes or is cancelled.
	Done() <-chan struct{}
}

// ChallengeAttempt is what the presentation measured for the challenge.
type ChallengeAttempt struct {
	Held   time.Duration // HOLD / BREATHE: how long the gesture or timer ran
	Answer int           // MATH
}

// Presenter renders intervention flows. Present may block until the user
// finishes; the engine always calls it off the event path.
type Presenter interface {
	Present(ctx context.Context, flow Flow)
}

// OverlayChecker reports whether the process can currently draw over other apps.
type OverlayChecker interface {
	CanDrawOverlays() bool
}

// Notifier posts high-priority alerts outside the intervention UI.
type Notifier interface {
	// PostRestricted tells the user target was blocked but no overlay could
	// be drawn, with a pointer to fix permissions.
	PostRestricted(ctx context.Context, target string) error

	// PostShieldDown tells the user the event source is no longer delivering.
	PostShieldDown(ctx context.Context) error
}

// EventSourceMonitor reports whether foreground-change events are still flowing.
type EventSourceMonitor interface {
	Active() bool
}

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry provides daemon discovery and registration between the
// supervisor and its guardian.
type DaemonRegistry interface {
	Register(daemon Daemon) error
	UpdateHeartbeat(role DaemonRole) error
	IsPartnerAlive(role DaemonRole) (bool, error)
	GetAll() (*RegistryEntry, error)
	Clear() error
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	GetKey() ([]byte, error)
	StoreKey(key []byte) error
	KeyExists() bool
}

// BootAgent installs the OS hook that runs zenguard's boot cleanup at login.
type BootAgent interface {
	IsInstalled() bool
	NeedsUpdate(execPath string) bool
	Install(execPath string) error
	Update(execPath string) error
}
