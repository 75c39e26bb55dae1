package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockRegistry struct {
	mu           sync.Mutex
	registered   []domain.Daemon
	heartbeats   int
	partnerAlive bool
	partnerErr   error
	partnerPanic bool
	// registerFailures is how many Register calls fail before one succeeds.
	registerFailures int
	registerCalls    int
}

func (m *mockRegistry) Register(d domain.Daemon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerCalls++
	if m.registerCalls <= m.registerFailures {
		return errBoom
	}
	m.registered = append(m.registered, d)
	return nil
}

func (m *mockRegistry) UpdateHeartbeat(role domain.DaemonRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	return nil
}

func (m *mockRegistry) IsPartnerAlive(role domain.DaemonRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.partnerPanic {
		panic("registry row corrupted")
	}
	return m.partnerAlive, m.partnerErr
}

func (m *mockRegistry) Heartbeats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeats
}

func (m *mockRegistry) GetAll() (*domain.RegistryEntry, error) { return nil, nil }
func (m *mockRegistry) Clear() error                          { return nil }

func (m *mockRegistry) Registered() []domain.Daemon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Daemon(nil), m.registered...)
}

type mockSpawner struct {
	mu      sync.Mutex
	started []domain.DaemonRole
	err     error
}

func (m *mockSpawner) Start(role domain.DaemonRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, role)
	return m.err
}

func (m *mockSpawner) Started() []domain.DaemonRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DaemonRole(nil), m.started...)
}

type mockSessions struct {
	mu       sync.Mutex
	cleanups int
	cleared  int
	err      error
	panics   bool
}

func (m *mockSessions) CleanupExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics {
		panic("store gone")
	}
	m.cleanups++
	return 0, m.err
}

func (m *mockSessions) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared++
	return m.err
}

type mockLock struct {
	mu         sync.Mutex
	thresholds []time.Duration
	forced     int
}

func (m *mockLock) ReleaseStaleLock(threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = append(m.thresholds, threshold)
	return false
}

func (m *mockLock) ForceRelease() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced++
}

type mockEvents struct {
	mu     sync.Mutex
	active bool
}

func (m *mockEvents) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *mockEvents) set(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = active
}

type mockNotifier struct {
	mu         sync.Mutex
	shieldDown int
	err        error
}

func (m *mockNotifier) PostRestricted(ctx context.Context, target string) error { return nil }

func (m *mockNotifier) PostShieldDown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shieldDown++
	return m.err
}

type mockBootAgent struct {
	installed   bool
	needsUpdate bool
	installs    []string
	updates     []string
	err         error
}

func (m *mockBootAgent) IsInstalled() bool                { return m.installed }
func (m *mockBootAgent) NeedsUpdate(execPath string) bool { return m.needsUpdate }

func (m *mockBootAgent) Install(execPath string) error {
	m.installs = append(m.installs, execPath)
	return m.err
}

func (m *mockBootAgent) Update(execPath string) error {
	m.updates = append(m.updates, execPath)
	return m.err
}

type mockSettings struct {
	values map[string]string
	getErr error
}

func (m *mockSettings) GetSetting(ctx context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *mockSettings) SetSetting(ctx context.Context, key, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

var errBoom = errors.New("boom")
