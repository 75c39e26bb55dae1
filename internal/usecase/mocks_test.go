package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a manually advanced domain.Clock.
type fakeClock struct {
	mu      sync.Mutex
	elapsed time.Duration
	now     time.Time
	boot    int64
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		elapsed: time.Hour,
		now:     time.Date(2026, time.October, 14, 12, 0, 0, 0, time.Local), // Wednesday noon
		boot:    1000,
	}
}

func (c *fakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) BootID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boot
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += d
	c.now = c.now.Add(d)
}

func (c *fakeClock) SetWall(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reboot resets monotonic time and changes the boot id.
func (c *fakeClock) Reboot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = time.Minute
	c.boot++
}

// memCategories is an in-memory domain.CategoryStore.
type memCategories struct {
	mu    sync.Mutex
	apps  map[string]domain.AppClassification
	subs  map[int]chan []domain.AppClassification
	next  int
	usage chan string
	// cold skips the snapshot Subscribe normally sends right away.
	cold bool
}

func newMemCategories() *memCategories {
	return &memCategories{
		apps:  make(map[string]domain.AppClassification),
		subs:  make(map[int]chan []domain.AppClassification),
		usage: make(chan string, 64),
	}
}

func (m *memCategories) snapshotLocked() []domain.AppClassification {
	out := make([]domain.AppClassification, 0, len(m.apps))
	for _, a := range m.apps {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memCategories) publishLocked() {
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *memCategories) Upsert(ctx context.Context, app domain.AppClassification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps[app.ID] = app
	m.publishLocked()
	return nil
}

func (m *memCategories) Get(ctx context.Context, id string) (*domain.AppClassification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memCategories) SetClass(ctx context.Context, id string, class domain.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.apps[id]
	a.ID, a.Class = id, class
	m.apps[id] = a
	m.publishLocked()
	return nil
}

func (m *memCategories) RecordUsage(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.apps[id]; ok {
		a.UsageCount++
		a.LastUsed = at
		m.apps[id] = a
	}
	select {
	case m.usage <- id:
	default:
	}
	return nil
}

func (m *memCategories) List(ctx context.Context) ([]domain.AppClassification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

func (m *memCategories) Subscribe(ctx context.Context) (<-chan []domain.AppClassification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan []domain.AppClassification, 16)
	if !m.cold {
		ch <- m.snapshotLocked()
	}
	id := m.next
	m.next++
	m.subs[id] = ch

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
		close(ch)
	}()
	return ch, nil
}

// memSchedules is an in-memory domain.ScheduleStore.
type memSchedules struct {
	mu        sync.Mutex
	schedules map[int64]domain.Schedule
	subs      map[int]chan []domain.Schedule
	next      int
	nextID    int64
}

func newMemSchedules() *memSchedules {
	return &memSchedules{
		schedules: make(map[int64]domain.Schedule),
		subs:      make(map[int]chan []domain.Schedule),
	}
}

func (m *memSchedules) snapshotLocked() []domain.Schedule {
	out := make([]domain.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memSchedules) Save(ctx context.Context, s domain.Schedule) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID
	}
	m.schedules[s.ID] = s
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	return s.ID, nil
}

func (m *memSchedules) Get(ctx context.Context, id int64) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memSchedules) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *memSchedules) List(ctx context.Context) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(), nil
}

func (m *memSchedules) Subscribe(ctx context.Context) (<-chan []domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan []domain.Schedule, 16)
	ch <- m.snapshotLocked()
	id := m.next
	m.next++
	m.subs[id] = ch

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
		close(ch)
	}()
	return ch, nil
}

// memSessions is an in-memory domain.SessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	getErr   error
	putErr   error
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]domain.Session)}
}

func (m *memSessions) Put(ctx context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.sessions[s.AppID] = s
	return nil
}

func (m *memSessions) Get(ctx context.Context, appID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.sessions[appID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memSessions) Delete(ctx context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, appID)
	return nil
}

func (m *memSessions) DeleteExpired(ctx context.Context, now time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.ExpiryElapsed < now {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]domain.Session)
	return nil
}

func (m *memSessions) List(ctx context.Context) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

// memHistory is an in-memory domain.HistoryStore.
type memHistory struct {
	mu      sync.Mutex
	records []domain.GrantRecord
}

func (m *memHistory) Append(ctx context.Context, rec domain.GrantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memHistory) Recent(ctx context.Context, limit int) ([]domain.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GrantRecord, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *memHistory) CountSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// memSettings is an in-memory domain.SettingsStore.
type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memSettings) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// recordingPresenter hands every flow to the test and holds it open until
// the test completes or cancels it.
type recordingPresenter struct {
	flows chan domain.Flow
	// returnEarly makes Present return without touching the flow.
	returnEarly bool
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{flows: make(chan domain.Flow, 64)}
}

func (p *recordingPresenter) Present(ctx context.Context, flow domain.Flow) {
	p.flows <- flow
	if p.returnEarly {
		return
	}
	select {
	case <-flow.Done():
	case <-ctx.Done():
	}
}

func (p *recordingPresenter) next(t *testing.T) domain.Flow {
	t.Helper()
	select {
	case f := <-p.flows:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no flow presented")
		return nil
	}
}

type fakeOverlay struct {
	mu      sync.Mutex
	allowed bool
	panics  bool
}

func (o *fakeOverlay) CanDrawOverlays() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panics {
		panic("overlay service died")
	}
	return o.allowed
}

type fakeNotifier struct {
	mu         sync.Mutex
	restricted []string
	shieldDown int
	err        error
	// block, when set, holds PostRestricted until it is closed.
	block chan struct{}
}

func (n *fakeNotifier) PostRestricted(ctx context.Context, target string) error {
	if n.block != nil {
		<-n.block
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.restricted = append(n.restricted, target)
	return n.err
}

func (n *fakeNotifier) PostShieldDown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shieldDown++
	return n.err
}

func (n *fakeNotifier) Restricted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.restricted...)
}

var errStorage = domain.NewStorageError("test", errors.New("disk on fire"))
