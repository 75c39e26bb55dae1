package presenter

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// fakeFlow records what the model asks of the flow.
type fakeFlow struct {
	mu        sync.Mutex
	req       domain.DispatchRequest
	spec      domain.ChallengeSpec
	reason    string
	minutes   int
	attempts  []domain.ChallengeAttempt
	complete  func(domain.ChallengeAttempt) error
	cancelled int
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeFlow(flowType domain.FlowType, spec domain.ChallengeSpec) *fakeFlow {
	return &fakeFlow{
		req:  domain.DispatchRequest{Flow: flowType, Target: "com.example.social"},
		spec: spec,
		done: make(chan struct{}),
	}
}

func (f *fakeFlow) Request() domain.DispatchRequest { return f.req }

func (f *fakeFlow) SubmitReason(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(reason) == 0 {
		return domain.ErrInvalidReason
	}
	f.reason = reason
	return nil
}

func (f *fakeFlow) SelectDuration(minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minutes = minutes
	return nil
}

func (f *fakeFlow) Challenge() (domain.ChallengeSpec, error) { return f.spec, nil }

func (f *fakeFlow) CompleteChallenge(ctx context.Context, attempt domain.ChallengeAttempt) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, attempt)
	complete := f.complete
	f.mu.Unlock()
	if complete != nil {
		return complete(attempt)
	}
	return nil
}

func (f *fakeFlow) Cancel() {
	f.mu.Lock()
	f.cancelled++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *fakeFlow) Done() <-chan struct{} { return f.done }

var (
	holdSpec = domain.ChallengeSpec{Kind: domain.ChallengeHold, Duration: 3 * time.Second}
	mathSpec = domain.ChallengeSpec{
		Kind:    domain.ChallengeMath,
		Problem: &domain.MathProblem{Display: "23 + 19 = ?", Answer: 42},
	}
)

// testClock is a settable now func.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

func newTestModel(flow *fakeFlow) (model, *testClock) {
	clock := &testClock{t: time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)}
	return newModel(context.Background(), flow, clock.now), clock
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out, cmd
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModel_FullFlowStages(t *testing.T) {
	flow := newFakeFlow(domain.FlowHard, mathSpec)
	m, _ := newTestModel(flow)
	require.Equal(t, stageReason, m.stage)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stageReason, m.stage)
	assert.NotEmpty(t, m.message)

	m = typeText(t, m, "bored")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stageDuration, m.stage)
	assert.Equal(t, "bored", flow.reason)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 30, flow.minutes)
	assert.Equal(t, stageChallenge, m.stage)
	assert.Contains(t, m.View(), "23 + 19 = ?")

	m = typeText(t, m, "42")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.submitting)

	m, cmd = update(t, m, cmd())
	assert.True(t, m.granted)
	assert.True(t, isQuit(cmd))
	assert.Equal(t, []domain.ChallengeAttempt{{Answer: 42}}, flow.attempts)
	assert.Zero(t, flow.cancelled)
}

func TestModel_DurationShortcut(t *testing.T) {
	flow := newFakeFlow(domain.FlowHard, holdSpec)
	m, _ := newTestModel(flow)

	m = typeText(t, m, "call back")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'4'}})

	assert.Equal(t, 60, flow.minutes)
	assert.Equal(t, stageChallenge, m.stage)
}

func TestModel_WrongAnswerKeepsChallengeOpen(t *testing.T) {
	flow := newFakeFlow(domain.FlowHard, mathSpec)
	flow.complete = func(a domain.ChallengeAttempt) error {
		if a.Answer != 42 {
			return domain.ErrChallengeNotComplete
		}
		return nil
	}
	m, _ := newTestModel(flow)
	m.enterChallenge()

	m = typeText(t, m, "41")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd = update(t, m, cmd())
	assert.False(t, isQuit(cmd))
	assert.False(t, m.granted)
	assert.Equal(t, "", m.answer.Value())
	assert.NotEmpty(t, m.message)

	m = typeText(t, m, "x")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "Enter a number.", m.message)
}

func TestModel_EscCancels(t *testing.T) {
	flow := newFakeFlow(domain.FlowHard, holdSpec)
	m, _ := newTestModel(flow)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, isQuit(cmd))
	assert.Equal(t, stageDone, m.stage)
	assert.Equal(t, 1, flow.cancelled)
}

func TestModel_SoftFlowStartsAtHold(t *testing.T) {
	flow := newFakeFlow(domain.FlowSoft, holdSpec)
	m, clock := newTestModel(flow)
	require.Equal(t, stageChallenge, m.stage)
	assert.Contains(t, m.View(), "Hold space for 3 seconds")

	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	var cmd tea.Cmd
	for i := 0; i < 10; i++ {
		m, cmd = update(t, m, space)
		assert.Nil(t, cmd)
		clock.advance(300 * time.Millisecond)
	}
	// 3s after the first key repeat the attempt is submitted.
	m, cmd = update(t, m, space)
	require.NotNil(t, cmd)
	m, cmd = update(t, m, cmd())
	assert.True(t, m.granted)
	assert.True(t, isQuit(cmd))
	require.Len(t, flow.attempts, 1)
	assert.Equal(t, 3*time.Second, flow.attempts[0].Held)
}

func TestModel_HoldReleaseResets(t *testing.T) {
	flow := newFakeFlow(domain.FlowSoft, holdSpec)
	m, clock := newTestModel(flow)
	space := tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}

	m, _ = update(t, m, space)
	clock.advance(500 * time.Millisecond)
	m, _ = update(t, m, space)
	assert.Equal(t, 500*time.Millisecond, m.elapsed)

	// A tick well after the last repeat means the key was released.
	m, _ = update(t, m, tickMsg(clock.advance(time.Second)))
	assert.Zero(t, m.elapsed)
	assert.True(t, m.started.IsZero())
	assert.NotEmpty(t, m.message)
	assert.Empty(t, flow.attempts)
}

func TestModel_BreatheCompletesOnTick(t *testing.T) {
	spec := domain.ChallengeSpec{Kind: domain.ChallengeBreathe, Duration: 10 * time.Second}
	flow := newFakeFlow(domain.FlowHard, spec)
	m, clock := newTestModel(flow)
	m.enterChallenge()

	m, _ = update(t, m, tickMsg(clock.advance(5*time.Second)))
	assert.Contains(t, m.View(), "Breathe out")
	assert.Empty(t, flow.attempts)
	assert.False(t, m.submitting)

	m, _ = update(t, m, tickMsg(clock.advance(5*time.Second)))
	assert.True(t, m.submitting)
}

func TestModel_ExternalCloseQuits(t *testing.T) {
	flow := newFakeFlow(domain.FlowHard, holdSpec)
	m, clock := newTestModel(flow)

	flow.Cancel()
	m, cmd := update(t, m, tickMsg(clock.advance(tickInterval)))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, stageDone, m.stage)
}

func TestProgressBar(t *testing.T) {
	assert.NotPanics(t, func() {
		progressBar(0, 0)
		progressBar(-time.Second, time.Second)
		progressBar(2*time.Second, time.Second)
	})
}
