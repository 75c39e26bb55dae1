package presenter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

const (
	tickInterval = 100 * time.Millisecond

	// releaseGap is how long without a space key repeat counts as letting go.
	releaseGap = 600 * time.Millisecond

	// breathPhase is the length of one inhale or exhale.
	breathPhase = 4 * time.Second

	barWidth = 30
)

type stage int

const (
	stageReason stage = iota
	stageDuration
	stageChallenge
	stageDone
)

type tickMsg time.Time

// completedMsg carries the result of CompleteChallenge back to Update.
type completedMsg struct{ err error }

// model renders one intervention flow in the terminal.
type model struct {
	ctx  context.Context
	flow domain.Flow
	now  func() time.Time

	stage   stage
	reason  textinput.Model
	cursor  int
	answer  textinput.Model
	spec    domain.ChallengeSpec
	started time.Time // zero while a HOLD is not being held
	lastKey time.Time
	elapsed time.Duration

	submitting bool
	granted    bool
	message    string
}

func newModel(ctx context.Context, flow domain.Flow, now func() time.Time) model {
	reason := textinput.New()
	reason.Placeholder = "what do you need it for?"
	reason.CharLimit = 200
	reason.Focus()

	answer := textinput.New()
	answer.Placeholder = "?"
	answer.CharLimit = 6

	m := model{
		ctx:    ctx,
		flow:   flow,
		now:    now,
		reason: reason,
		answer: answer,
		cursor: 1, // 15 minutes
	}
	if flow.Request().Flow == domain.FlowSoft {
		m.enterChallenge()
	}
	return m
}

func (m *model) enterChallenge() {
	spec, err := m.flow.Challenge()
	if err != nil {
		m.message = err.Error()
		m.stage = stageDone
		return
	}
	m.spec = spec
	m.stage = stageChallenge
	m.reason.Blur()
	switch spec.Kind {
	case domain.ChallengeMath:
		m.answer.Focus()
	case domain.ChallengeBreathe:
		m.started = m.now()
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc || msg.Type == tea.KeyCtrlC {
			m.flow.Cancel()
			m.stage = stageDone
			return m, tea.Quit
		}
		switch m.stage {
		case stageReason:
			return m.updateReason(msg)
		case stageDuration:
			return m.updateDuration(msg)
		case stageChallenge:
			return m.updateChallenge(msg)
		}
		return m, nil

	case tickMsg:
		return m.onTick(time.Time(msg))

	case completedMsg:
		return m.onCompleted(msg.err)
	}

	var cmd tea.Cmd
	switch {
	case m.stage == stageReason:
		m.reason, cmd = m.reason.Update(msg)
	case m.stage == stageChallenge && m.spec.Kind == domain.ChallengeMath:
		m.answer, cmd = m.answer.Update(msg)
	}
	return m, cmd
}

func (m model) updateReason(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.reason, cmd = m.reason.Update(msg)
		return m, cmd
	}

	err := m.flow.SubmitReason(m.reason.Value())
	if errors.Is(err, domain.ErrInvalidReason) {
		m.message = "Type a reason first."
		return m, nil
	}
	if err != nil {
		return m.fail(err)
	}
	m.message = ""
	m.stage = stageDuration
	m.reason.Blur()
	return m, nil
}

func (m model) updateDuration(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(domain.DurationMenu)-1 {
			m.cursor++
		}
		return m, nil
	case "1", "2", "3", "4":
		m.cursor = int(msg.Runes[0] - '1')
	case "enter":
	default:
		return m, nil
	}

	if err := m.flow.SelectDuration(domain.DurationMenu[m.cursor]); err != nil {
		return m.fail(err)
	}
	m.enterChallenge()
	return m, nil
}

func (m model) updateChallenge(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}

	switch m.spec.Kind {
	case domain.ChallengeMath:
		if msg.Type != tea.KeyEnter {
			var cmd tea.Cmd
			m.answer, cmd = m.answer.Update(msg)
			return m, cmd
		}
		n, err := strconv.Atoi(strings.TrimSpace(m.answer.Value()))
		if err != nil {
			m.message = "Enter a number."
			return m, nil
		}
		m.submitting = true
		return m, m.submit(domain.ChallengeAttempt{Answer: n})

	case domain.ChallengeHold:
		if msg.Type != tea.KeySpace {
			return m, nil
		}
		now := m.now()
		if m.started.IsZero() || now.Sub(m.lastKey) > releaseGap {
			m.started = now
		}
		m.lastKey = now
		m.elapsed = now.Sub(m.started)
		m.message = ""
		cmd := m.maybeComplete()
		return m, cmd
	}
	return m, nil
}

func (m model) onTick(t time.Time) (tea.Model, tea.Cmd) {
	if m.stage == stageDone {
		return m, nil
	}
	select {
	case <-m.flow.Done():
		m.stage = stageDone
		return m, tea.Quit
	default:
	}

	if m.stage != stageChallenge || m.submitting {
		return m, tick()
	}

	switch m.spec.Kind {
	case domain.ChallengeHold:
		if m.started.IsZero() {
			break
		}
		if t.Sub(m.lastKey) > releaseGap {
			m.started = time.Time{}
			m.elapsed = 0
			m.message = "Let go too early. Hold space again."
			break
		}
		m.elapsed = t.Sub(m.started)
	case domain.ChallengeBreathe:
		m.elapsed = t.Sub(m.started)
	}
	cmd := m.maybeComplete()
	return m, tea.Batch(tick(), cmd)
}

// maybeComplete submits a timed challenge once enough time has passed.
func (m *model) maybeComplete() tea.Cmd {
	if m.spec.Kind == domain.ChallengeMath || m.elapsed < m.spec.Duration || m.submitting {
		return nil
	}
	m.submitting = true
	return m.submit(domain.ChallengeAttempt{Held: m.elapsed})
}

func (m model) submit(attempt domain.ChallengeAttempt) tea.Cmd {
	ctx, flow := m.ctx, m.flow
	return func() tea.Msg {
		return completedMsg{err: flow.CompleteChallenge(ctx, attempt)}
	}
}

func (m model) onCompleted(err error) (tea.Model, tea.Cmd) {
	m.submitting = false
	switch {
	case err == nil:
		m.granted = true
		m.stage = stageDone
		return m, tea.Quit
	case errors.Is(err, domain.ErrChallengeNotComplete):
		m.message = "Not quite. Try again."
		m.answer.SetValue("")
		m.started = time.Time{}
		m.elapsed = 0
		return m, nil
	default:
		return m.fail(err)
	}
}

func (m model) fail(err error) (tea.Model, tea.Cmd) {
	m.message = err.Error()
	m.stage = stageDone
	m.flow.Cancel()
	return m, tea.Quit
}

func (m model) View() string {
	target := m.flow.Request().Target

	var b strings.Builder
	switch m.stage {
	case stageReason:
		b.WriteString(titleStyle.Render("Pause before opening "+target) + "\n\n")
		b.WriteString("Why do you want to open it?\n")
		b.WriteString(m.reason.View() + "\n\n")
		b.WriteString(hintStyle.Render("enter to continue, esc to go back"))

	case stageDuration:
		b.WriteString(titleStyle.Render("How long do you need?") + "\n\n")
		for i, minutes := range domain.DurationMenu {
			line := fmt.Sprintf("%d  %d minutes", i+1, minutes)
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> "+line) + "\n")
			} else {
				b.WriteString("  " + line + "\n")
			}
		}
		b.WriteString("\n" + hintStyle.Render("up/down to choose, enter to confirm"))

	case stageChallenge:
		b.WriteString(m.challengeView())

	case stageDone:
		if m.granted {
			b.WriteString(titleStyle.Render("Go ahead. Your time starts now."))
		}
	}

	if m.message != "" {
		b.WriteString("\n\n" + messageStyle.Render(m.message))
	}
	return boxStyle.Render(b.String()) + "\n"
}

func (m model) challengeView() string {
	var b strings.Builder
	switch m.spec.Kind {
	case domain.ChallengeMath:
		b.WriteString(titleStyle.Render("Solve to continue") + "\n\n")
		if m.spec.Problem != nil {
			b.WriteString(m.spec.Problem.Display + "\n")
		}
		b.WriteString(m.answer.View() + "\n\n")
		b.WriteString(hintStyle.Render("enter to submit, esc to go back"))

	case domain.ChallengeBreathe:
		phase := "Breathe in"
		if (m.elapsed/breathPhase)%2 == 1 {
			phase = "Breathe out"
		}
		b.WriteString(titleStyle.Render(phase) + "\n\n")
		b.WriteString(progressBar(m.elapsed, m.spec.Duration) + "\n\n")
		b.WriteString(hintStyle.Render("esc to go back"))

	default:
		b.WriteString(titleStyle.Render(fmt.Sprintf("Hold space for %d seconds", int(m.spec.Duration.Seconds()))) + "\n\n")
		b.WriteString(progressBar(m.elapsed, m.spec.Duration) + "\n\n")
		b.WriteString(hintStyle.Render("release to start over, esc to go back"))
	}
	return b.String()
}

func progressBar(elapsed, total time.Duration) string {
	filled := barWidth
	if total > 0 && elapsed < total {
		filled = int(int64(barWidth) * int64(elapsed) / int64(total))
	}
	if filled < 0 {
		filled = 0
	}
	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barTrackStyle.Render(strings.Repeat("░", barWidth-filled))
}
