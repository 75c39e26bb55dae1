//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// stepClock only moves when a test advances it.
type stepClock struct {
	mu      sync.Mutex
	elapsed time.Duration
	now     time.Time
	boot    int64
}

func newStepClock() *stepClock {
	return &stepClock{
		elapsed: time.Hour,
		now:     time.Date(2026, time.October, 14, 12, 0, 0, 0, time.Local),
		boot:    42,
	}
}

func (c *stepClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) BootID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boot
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += d
	c.now = c.now.Add(d)
}

func (c *stepClock) Reboot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = time.Minute
	c.boot++
}

// autoPresenter completes every flow it is given, the way a patient user would.
type autoPresenter struct {
	reason  string
	minutes int

	mu    sync.Mutex
	flows []domain.DispatchRequest
	errs  []error
}

func (p *autoPresenter) Present(ctx context.Context, flow domain.Flow) {
	req := flow.Request()
	p.mu.Lock()
	p.flows = append(p.flows, req)
	p.mu.Unlock()

	if err := p.complete(ctx, flow, req); err != nil {
		p.mu.Lock()
		p.errs = append(p.errs, err)
		p.mu.Unlock()
		flow.Cancel()
	}
}

func (p *autoPresenter) complete(ctx context.Context, flow domain.Flow, req domain.DispatchRequest) error {
	if req.Flow == domain.FlowHard {
		if err := flow.SubmitReason(p.reason); err != nil {
			return err
		}
		if err := flow.SelectDuration(p.minutes); err != nil {
			return err
		}
	}
	spec, err := flow.Challenge()
	if err != nil {
		return err
	}
	attempt := domain.ChallengeAttempt{Held: spec.Duration}
	if spec.Problem != nil {
		attempt.Answer = spec.Problem.Answer
	}
	return flow.CompleteChallenge(ctx, attempt)
}

func (p *autoPresenter) Flows() []domain.DispatchRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.DispatchRequest(nil), p.flows...)
}

func (p *autoPresenter) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

type overlay bool

func (o overlay) CanDrawOverlays() bool { return bool(o) }

type countingNotifier struct {
	mu         sync.Mutex
	restricted []string
	shieldDown int
}

func (n *countingNotifier) PostRestricted(ctx context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.restricted = append(n.restricted, target)
	return nil
}

func (n *countingNotifier) PostShieldDown(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shieldDown++
	return nil
}

func (n *countingNotifier) Restricted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.restricted...)
}
