package usecase

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
	"github.com/eliteGoblin/focusd/zenguard/internal/friction"
)

type flowStage int

const (
	stageReason flowStage = iota
	stageDuration
	stageChallenge
	stageClosed
)

// InterventionFlow is one dispatched intervention. The full flow runs
// reason, duration, challenge; the soft flow is only a short hold. Every
// way out of a flow (grant, cancel, failed grant) releases the engine lock.
type InterventionFlow struct {
	engine *Engine
	tok    *lockToken
	req    domain.DispatchRequest

	mu        sync.Mutex
	stage     flowStage
	reason    string
	minutes   int
	challenge *domain.ChallengeSpec

	done      chan struct{}
	closeOnce sync.Once
}

func newInterventionFlow(e *Engine, tok *lockToken, req domain.DispatchRequest) *InterventionFlow {
	f := &InterventionFlow{
		engine: e,
		tok:    tok,
		req:    req,
		done:   make(chan struct{}),
	}
	if req.Flow == domain.FlowSoft {
		f.stage = stageChallenge
	}
	return f
}

// Request returns what was dispatched.
func (f *InterventionFlow) Request() domain.DispatchRequest {
	return f.req
}

// SubmitReason records why the user wants in. Whitespace-only reasons are rejected.
func (f *InterventionFlow) SubmitReason(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.expect(stageReason); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.ErrInvalidReason
	}
	f.reason = reason
	f.stage = stageDuration
	return nil
}

// SelectDuration picks the grant length from the menu.
func (f *InterventionFlow) SelectDuration(minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.expect(stageDuration); err != nil {
		return err
	}
	if !domain.ValidDuration(minutes) {
		return domain.ErrInvalidDuration
	}
	f.minutes = minutes
	f.stage = stageChallenge
	return nil
}

// Challenge returns the friction to complete. It is chosen once per flow,
// so re-rendering never rerolls it.
func (f *InterventionFlow) Challenge() (domain.ChallengeSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challengeLocked()
}

func (f *InterventionFlow) challengeLocked() (domain.ChallengeSpec, error) {
	if err := f.expect(stageChallenge); err != nil {
		return domain.ChallengeSpec{}, err
	}
	if f.challenge == nil {
		var spec domain.ChallengeSpec
		if f.req.Flow == domain.FlowSoft {
			spec = domain.ChallengeSpec{
				Kind:     domain.ChallengeHold,
				Duration: f.engine.cfg.SoftHold,
			}
		} else {
			level := f.engine.FrictionLevel(context.Background())
			spec = f.engine.deps.Friction.Pick(level)
		}
		f.challenge = &spec
	}
	return *f.challenge, nil
}

// CompleteChallenge checks the attempt and, when it passes, writes the
// grant and closes the flow. A failed attempt leaves the challenge open.
// A failed grant closes the flow without access.
func (f *InterventionFlow) CompleteChallenge(ctx context.Context, attempt domain.ChallengeAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	spec, err := f.challengeLocked()
	if err != nil {
		return err
	}
	if err := friction.Verify(spec, attempt); err != nil {
		return err
	}

	minutes, reason, kind := f.minutes, f.reason, domain.GrantHard
	if f.req.Flow == domain.FlowSoft {
		minutes, reason, kind = f.engine.cfg.SoftGrantMinutes, SoftGrantReason, domain.GrantSoft
	}

	_, err = f.engine.deps.Sessions.Grant(ctx, f.req.Target, minutes, reason, kind)
	f.closeLocked()
	if err != nil {
		f.engine.logger.Error("grant failed, intervention closed without access",
			zap.String("app", f.req.Target), zap.Error(err))
		return err
	}
	return nil
}

// Cancel abandons the flow without a grant.
func (f *InterventionFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stage != stageClosed {
		f.engine.logger.Info("intervention cancelled", zap.String("app", f.req.Target))
	}
	f.closeLocked()
}

// Done is closed once the flow has been completed or cancelled.
func (f *InterventionFlow) Done() <-chan struct{} {
	return f.done
}

func (f *InterventionFlow) expect(stage flowStage) error {
	if f.stage == stageClosed {
		return domain.ErrFlowClosed
	}
	if f.stage != stage {
		return domain.ErrWrongStage
	}
	return nil
}

func (f *InterventionFlow) closeLocked() {
	f.stage = stageClosed
	f.engine.release(f.tok)
	f.closeOnce.Do(func() { close(f.done) })
}

var _ domain.Flow = (*InterventionFlow)(nil)
