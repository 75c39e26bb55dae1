// Package friction picks the challenge a user must complete before a grant.
// Challenges are randomized per level so none of them turns into muscle memory.
package friction

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// Math operands are drawn from [mathMin, mathMax).
const (
	mathMin = 10
	mathMax = 50
)

// Selector chooses challenges. The zero value is not usable; call New.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a selector over the given randomness source.
func New(src rand.Source) *Selector {
	return &Selector{rnd: rand.New(src)}
}

// NewDefault creates a selector seeded from the current time.
func NewDefault() *Selector {
	return New(rand.NewSource(time.Now().UnixNano()))
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// Select returns a random challenge for the level.
//
//	LOW      HOLD
//	MEDIUM   HOLD | BREATHE
//	HIGH     HOLD | BREATHE | MATH
//	EXTREME  MATH | BREATHE
func (s *Selector) Select(level domain.FrictionLevel) domain.Challenge {
	switch level {
	case domain.LevelLow:
		return domain.ChallengeHold
	case domain.LevelMedium:
		if s.intn(2) == 0 {
			return domain.ChallengeHold
		}
		return domain.ChallengeBreathe
	case domain.LevelExtreme:
		if s.intn(2) == 0 {
			return domain.ChallengeMath
		}
		return domain.ChallengeBreathe
	default:
		return domain.Challenges[s.intn(len(domain.Challenges))]
	}
}

// DurationMs returns the fixed duration of a challenge at a level.
// MATH is user paced and always returns 0.
func DurationMs(ch domain.Challenge, level domain.FrictionLevel) int64 {
	switch ch {
	case domain.ChallengeHold:
		switch level {
		case domain.LevelLow:
			return 3000
		case domain.LevelMedium:
			return 5000
		default:
			return 7000
		}
	case domain.ChallengeBreathe:
		switch level {
		case domain.LevelMedium:
			return 10000
		case domain.LevelExtreme:
			return 20000
		default:
			return 15000
		}
	default:
		return 0
	}
}

// MathProblem draws two operands uniformly from [10,50) and returns the
// display string "a + b = ?" with its answer.
func (s *Selector) MathProblem() domain.MathProblem {
	a := mathMin + s.intn(mathMax-mathMin)
	b := mathMin + s.intn(mathMax-mathMin)
	return domain.MathProblem{
		Display: fmt.Sprintf("%d + %d = ?", a, b),
		Answer:  a + b,
	}
}

// Pick selects a challenge for the level and fills in everything the
// presentation needs to render it.
func (s *Selector) Pick(level domain.FrictionLevel) domain.ChallengeSpec {
	ch := s.Select(level)
	spec := domain.ChallengeSpec{
		Kind:     ch,
		Level:    level,
		Duration: time.Duration(DurationMs(ch, level)) * time.Millisecond,
	}
	if ch == domain.ChallengeMath {
		p := s.MathProblem()
		spec.Problem = &p
	}
	return spec
}

// Verify checks an attempt against a challenge. There is no retry limit;
// a failed attempt just leaves the challenge open.
func Verify(spec domain.ChallengeSpec, attempt domain.ChallengeAttempt) error {
	switch spec.Kind {
	case domain.ChallengeMath:
		if spec.Problem == nil || attempt.Answer != spec.Problem.Answer {
			return domain.ErrChallengeNotComplete
		}
	default:
		if attempt.Held < spec.Duration {
			return domain.ErrChallengeNotComplete
		}
	}
	return nil
}
