// Package presenter renders intervention flows in a terminal with
// bubbletea.
package presenter

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// Terminal presents flows as a full-screen terminal program. Flows are
// shown one at a time.
type Terminal struct {
	mu     sync.Mutex
	opts   []tea.ProgramOption
	logger *zap.Logger
}

// NewTerminal creates a presenter that reads keys from the controlling
// terminal, so event input may still arrive on stdin.
func NewTerminal(logger *zap.Logger) *Terminal {
	return NewTerminalWithOptions(logger, tea.WithInputTTY(), tea.WithAltScreen())
}

// NewTerminalWithOptions creates a presenter with custom program options (for testing).
func NewTerminalWithOptions(logger *zap.Logger, opts ...tea.ProgramOption) *Terminal {
	return &Terminal{opts: opts, logger: logger}
}

// Present runs the flow until the user is granted access, backs out, or
// ctx ends. Anything short of a grant cancels the flow.
func (t *Terminal) Present(ctx context.Context, flow domain.Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()

	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, t.opts...)
	final, err := tea.NewProgram(newModel(ctx, flow, time.Now), opts...).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		t.logger.Error("intervention screen failed", zap.String("app", flow.Request().Target), zap.Error(err))
	}

	if m, ok := final.(model); !ok || !m.granted {
		flow.Cancel()
	}
}

// TerminalOverlay reports whether a terminal is attached to draw on.
type TerminalOverlay struct {
	fd int
}

// NewTerminalOverlay checks f, usually os.Stdout.
func NewTerminalOverlay(f *os.File) *TerminalOverlay {
	return &TerminalOverlay{fd: int(f.Fd())}
}

// CanDrawOverlays is false for detached daemons and redirected output.
func (o *TerminalOverlay) CanDrawOverlays() bool {
	return term.IsTerminal(o.fd)
}

var (
	_ domain.Presenter      = (*Terminal)(nil)
	_ domain.OverlayChecker = (*TerminalOverlay)(nil)
)
