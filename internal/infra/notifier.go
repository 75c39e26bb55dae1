package infra

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DesktopNotifier posts zenguard alerts through the desktop notification
// service: osascript on macOS, notify-send elsewhere.
type DesktopNotifier struct {
	runner CommandRunner
	goos   string
	logger *zap.Logger
}

// NewDesktopNotifier creates a notifier for the running OS.
func NewDesktopNotifier(logger *zap.Logger) *DesktopNotifier {
	return NewDesktopNotifierWithDeps(&RealCommandRunner{}, runtime.GOOS, logger)
}

// NewDesktopNotifierWithDeps creates a notifier with injectable dependencies (for testing).
func NewDesktopNotifierWithDeps(runner CommandRunner, goos string, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{runner: runner, goos: goos, logger: logger}
}

// PostRestricted tells the user target was blocked because no intervention
// screen could be drawn.
func (n *DesktopNotifier) PostRestricted(ctx context.Context, target string) error {
	return n.post(ctx,
		"zenguard blocked "+target,
		"zenguard cannot show its prompt. Run it from a terminal (zenguard run) to unlock apps.")
}

// PostShieldDown tells the user events are no longer being delivered.
func (n *DesktopNotifier) PostShieldDown(ctx context.Context) error {
	return n.post(ctx,
		"zenguard shield is down",
		"App launches are not being watched. Restart the event source to restore protection.")
}

func (n *DesktopNotifier) post(ctx context.Context, title, body string) error {
	n.logger.Warn("posting alert", zap.String("title", title), zap.String("body", body))

	var err error
	switch n.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s sound name \"Funk\"",
			appleScriptQuote(body), appleScriptQuote(title))
		err = n.runner.Run(ctx, "osascript", "-e", script)
	case "linux", "freebsd", "openbsd":
		err = n.runner.Run(ctx, "notify-send", "--urgency=critical", "--app-name=zenguard", title, body)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	return nil
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

var _ domain.Notifier = (*DesktopNotifier)(nil)
