package infra

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// EventHandler receives one foreground-change event. Handlers may run
// concurrently with each other.
type EventHandler func(ctx context.Context, appID, windowClass string)

// DefaultMaxInFlight bounds how many handlers run at once.
const DefaultMaxInFlight = 16

// LineSource reads foreground-change events, one per line, in the form
// "appID<TAB>windowClass" or just "appID". It reports itself active while
// it is reading.
type LineSource struct {
	r           io.Reader
	maxInFlight int
	active      atomic.Bool
	logger      *zap.Logger
}

// NewLineSource creates a source over r.
func NewLineSource(r io.Reader, logger *zap.Logger) *LineSource {
	return &LineSource{r: r, maxInFlight: DefaultMaxInFlight, logger: logger}
}

// OpenEventInput opens path for reading events. "" and "-" mean stdin.
// Named pipes are opened read-write so the source survives writers
// coming and going.
func OpenEventInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat event input: %w", err)
	}
	flag := os.O_RDONLY
	if info.Mode()&os.ModeNamedPipe != 0 {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open event input: %w", err)
	}
	return f, nil
}

// EnsureFIFO creates a named pipe at path unless something already exists there.
func EnsureFIFO(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := syscall.Mkfifo(path, 0600); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create event pipe %s: %w", path, err)
	}
	return nil
}

// Active reports whether events can still arrive.
func (s *LineSource) Active() bool {
	return s.active.Load()
}

// Run delivers events to handle until the input ends or ctx is done.
// Each event is handled on its own goroutine so a slow handler never
// stalls the reader. Run returns once every started handler has finished.
// Blank lines and lines starting with '#' are skipped.
func (s *LineSource) Run(ctx context.Context, handle EventHandler) error {
	lines := make(chan string, s.maxInFlight)
	errc := make(chan error, 1)

	s.active.Store(true)
	defer s.active.Store(false)

	var handlers errgroup.Group
	handlers.SetLimit(s.maxInFlight)
	defer func() { _ = handlers.Wait() }()

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					s.logger.Error("event source failed", zap.Error(err))
					return fmt.Errorf("event source: %w", err)
				}
				s.logger.Warn("event source reached end of input")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			appID, class, ok := ParseEventLine(line)
			if !ok {
				continue
			}
			handlers.Go(func() error {
				handle(ctx, appID, class)
				return nil
			})
		}
	}
}

// ParseEventLine splits an event line into identifier and window class.
func ParseEventLine(line string) (appID, windowClass string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	appID, windowClass, _ = strings.Cut(line, "\t")
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return "", "", false
	}
	return appID, strings.TrimSpace(windowClass), true
}

var _ domain.EventSourceMonitor = (*LineSource)(nil)
